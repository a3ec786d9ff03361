package widget

import (
	"fmt"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/phone"
)

// Widget names used by NewPhoneBoard.
const (
	ServerText   = "server"
	TargetText   = "target"
	DTMFText     = "dtmf"
	CallButton   = "call"
	AnswerButton = "answer"
	HangupButton = "hangup"
	HoldButton   = "hold"
	MuteButton   = "mute"
	DialInput    = "dial"
	RingTone     = "ringtone"
	RingbackTone = "ringbacktone"
	DTMFTone     = "dtmftone"
)

// DefaultKeys is the keypad layout, row by row.
var DefaultKeys = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "*", "0", "#"}

// Preset is a phonebook entry.
type Preset struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Snapshot is a copy of every widget's state.
type Snapshot struct {
	Revision uint64            `json:"revision"`
	Buttons  []ButtonState     `json:"buttons"`
	Texts    map[string]string `json:"texts"`
	Inputs   map[string]string `json:"inputs"`
	Tones    map[string]bool   `json:"tones"`
	Plays    map[string]uint64 `json:"plays"`
	Alerts   []string          `json:"alerts"`
}

type ButtonState struct {
	Name     string   `json:"name"`
	Text     string   `json:"text"`
	Disabled bool     `json:"disabled"`
	Value    string   `json:"value"`
	Classes  []string `json:"classes"`
}

func (s Snapshot) Button(name string) (ButtonState, bool) {
	for _, b := range s.Buttons {
		if b.Name == name {
			return b, true
		}
	}
	return ButtonState{}, false
}

func KeyName(tone string) string { return "key-" + tone }

func PresetName(i int) string { return fmt.Sprintf("phonebook-%d", i) }

// NewPhoneBoard lays out a web phone and returns the surface driving it.
// Everything but the phonebook starts disabled until the phone connects.
func NewPhoneBoard(keys []string, presets []Preset) (*Board, phone.Surface) {
	b := NewBoard()

	s := phone.Surface{
		Server: b.AddText(ServerText, ""),
		Target: b.AddText(TargetText, ""),
		DTMF:   b.AddText(DTMFText, ""),

		Call:   b.AddButton(CallButton, "Call", "", true),
		Answer: b.AddButton(AnswerButton, "Answer", "", true),
		Hangup: b.AddButton(HangupButton, "Hangup", "", true),
		Hold:   b.AddButton(HoldButton, "Hold", "", true),
		Mute:   b.AddButton(MuteButton, "Mute", "", true),

		Dial: b.AddInput(DialInput),

		RingTone:     b.AddTone(RingTone, "sounds/ring.ogg"),
		RingbackTone: b.AddTone(RingbackTone, "sounds/ringback.ogg"),
		DTMFTone:     b.AddOneShotTone(DTMFTone, "sounds/dtmf.ogg"),

		Alert: b,
	}
	for _, k := range keys {
		s.Keypad = append(s.Keypad, b.AddButton(KeyName(k), k, k, true))
	}
	for i, p := range presets {
		s.Phonebook = append(s.Phonebook, b.AddButton(PresetName(i), p.Name, p.Number, false))
	}
	return b, s
}
