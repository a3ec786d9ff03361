package console

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/widget"
)

// Phone is the set of user intents the console forwards.
type Phone interface {
	DialInput()
	DialPreset(i int)
	Answer()
	Hangup()
	ToggleHold()
	ToggleMute()
	PressKey(tone string)
}

type Console struct {
	phone Phone
	board *widget.Board
	out   io.Writer
}

func NewConsole(phone Phone, board *widget.Board) *Console {
	return &Console{phone: phone, board: board, out: os.Stdout}
}

func completer(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "call", Description: "Call a number: call <number>"},
		{Text: "answer", Description: "Answer the incoming call"},
		{Text: "hangup", Description: "Hang up"},
		{Text: "hold", Description: "Toggle hold"},
		{Text: "mute", Description: "Toggle mute"},
		{Text: "key", Description: "Send a DTMF tone: key <tone>"},
		{Text: "pb", Description: "Dial a phonebook entry: pb <index>"},
		{Text: "state", Description: "Show the phone"},
		{Text: "exit", Description: "Exit"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

// Loop reads commands until exit.
func (c *Console) Loop() {
	fmt.Fprintln(c.out, "Please select command.")
	for {
		for _, a := range c.board.TakeAlerts() {
			fmt.Fprintf(c.out, "!! %s\n", strings.TrimSpace(a))
		}

		t := prompt.Input("PHONE> ", completer,
			prompt.OptionTitle("GO SIP WEBPHONE 1.0.0"),
			prompt.OptionHistory([]string{"state", "hangup"}),
			prompt.OptionPrefixTextColor(prompt.Yellow),
			prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
			prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
			prompt.OptionSuggestionBGColor(prompt.DarkGray))

		if c.Execute(t) {
			fmt.Fprintln(c.out, "Exit now.")
			return
		}
	}
}

// Execute runs one command line and reports whether the console should quit.
func (c *Console) Execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "call", "c":
		if arg != "" {
			in, err := c.board.Input(widget.DialInput)
			if err != nil {
				fmt.Fprintf(c.out, "%v\n", err)
				return false
			}
			in.SetValue(arg)
		}
		c.phone.DialInput()
	case "answer", "a":
		c.phone.Answer()
	case "hangup", "h":
		c.phone.Hangup()
	case "hold":
		c.phone.ToggleHold()
	case "mute":
		c.phone.ToggleMute()
	case "key", "k":
		c.phone.PressKey(arg)
	case "pb":
		i, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintf(c.out, "Bad phonebook index %q\n", arg)
			return false
		}
		c.phone.DialPreset(i)
	case "state", "s":
		c.printState(c.board.Snapshot())
	case "exit":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command %q\n", fields[0])
	}
	return false
}

func (c *Console) printState(s widget.Snapshot) {
	fmt.Fprintf(c.out, "Server: %s\n", s.Texts[widget.ServerText])
	fmt.Fprintf(c.out, "Status: %s\n", s.Texts[widget.TargetText])
	fmt.Fprintf(c.out, "Dial: %s\n", s.Inputs[widget.DialInput])
	if dtmf := s.Texts[widget.DTMFText]; dtmf != "" {
		fmt.Fprintf(c.out, "DTMF: %s\n", dtmf)
	}

	enabled := []string{}
	for _, b := range s.Buttons {
		if !b.Disabled && !strings.HasPrefix(b.Name, "key-") {
			name := b.Name
			if b.Value != "" && b.Value != b.Text {
				name += "(" + b.Value + ")"
			}
			enabled = append(enabled, name)
		}
	}
	fmt.Fprintf(c.out, "Enabled: %s\n", strings.Join(enabled, " "))

	playing := []string{}
	for name, on := range s.Tones {
		if on {
			playing = append(playing, name)
		}
	}
	sort.Strings(playing)
	if len(playing) > 0 {
		fmt.Fprintf(c.out, "Playing: %s\n", strings.Join(playing, " "))
	}
}
