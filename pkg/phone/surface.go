package phone

// Button is a clickable control. Value carries toggle semantics ("hold",
// "mute" or empty) and classes carry the visual highlight.
type Button interface {
	Text() string
	Disabled() bool
	SetDisabled(disabled bool)
	Value() string
	SetValue(value string)
	AddClass(class string)
	RemoveClass(class string)
}

// Text is a read/write display region.
type Text interface {
	Text() string
	SetText(text string)
}

// Input is the free-text dial field.
type Input interface {
	Value() string
	SetValue(value string)
}

// Tone is an audio element. Play and Pause are best effort; their errors
// are logged and never propagated.
type Tone interface {
	Play() error
	Pause() error
}

// Alerter shows a blocking message to the user.
type Alerter interface {
	Alert(message string)
}

// Surface holds every UI handle the phone drives.
type Surface struct {
	Server Text
	Target Text
	DTMF   Text

	Call   Button
	Answer Button
	Hangup Button
	Hold   Button
	Mute   Button
	Keypad []Button
	// Phonebook buttons carry their number as value.
	Phonebook []Button

	Dial Input

	RingTone     Tone
	RingbackTone Tone
	DTMFTone     Tone

	Alert Alerter
}
