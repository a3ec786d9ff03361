package widget

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrNoSource = errors.New("tone has no source")
	ErrNotFound = errors.New("widget not found")
)

// Board holds named widgets. Every mutation bumps the revision and pushes a
// fresh snapshot to subscribers.
type Board struct {
	mu       sync.Mutex
	revision uint64

	buttons []*Button
	texts   map[string]*Text
	inputs  map[string]*Input
	tones   map[string]*Tone
	alerts  []string

	subs    map[int]chan Snapshot
	nextSub int
}

func NewBoard() *Board {
	return &Board{
		texts:  map[string]*Text{},
		inputs: map[string]*Input{},
		tones:  map[string]*Tone{},
		subs:   map[int]chan Snapshot{},
	}
}

// AddButton registers a button. Buttons keep their insertion order.
func (b *Board) AddButton(name, text, value string, disabled bool) *Button {
	btn := &Button{board: b, name: name, text: text, value: value, disabled: disabled}
	b.update(func() { b.buttons = append(b.buttons, btn) })
	return btn
}

func (b *Board) AddText(name, text string) *Text {
	t := &Text{board: b, name: name, text: text}
	b.update(func() { b.texts[name] = t })
	return t
}

func (b *Board) AddInput(name string) *Input {
	in := &Input{board: b, name: name}
	b.update(func() { b.inputs[name] = in })
	return in
}

func (b *Board) AddTone(name, src string) *Tone {
	t := &Tone{board: b, name: name, src: src}
	b.update(func() { b.tones[name] = t })
	return t
}

// AddOneShotTone adds a tone for short clips such as key beeps.
func (b *Board) AddOneShotTone(name, src string) *Tone {
	t := &Tone{board: b, name: name, src: src, oneShot: true}
	b.update(func() { b.tones[name] = t })
	return t
}

func (b *Board) Button(name string) (*Button, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, btn := range b.buttons {
		if btn.name == name {
			return btn, nil
		}
	}
	return nil, ErrNotFound
}

func (b *Board) Input(name string) (*Input, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if in, ok := b.inputs[name]; ok {
		return in, nil
	}
	return nil, ErrNotFound
}

// Alert queues a message until a front end takes it.
func (b *Board) Alert(message string) {
	b.update(func() { b.alerts = append(b.alerts, message) })
}

// TakeAlerts returns and clears the pending alerts.
func (b *Board) TakeAlerts() []string {
	var alerts []string
	b.update(func() {
		alerts = b.alerts
		b.alerts = nil
	})
	return alerts
}

// Subscribe returns a channel carrying the latest snapshot after each
// change, starting with the current one. Slow readers only see the most
// recent snapshot. The returned func unsubscribes.
func (b *Board) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	ch <- b.snapshot()
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

func (b *Board) update(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
	b.revision++

	if len(b.subs) == 0 {
		return
	}
	snap := b.snapshot()
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// snapshot must be called with mu held.
func (b *Board) snapshot() Snapshot {
	s := Snapshot{
		Revision: b.revision,
		Buttons:  make([]ButtonState, 0, len(b.buttons)),
		Texts:    make(map[string]string, len(b.texts)),
		Inputs:   make(map[string]string, len(b.inputs)),
		Tones:    make(map[string]bool, len(b.tones)),
		Plays:    map[string]uint64{},
		Alerts:   append([]string(nil), b.alerts...),
	}
	for _, btn := range b.buttons {
		classes := make([]string, 0, len(btn.classes))
		for c := range btn.classes {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		s.Buttons = append(s.Buttons, ButtonState{
			Name:     btn.name,
			Text:     btn.text,
			Disabled: btn.disabled,
			Value:    btn.value,
			Classes:  classes,
		})
	}
	for name, t := range b.texts {
		s.Texts[name] = t.text
	}
	for name, in := range b.inputs {
		s.Inputs[name] = in.value
	}
	for name, t := range b.tones {
		s.Tones[name] = t.playing
		if t.oneShot {
			s.Plays[name] = t.plays
		}
	}
	return s
}
