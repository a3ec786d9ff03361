package widget

// Button is a clickable control with a value and a set of classes.
type Button struct {
	board    *Board
	name     string
	text     string
	value    string
	disabled bool
	classes  map[string]struct{}
}

func (w *Button) Name() string { return w.name }

func (w *Button) Text() string {
	w.board.mu.Lock()
	defer w.board.mu.Unlock()
	return w.text
}

func (w *Button) Disabled() bool {
	w.board.mu.Lock()
	defer w.board.mu.Unlock()
	return w.disabled
}

func (w *Button) SetDisabled(disabled bool) {
	w.board.update(func() { w.disabled = disabled })
}

func (w *Button) Value() string {
	w.board.mu.Lock()
	defer w.board.mu.Unlock()
	return w.value
}

func (w *Button) SetValue(value string) {
	w.board.update(func() { w.value = value })
}

func (w *Button) AddClass(class string) {
	w.board.update(func() {
		if w.classes == nil {
			w.classes = map[string]struct{}{}
		}
		w.classes[class] = struct{}{}
	})
}

func (w *Button) RemoveClass(class string) {
	w.board.update(func() { delete(w.classes, class) })
}

func (w *Button) HasClass(class string) bool {
	w.board.mu.Lock()
	defer w.board.mu.Unlock()
	_, ok := w.classes[class]
	return ok
}

// Text is a display region.
type Text struct {
	board *Board
	name  string
	text  string
}

func (w *Text) Text() string {
	w.board.mu.Lock()
	defer w.board.mu.Unlock()
	return w.text
}

func (w *Text) SetText(text string) {
	w.board.update(func() { w.text = text })
}

// Input is a free-text field.
type Input struct {
	board *Board
	name  string
	value string
}

func (w *Input) Value() string {
	w.board.mu.Lock()
	defer w.board.mu.Unlock()
	return w.value
}

func (w *Input) SetValue(value string) {
	w.board.update(func() { w.value = value })
}

// Tone tracks whether an audio element is playing. Front ends render the
// flag; the board itself makes no sound. A one-shot tone never stays
// playing: each Play bumps a counter front ends play the clip once for.
type Tone struct {
	board   *Board
	name    string
	src     string
	oneShot bool
	playing bool
	plays   uint64
}

func (w *Tone) Play() error {
	if w.src == "" {
		return ErrNoSource
	}
	w.board.update(func() {
		if w.oneShot {
			w.plays++
			return
		}
		w.playing = true
	})
	return nil
}

func (w *Tone) Pause() error {
	if w.src == "" {
		return ErrNoSource
	}
	w.board.update(func() { w.playing = false })
	return nil
}

func (w *Tone) Playing() bool {
	w.board.mu.Lock()
	defer w.board.mu.Unlock()
	return w.playing
}

// Plays counts Play calls on a one-shot tone.
func (w *Tone) Plays() uint64 {
	w.board.mu.Lock()
	defer w.board.mu.Unlock()
	return w.plays
}
