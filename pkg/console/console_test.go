package console

import (
	"bytes"
	"testing"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/widget"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	intents []string
}

func (r *recorder) DialInput()           { r.intents = append(r.intents, "call") }
func (r *recorder) DialPreset(i int)     { r.intents = append(r.intents, "pb") }
func (r *recorder) Answer()              { r.intents = append(r.intents, "answer") }
func (r *recorder) Hangup()              { r.intents = append(r.intents, "hangup") }
func (r *recorder) ToggleHold()          { r.intents = append(r.intents, "hold") }
func (r *recorder) ToggleMute()          { r.intents = append(r.intents, "mute") }
func (r *recorder) PressKey(tone string) { r.intents = append(r.intents, "key"+tone) }

func newTestConsole() (*Console, *recorder, *bytes.Buffer, *widget.Board) {
	board, _ := widget.NewPhoneBoard(widget.DefaultKeys, nil)
	rec := &recorder{}
	out := &bytes.Buffer{}
	c := NewConsole(rec, board)
	c.out = out
	return c, rec, out, board
}

func TestExecute(t *testing.T) {
	c, rec, out, board := newTestConsole()

	for _, line := range []string{"", "call 1001", "answer", "hold", "mute", "key 5", "pb 0", "pb x", "hangup", "bogus"} {
		assert.False(t, c.Execute(line), line)
	}

	assert.Equal(t, []string{"call", "answer", "hold", "mute", "key5", "pb", "hangup"}, rec.intents)
	assert.Equal(t, "1001", board.Snapshot().Inputs[widget.DialInput])
	assert.Contains(t, out.String(), `Bad phonebook index "x"`)
	assert.Contains(t, out.String(), `Unknown command "bogus"`)
	assert.True(t, c.Execute("exit"))
}

func TestExecuteState(t *testing.T) {
	c, _, out, board := newTestConsole()
	btn, err := board.Button(widget.CallButton)
	assert.NoError(t, err)
	btn.SetDisabled(false)

	c.Execute("state")
	assert.Contains(t, out.String(), "Enabled: call\n")
}
