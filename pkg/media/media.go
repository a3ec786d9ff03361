package media

import (
	"github.com/tevino/abool"
)

// Track is the local audio leg of a call. Muting only flips the local
// flag; the sink named by Remote is where remote audio is rendered.
type Track struct {
	Remote string
	muted  *abool.AtomicBool
}

// NewTrack returns an unmuted track bound to the given remote audio sink.
func NewTrack(remote string) *Track {
	return &Track{
		Remote: remote,
		muted:  abool.New(),
	}
}

func (t *Track) Mute() {
	t.muted.Set()
}

func (t *Track) Unmute() {
	t.muted.UnSet()
}

func (t *Track) IsMuted() bool {
	return t.muted.IsSet()
}
