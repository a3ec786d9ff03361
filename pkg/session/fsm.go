package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// ErrInvalidTransition is returned by SetState for a status change the
// INVITE dialog does not allow.
var ErrInvalidTransition = errors.New("invalid session transition")

func statuses(s ...Status) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = string(v)
	}
	return out
}

var early = []Status{InviteSent, Provisional, EarlyMedia}

func transitions() fsm.Events {
	return fsm.Events{
		{Name: string(InviteSent), Src: statuses(New), Dst: string(InviteSent)},
		{Name: string(InviteReceived), Src: statuses(New), Dst: string(InviteReceived)},
		{Name: string(Provisional), Src: statuses(early...), Dst: string(Provisional)},
		{Name: string(EarlyMedia), Src: statuses(early...), Dst: string(EarlyMedia)},
		{Name: string(WaitingForACK), Src: statuses(InviteReceived), Dst: string(WaitingForACK)},
		{Name: string(Confirmed), Src: statuses(InviteSent, Provisional, EarlyMedia, WaitingForACK, Confirmed, ReInviteReceived), Dst: string(Confirmed)},
		{Name: string(ReInviteReceived), Src: statuses(Confirmed, ReInviteReceived), Dst: string(ReInviteReceived)},
		{Name: string(Canceled), Src: statuses(InviteSent, Provisional, EarlyMedia, InviteReceived), Dst: string(Canceled)},
		{Name: string(Failure), Src: statuses(InviteSent, Provisional, EarlyMedia, InviteReceived, WaitingForACK), Dst: string(Failure)},
		{Name: string(Terminated), Src: statuses(InviteSent, Provisional, EarlyMedia, InviteReceived, WaitingForACK, Confirmed, ReInviteReceived, Canceled, Failure), Dst: string(Terminated)},
	}
}

func newStateMachine(onChange func(from, to Status)) *fsm.FSM {
	return fsm.NewFSM(
		string(New),
		transitions(),
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if onChange != nil {
					onChange(Status(e.Src), Status(e.Dst))
				}
			},
		},
	)
}

func transition(m *fsm.FSM, to Status) error {
	err := m.Event(context.Background(), string(to))
	if err == nil {
		return nil
	}
	var same fsm.NoTransitionError
	if errors.As(err, &same) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Current(), to)
}
