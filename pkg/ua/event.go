package ua

import "fmt"

// Event is one of the lifecycle notifications a UserAgent delivers to its
// EventHandler. The set is closed: CallCreated, CallAnswered, CallHungup,
// CallReceived, CallHold, ServerConnect and ServerDisconnect.
type Event interface {
	fmt.Stringer
	isEvent()
}

// EventHandler receives every Event. It is called from stack goroutines and
// must not block.
type EventHandler func(ev Event)

// CallCreated fires once an outgoing INVITE has been sent.
type CallCreated struct{}

// CallAnswered fires when a call becomes established in either direction.
type CallAnswered struct{}

// CallHungup fires when the current call ends for any reason.
type CallHungup struct{}

// CallReceived fires on a new incoming INVITE.
type CallReceived struct{}

// CallHold fires after a hold or unhold completed, locally or remotely.
type CallHold struct {
	Held bool
}

// ServerConnect fires once the transport to the server is up.
type ServerConnect struct{}

// ServerDisconnect fires when an established transport is lost.
type ServerDisconnect struct {
	Err error
}

func (CallCreated) isEvent()      {}
func (CallAnswered) isEvent()     {}
func (CallHungup) isEvent()       {}
func (CallReceived) isEvent()     {}
func (CallHold) isEvent()         {}
func (ServerConnect) isEvent()    {}
func (ServerDisconnect) isEvent() {}

func (CallCreated) String() string  { return "CallCreated" }
func (CallAnswered) String() string { return "CallAnswered" }
func (CallHungup) String() string   { return "CallHungup" }
func (CallReceived) String() string { return "CallReceived" }

func (e CallHold) String() string { return fmt.Sprintf("CallHold(%t)", e.Held) }

func (ServerConnect) String() string { return "ServerConnect" }

func (e ServerDisconnect) String() string {
	return fmt.Sprintf("ServerDisconnect(%v)", e.Err)
}
