package phone

import (
	"fmt"
	"strings"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/ua"
)

// HandleEvent queues a signaling client event for the loop. It has the
// ua.EventHandler signature and never blocks.
func (p *Phone) HandleEvent(ev ua.Event) {
	p.post(func() { p.dispatch(ev) })
}

func (p *Phone) dispatch(ev ua.Event) {
	p.metrics.event(strings.TrimPrefix(fmt.Sprintf("%T", ev), "ua."))

	switch e := ev.(type) {
	case ua.CallCreated:
		p.callCreated()
	case ua.CallAnswered:
		p.callAnswered()
	case ua.CallHungup:
		p.callHungup()
	case ua.CallHold:
		p.log.Infof("[%s] Call hold %t", p.displayName, e.Held)
	case ua.CallReceived:
		p.callReceived()
	case ua.ServerConnect:
		p.serverConnect()
	case ua.ServerDisconnect:
		p.serverDisconnect(e.Err)
	default:
		p.log.Warnf("unhandled event %v", ev)
	}
}

func (p *Phone) callCreated() {
	p.log.Infof("[%s] Call created", p.displayName)
	p.ui.Call.SetDisabled(true)
	p.ui.Hangup.SetDisabled(false)
	p.ui.Answer.SetDisabled(true)
	p.answerable = false
	p.keypadDisabled(true)
	p.holdToggle(false)
	p.muteToggle(false)
	p.play("ringback", p.ui.RingbackTone)
	p.ui.Target.SetText("calling " + p.ui.Dial.Value())
}

func (p *Phone) callAnswered() {
	p.log.Infof("[%s] Call answered", p.displayName)
	p.answerable = false
	p.keypadDisabled(false)
	p.holdToggle(false)
	p.muteToggle(false)
	p.ui.Mute.SetDisabled(false)
	p.ui.Hold.SetDisabled(false)
	p.pause("ring", p.ui.RingTone)
	p.pause("ringback", p.ui.RingbackTone)
	p.ui.Target.SetText("connected to " + p.client.RemoteUser())
}

func (p *Phone) callHungup() {
	p.log.Infof("[%s] Call hangup", p.displayName)
	p.ui.Call.SetDisabled(false)
	p.ui.Hangup.SetDisabled(true)
	p.ui.Answer.SetDisabled(true)
	p.ui.Answer.RemoveClass(activeClass)
	p.answerable = false
	p.keypadDisabled(true)
	p.holdToggle(false)
	p.muteToggle(false)
	p.ui.Mute.SetDisabled(true)
	p.ui.Hold.SetDisabled(true)
	p.pause("ring", p.ui.RingTone)
	p.pause("ringback", p.ui.RingbackTone)
	p.ui.Target.SetText("OK")
	p.ui.Dial.SetValue("")
}

func (p *Phone) callReceived() {
	p.log.Infof("[%s] Call received", p.displayName)
	p.ui.Answer.SetDisabled(false)
	p.ui.Answer.AddClass(activeClass)
	p.answerable = true
	p.ui.Target.SetText("incoming call from " + p.client.RemoteUser())
	p.play("ring", p.ui.RingTone)
}

func (p *Phone) serverConnect() {
	p.ui.Target.SetText("OK")
	p.async(p.client.Register, func(err error) {
		if err != nil {
			p.metrics.failure("register")
			p.log.Errorf("[%s] failed to register: %v", p.displayName, err)
		}
	})
}

func (p *Phone) serverDisconnect(err error) {
	p.log.Info(err)
	p.ui.Call.SetDisabled(true)
	p.ui.Target.SetText(fmt.Sprintf("Disconnected: %v", err))
}
