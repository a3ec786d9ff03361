package phone

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/ua"
	"github.com/gammazero/deque"
	"github.com/ghettovoice/gosip/log"
	"github.com/tevino/abool"
)

const (
	holdValue   = "hold"
	muteValue   = "mute"
	activeClass = "btn-primary"
	holdSuffix  = " (HOLD)"

	// LeavePrompt is what BeforeUnload asks the user to confirm.
	LeavePrompt = "Leaving will disconnect your phone. Do you want to leave?"
)

var validTarget = regexp.MustCompile(`^[0-9]+$`)

// Config is fixed at construction.
type Config struct {
	// Server is the SIP domain used to build destinations and shown once connected.
	Server      string
	DisplayName string
	Client      SignalingClient
	Surface     Surface
	Metrics     *Metrics
}

// Phone binds UI controls to a SignalingClient. Every user action and every
// client event runs on one goroutine (Run), in the order it was posted.
type Phone struct {
	client      SignalingClient
	ui          Surface
	server      string
	displayName string
	metrics     *Metrics
	log         log.Logger

	mu      sync.Mutex
	queue   deque.Deque
	wake    chan struct{}
	running *abool.AtomicBool

	// toggles mirrored into the hold, mute and answer controls
	held       bool
	muted      bool
	answerable bool
}

// State is a copy of the phone's toggle flags.
type State struct {
	Held       bool
	Muted      bool
	Answerable bool
}

// NewPhone .
func NewPhone(config Config, logger log.Logger) (*Phone, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("phone: signaling client is required")
	}
	if err := config.Surface.validate(); err != nil {
		return nil, fmt.Errorf("phone: %w", err)
	}

	metrics := config.Metrics
	if metrics == nil {
		var err error
		if metrics, err = NewMetrics(nil); err != nil {
			return nil, err
		}
	}

	return &Phone{
		client:      config.Client,
		ui:          config.Surface,
		server:      config.Server,
		displayName: config.DisplayName,
		metrics:     metrics,
		log:         logger.WithPrefix("Phone"),
		wake:        make(chan struct{}, 1),
		running:     abool.New(),
	}, nil
}

func (s Surface) validate() error {
	missing := []string{}
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	check("server", s.Server != nil)
	check("target", s.Target != nil)
	check("dtmf", s.DTMF != nil)
	check("call", s.Call != nil)
	check("answer", s.Answer != nil)
	check("hangup", s.Hangup != nil)
	check("hold", s.Hold != nil)
	check("mute", s.Mute != nil)
	check("dial", s.Dial != nil)
	check("ringtone", s.RingTone != nil)
	check("ringbacktone", s.RingbackTone != nil)
	check("dtmftone", s.DTMFTone != nil)
	check("alert", s.Alert != nil)
	if len(missing) > 0 {
		return fmt.Errorf("surface is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Run drains posted work until ctx is done. Work posted before Run starts
// waits in the queue.
func (p *Phone) Run(ctx context.Context) error {
	if !p.running.SetToIf(false, true) {
		return fmt.Errorf("phone: already running")
	}
	defer p.running.UnSet()

	for {
		for {
			fn, ok := p.next()
			if !ok {
				break
			}
			fn()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		}
	}
}

func (p *Phone) next() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() == 0 {
		return nil, false
	}
	return p.queue.PopFront().(func()), true
}

func (p *Phone) post(fn func()) {
	p.mu.Lock()
	p.queue.PushBack(fn)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// async runs op off the loop and posts done with its result back onto it.
// Issued operations are never cancelled.
func (p *Phone) async(op func(ctx context.Context) error, done func(err error)) {
	go func() {
		err := op(context.Background())
		p.post(func() { done(err) })
	}()
}

// fail logs err and alerts the user with message followed by err.
func (p *Phone) fail(action, message string, err error) {
	p.metrics.failure(action)
	p.log.Errorf("[%s] failed to %s: %v", p.displayName, action, err)
	p.ui.Alert.Alert(message + err.Error())
}

// State returns the toggle flags as the loop sees them. It blocks until Run
// reaches it, so it must not be called from posted work.
func (p *Phone) State() State {
	done := make(chan State, 1)
	p.post(func() {
		done <- State{Held: p.held, Muted: p.muted, Answerable: p.answerable}
	})
	return <-done
}

// Start disables the call controls and connects the client, as a page does
// on load.
func (p *Phone) Start() {
	p.post(func() {
		p.metrics.action("connect")
		p.ui.Call.SetDisabled(true)
		p.ui.Hangup.SetDisabled(true)
		p.async(p.client.Connect, func(err error) {
			if err != nil {
				p.metrics.failure("connect")
				p.log.Errorf("[%s] failed to connect: %v", p.displayName, err)
				p.ui.Server.SetText("Failed to connect: " + err.Error())
				return
			}
			p.ui.Call.SetDisabled(false)
			p.ui.Hangup.SetDisabled(true)
			p.ui.Server.SetText(p.server)
		})
	})
}

// BeforeUnload returns the prompt shown before the user leaves.
func (p *Phone) BeforeUnload() string {
	return LeavePrompt
}

// Unload disconnects the client. It blocks until the disconnect finished.
func (p *Phone) Unload(ctx context.Context) error {
	p.metrics.action("disconnect")
	return p.client.Disconnect(ctx)
}

// Dial places a call to target, which must be digits only.
func (p *Phone) Dial(target string) {
	p.post(func() { p.makeCall(target) })
}

// DialInput dials the dial field's value when the call control is enabled.
func (p *Phone) DialInput() {
	p.post(func() {
		if p.ignored("call", p.ui.Call) {
			return
		}
		p.makeCall(p.ui.Dial.Value())
	})
}

// DialEnter dials the dial field's value, as pressing enter in it does.
func (p *Phone) DialEnter() {
	p.post(func() { p.makeCall(p.ui.Dial.Value()) })
}

// DialPreset dials the number of the i-th phonebook button.
func (p *Phone) DialPreset(i int) {
	p.post(func() {
		if i < 0 || i >= len(p.ui.Phonebook) {
			p.log.Infof("no phonebook entry %d", i)
			return
		}
		p.makeCall(p.ui.Phonebook[i].Value())
	})
}

func (p *Phone) ignored(name string, b Button) bool {
	if b.Disabled() {
		p.log.Debugf("ignored click on disabled %s", name)
		return true
	}
	return false
}

func (p *Phone) makeCall(target string) {
	if !validTarget.MatchString(target) {
		p.log.Info("invalid dial")
		return
	}
	p.metrics.action("call")
	p.ui.Call.SetDisabled(true)
	p.ui.Hangup.SetDisabled(true)

	destination := fmt.Sprintf("sip:%s@%s", target, p.server)
	p.async(func(ctx context.Context) error {
		return p.client.Call(ctx, destination, ua.CallOptions{InviteWithoutSdp: false})
	}, func(err error) {
		if err != nil {
			p.fail("call", "Failed to place call.\n", err)
		}
	})
}

// Answer accepts the incoming call.
func (p *Phone) Answer() {
	p.post(func() {
		if p.ignored("answer", p.ui.Answer) {
			return
		}
		p.metrics.action("answer")
		p.async(p.client.Answer, func(err error) {
			if err != nil {
				p.fail("answer", "Failed to answer\n", err)
				return
			}
			p.ui.Answer.SetDisabled(true)
			p.ui.Call.SetDisabled(true)
			p.ui.Hangup.SetDisabled(false)
			p.keypadDisabled(false)
		})
	})
}

// Hangup ends the current call. Controls are disabled before the client
// answers and stay so if it fails.
func (p *Phone) Hangup() {
	p.post(func() {
		if p.ignored("hangup", p.ui.Hangup) {
			return
		}
		p.metrics.action("hangup")
		p.ui.Call.SetDisabled(true)
		p.ui.Hangup.SetDisabled(true)
		p.muteToggle(false)
		p.holdToggle(false)
		p.async(p.client.Hangup, func(err error) {
			if err != nil {
				p.fail("hangup", "Failed to hangup call.\n", err)
			}
		})
	})
}

// ToggleHold holds or resumes the call depending on the hold control's value.
func (p *Phone) ToggleHold() {
	p.post(func() {
		if p.ignored("hold", p.ui.Hold) {
			return
		}
		if p.ui.Hold.Value() == holdValue {
			p.metrics.action("unhold")
			p.holdToggle(false)
			p.async(p.client.Unhold, func(err error) {
				if err != nil {
					p.fail("unhold", "Failed to unhold call.\n", err)
				}
			})
			return
		}
		p.metrics.action("hold")
		p.holdToggle(true)
		p.async(p.client.Hold, func(err error) {
			if err != nil {
				p.fail("hold", "Failed to hold call.\n", err)
			}
		})
	})
}

// ToggleMute mutes or unmutes depending on the mute control's value, then
// checks the client agrees.
func (p *Phone) ToggleMute() {
	p.post(func() {
		if p.ignored("mute", p.ui.Mute) {
			return
		}
		if p.ui.Mute.Value() == muteValue {
			p.metrics.action("unmute")
			p.client.Unmute()
			p.muteToggle(false)
			if p.client.IsMuted() {
				p.metrics.failure("unmute")
				p.log.Errorf("[%s] failed to unmute call", p.displayName)
				p.ui.Alert.Alert("Failed to unmute call.\n")
			}
			return
		}
		p.metrics.action("mute")
		p.client.Mute()
		p.muteToggle(true)
		if !p.client.IsMuted() {
			p.metrics.failure("mute")
			p.log.Errorf("[%s] failed to mute call", p.displayName)
			p.ui.Alert.Alert("Failed to mute call.\n")
		}
	})
}

// PressKey plays the DTMF tone and sends tone, appending it to the DTMF
// display once sent.
func (p *Phone) PressKey(tone string) {
	p.post(func() {
		if tone == "" {
			return
		}
		if key := p.key(tone); key != nil && p.ignored("key "+tone, key) {
			return
		}
		p.metrics.action("dtmf")
		p.play("dtmf", p.ui.DTMFTone)
		p.async(func(ctx context.Context) error {
			return p.client.SendDTMF(ctx, tone)
		}, func(err error) {
			if err != nil {
				p.metrics.failure("dtmf")
				p.log.Warnf("[%s] failed to send dtmf %s: %v", p.displayName, tone, err)
				return
			}
			p.ui.DTMF.SetText(p.ui.DTMF.Text() + tone)
		})
	})
}

func (p *Phone) key(tone string) Button {
	for _, k := range p.ui.Keypad {
		if k.Text() == tone {
			return k
		}
	}
	return nil
}

func (p *Phone) keypadDisabled(disabled bool) {
	for _, k := range p.ui.Keypad {
		k.SetDisabled(disabled)
	}
	p.ui.DTMF.SetText("")
}

func (p *Phone) holdToggle(down bool) {
	p.held = down
	if down {
		p.ui.Target.SetText(p.ui.Target.Text() + holdSuffix)
		p.ui.Hold.SetValue(holdValue)
		p.ui.Hold.AddClass(activeClass)
		return
	}
	p.ui.Target.SetText(strings.Replace(p.ui.Target.Text(), holdSuffix, "", 1))
	p.ui.Hold.SetValue("")
	p.ui.Hold.RemoveClass(activeClass)
}

func (p *Phone) muteToggle(down bool) {
	p.muted = down
	if down {
		p.ui.Mute.SetValue(muteValue)
		p.ui.Mute.AddClass(activeClass)
		return
	}
	p.ui.Mute.SetValue("")
	p.ui.Mute.RemoveClass(activeClass)
}

func (p *Phone) play(name string, t Tone) {
	if err := t.Play(); err != nil {
		p.log.Debugf("play %s tone: %v", name, err)
	}
}

func (p *Phone) pause(name string, t Tone) {
	if err := t.Pause(); err != nil {
		p.log.Debugf("pause %s tone: %v", name, err)
	}
}
