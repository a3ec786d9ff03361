package ua

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/account"
	"github.com/ghettovoice/gosip/sip"
)

// refreshMargin is how long before expiry a registration is renewed.
const refreshMargin = 10 * time.Second

// Register keeps one binding of the profile's AOR alive.
type Register struct {
	ua        *UserAgent
	mu        sync.Mutex
	timer     *time.Timer
	profile   *account.Profile
	recipient sip.Uri
	request   *sip.Request
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewRegister(ua *UserAgent, profile *account.Profile, recipient sip.Uri) *Register {
	r := &Register{
		ua:        ua,
		profile:   profile,
		recipient: recipient,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Register sends REGISTER with the profile's expiry, starting the refresh
// cycle on success. Calling it again re-registers.
func (ua *UserAgent) Register(ctx context.Context) error {
	if !ua.connected.IsSet() {
		return ErrNotConnected
	}

	ua.mu.Lock()
	if ua.register == nil {
		recipient := &sip.SipUri{FHost: ua.profile.URI.Host()}
		ua.register = NewRegister(ua, ua.profile, recipient)
	}
	r := ua.register
	ua.mu.Unlock()

	return r.SendRegister(ctx, ua.profile.Expires)
}

// Unregister removes the binding and stops refreshing it.
func (ua *UserAgent) Unregister(ctx context.Context) error {
	ua.mu.Lock()
	r := ua.register
	ua.register = nil
	ua.mu.Unlock()

	if r == nil {
		return nil
	}
	return r.Stop(ctx)
}

// SendRegister sends REGISTER with expires; it is abandoned once the
// register is stopped.
func (r *Register) SendRegister(ctx context.Context, expires uint32) error {
	ctx, cancel := mergeContext(ctx, r.ctx)
	defer cancel()
	return r.send(ctx, expires)
}

func (r *Register) send(ctx context.Context, expires uint32) error {
	ua := r.ua
	profile := r.profile

	r.mu.Lock()
	if r.request == nil {
		to := &sip.Address{Uri: profile.URI.Clone()}
		request, err := ua.buildRequest(sip.REGISTER, ua.fromAddress(), to, ua.contact(), r.recipient, nil)
		if err != nil {
			r.mu.Unlock()
			ua.Log().Errorf("Register: err = %v", err)
			return err
		}
		r.request = request
	} else if cseq, ok := (*r.request).CSeq(); ok {
		(*r.request).RemoveHeader("CSeq")
		(*r.request).AppendHeader(&sip.CSeq{SeqNo: cseq.SeqNo + 1, MethodName: sip.REGISTER})
		if viaHop, ok := (*r.request).ViaHop(); ok {
			viaHop.Params.Add("branch", sip.String{Str: sip.GenerateBranch()})
		}
	}
	(*r.request).RemoveHeader("Expires")
	expiresHeader := sip.Expires(expires)
	(*r.request).AppendHeader(&expiresHeader)
	request := *r.request
	r.mu.Unlock()

	resp, err := ua.RequestWithContext(ctx, request, ua.authorizer())
	if err != nil {
		ua.Log().Errorf("Request [%s] failed, err => %v", sip.REGISTER, err)
		var code sip.StatusCode = 500
		reason := err.Error()
		var reqErr *sip.RequestError
		if errors.As(err, &reqErr) {
			code = sip.StatusCode(reqErr.Code)
			reason = reqErr.Reason
		}
		r.notify(account.RegisterState{
			Account:    *profile,
			StatusCode: code,
			Reason:     reason,
		})
		return err
	}

	ua.Log().Debugf("%s resp %d => %s", sip.REGISTER, resp.StatusCode(), resp.String())

	granted := expires
	if hdrs := resp.GetHeaders("Expires"); len(hdrs) > 0 {
		if e, ok := hdrs[0].(*sip.Expires); ok {
			granted = uint32(*e)
		}
	}

	if granted > 0 {
		r.schedule(granted)
	} else {
		r.stopTimer()
	}

	r.notify(account.RegisterState{
		Account:    *profile,
		Response:   resp,
		StatusCode: resp.StatusCode(),
		Reason:     resp.Reason(),
		Expiration: granted,
	})
	return nil
}

func (r *Register) notify(state account.RegisterState) {
	if h := r.ua.config.RegisterStateHandler; h != nil {
		h(state)
	}
}

func (r *Register) schedule(expires uint32) {
	wait := time.Duration(expires) * time.Second
	if wait > 2*refreshMargin {
		wait -= refreshMargin
	} else {
		wait /= 2
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(wait, func() {
		if r.ctx.Err() != nil {
			return
		}
		if err := r.SendRegister(r.ctx, expires); err != nil {
			r.ua.Log().Warnf("refresh registration: %v", err)
		}
	})
}

func (r *Register) stopTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Stop unregisters and cancels any pending refresh.
func (r *Register) Stop(ctx context.Context) error {
	r.stopTimer()
	r.cancel()

	r.mu.Lock()
	sent := r.request != nil
	r.mu.Unlock()
	if !sent {
		return nil
	}

	return r.send(ctx, 0)
}

// mergeContext returns a context done when either parent is done.
func mergeContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
