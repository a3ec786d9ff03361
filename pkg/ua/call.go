package ua

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/media"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/session"
	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"
)

// CallOptions tunes an outgoing call.
type CallOptions struct {
	// InviteWithoutSdp sends the INVITE without an offer.
	InviteWithoutSdp bool
}

const dtmfTones = "0123456789ABCD#*"

// Call sends an INVITE to destination. It returns once the INVITE is on the
// wire; the outcome arrives as CallAnswered or CallHungup.
func (ua *UserAgent) Call(ctx context.Context, destination string, opts CallOptions) error {
	if !ua.connected.IsSet() {
		return ErrNotConnected
	}

	target, err := parser.ParseUri(destination)
	if err != nil {
		return fmt.Errorf("parse destination %q: %w", destination, err)
	}

	to := &sip.Address{Uri: target.Clone()}
	request, err := ua.buildRequest(sip.INVITE, ua.fromAddress(), to, ua.contact(), target, nil)
	if err != nil {
		return err
	}

	if !opts.InviteWithoutSdp {
		offer, err := ua.sdp.Build(media.SendRecv)
		if err != nil {
			return err
		}
		(*request).SetBody(offer, true)
		contentType := sip.ContentType("application/sdp")
		(*request).AppendHeader(&contentType)
	}

	callID, ok := (*request).CallID()
	if !ok {
		return fmt.Errorf("INVITE without Call-ID")
	}

	contact := ua.contact().AsContactHeader()
	sess := session.NewInviteSession(ua.requestInDialog, "UAC", contact, ua.viaHop(), *request, *callID, nil, session.Outgoing, ua.log)

	ua.mu.Lock()
	if ua.sess != nil {
		ua.mu.Unlock()
		return ErrSessionExists
	}
	ua.sess = sess
	ua.track = media.NewTrack(ua.config.RemoteAudio)
	ua.mu.Unlock()

	inviteCtx, cancel := context.WithCancel(context.Background())
	sess.SetCancel(cancel)

	if err := sess.SetState(session.InviteSent); err != nil {
		cancel()
		ua.clearSession(sess)
		return err
	}

	ua.emit(CallCreated{})
	go ua.runInvite(inviteCtx, cancel, sess, *request)
	return nil
}

func (ua *UserAgent) runInvite(ctx context.Context, cancel context.CancelFunc, sess *session.Session, request sip.Request) {
	defer cancel()

	resp, err := ua.requestWithContext(ctx, request, ua.authorizer(), func(provisional sip.Response) {
		sess.StoreResponse(provisional)
		next := session.Provisional
		if len(provisional.Body()) > 0 {
			next = session.EarlyMedia
		}
		if err := sess.SetState(next); err != nil {
			ua.log.Warnf("INVITE provisional: %v", err)
		}
	})
	// the authorizer may have bumped CSeq; later in-dialog requests follow it
	sess.StoreRequest(request)

	if err != nil {
		ua.log.Infof("INVITE failed: %v", err)
		next := session.Failure
		var reqErr *sip.RequestError
		if errors.As(err, &reqErr) && reqErr.Code == 487 {
			next = session.Canceled
		}
		if err := sess.SetState(next); err != nil {
			ua.log.Warnf("INVITE failure: %v", err)
		}
		if ua.clearSession(sess) {
			ua.emit(CallHungup{})
		}
		return
	}

	ua.log.Infof("INVITE: resp %d => %s", resp.StatusCode(), resp.Short())
	sess.StoreResponse(resp)
	if err := sess.SetState(session.Confirmed); err != nil {
		ua.log.Warnf("INVITE answered: %v", err)
		return
	}
	if ua.session() == sess {
		ua.emit(CallAnswered{})
	}
}

func (ua *UserAgent) requestInDialog(ctx context.Context, request sip.Request) (sip.Response, error) {
	return ua.RequestWithContext(ctx, request, ua.authorizer())
}

// Answer accepts the pending incoming call.
func (ua *UserAgent) Answer(ctx context.Context) error {
	sess := ua.session()
	if sess == nil {
		return ErrNoSession
	}
	if sess.Direction() != session.Incoming || sess.Status() != session.InviteReceived {
		return fmt.Errorf("answer in %s: %w", sess.Status(), ErrInvalidState)
	}

	dir := media.SendRecv
	if offer := sess.RemoteSdp(); offer != "" {
		if remote, err := media.ParseDirection(offer); err == nil {
			dir = remote.Reverse()
		}
	}
	answer, err := ua.sdp.Build(dir)
	if err != nil {
		return err
	}
	sess.ProvideAnswer(answer)

	if err := sess.Accept(200); err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	ua.emit(CallAnswered{})
	return nil
}

// Hangup ends the current call: CANCEL while an outgoing call is ringing,
// 603 for an unanswered incoming call, BYE once established.
func (ua *UserAgent) Hangup(ctx context.Context) error {
	sess := ua.session()
	if sess == nil {
		return ErrNoSession
	}

	outgoingEarly := sess.Direction() == session.Outgoing && sess.IsInProgress()
	if err := sess.End(ctx); err != nil {
		return err
	}
	// a canceled outgoing call is reported by runInvite once the 487 arrives
	if outgoingEarly {
		return nil
	}
	if ua.clearSession(sess) {
		ua.emit(CallHungup{})
	}
	return nil
}

// Hold puts the established call on hold with a sendonly re-INVITE.
func (ua *UserAgent) Hold(ctx context.Context) error {
	return ua.setHold(ctx, true)
}

// Unhold resumes a held call with a sendrecv re-INVITE.
func (ua *UserAgent) Unhold(ctx context.Context) error {
	return ua.setHold(ctx, false)
}

func (ua *UserAgent) setHold(ctx context.Context, hold bool) error {
	sess := ua.session()
	if sess == nil {
		return ErrNoSession
	}
	if !sess.IsEstablished() {
		return fmt.Errorf("hold in %s: %w", sess.Status(), ErrInvalidState)
	}

	ua.mu.Lock()
	held := ua.held
	ua.mu.Unlock()
	if held == hold {
		return nil
	}

	dir := media.SendRecv
	if hold {
		dir = media.SendOnly
	}
	offer, err := ua.sdp.Build(dir)
	if err != nil {
		return err
	}
	if err := sess.ReInvite(ctx, offer); err != nil {
		return err
	}

	ua.mu.Lock()
	ua.held = hold
	ua.mu.Unlock()

	ua.emit(CallHold{Held: hold})
	return nil
}

// IsHeld reports whether the current call is on hold locally.
func (ua *UserAgent) IsHeld() bool {
	ua.mu.Lock()
	defer ua.mu.Unlock()
	return ua.held
}

// Mute silences the local audio of the current call. Without a call it
// does nothing, and IsMuted keeps reporting false.
func (ua *UserAgent) Mute() {
	ua.mu.Lock()
	track := ua.track
	ua.mu.Unlock()
	if track == nil {
		ua.log.Warn("mute without a session")
		return
	}
	track.Mute()
}

// Unmute restores the local audio of the current call.
func (ua *UserAgent) Unmute() {
	ua.mu.Lock()
	track := ua.track
	ua.mu.Unlock()
	if track == nil {
		ua.log.Warn("unmute without a session")
		return
	}
	track.Unmute()
}

func (ua *UserAgent) IsMuted() bool {
	ua.mu.Lock()
	track := ua.track
	ua.mu.Unlock()
	return track != nil && track.IsMuted()
}

// SendDTMF sends one tone as SIP INFO with an application/dtmf-relay body.
func (ua *UserAgent) SendDTMF(ctx context.Context, tone string) error {
	if len(tone) != 1 || !strings.Contains(dtmfTones, strings.ToUpper(tone)) {
		return fmt.Errorf("%w: %q", ErrInvalidDTMF, tone)
	}
	sess := ua.session()
	if sess == nil {
		return ErrNoSession
	}
	if !sess.IsEstablished() {
		return fmt.Errorf("dtmf in %s: %w", sess.Status(), ErrInvalidState)
	}

	body := fmt.Sprintf("Signal=%s\r\nDuration=160\r\n", strings.ToUpper(tone))
	return sess.Info(ctx, body, "application/dtmf-relay")
}
