package ua

import (
	"github.com/cloudwebrtc/go-sip-webphone/pkg/media"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/session"
	"github.com/ghettovoice/gosip/sip"
)

func (ua *UserAgent) respond(request sip.Request, tx sip.ServerTransaction, code sip.StatusCode, reason, body string) {
	response := sip.NewResponseFromRequest(request.MessageID(), request, code, reason, body)
	var err error
	if tx != nil {
		err = tx.Respond(response)
	} else {
		_, err = ua.stack.Respond(response)
	}
	if err != nil {
		ua.log.Errorf("respond %d to %s failed: %v", code, request.Short(), err)
	}
}

func (ua *UserAgent) sessionFor(request sip.Request) *session.Session {
	callID, ok := request.CallID()
	if !ok {
		return nil
	}
	ua.mu.Lock()
	defer ua.mu.Unlock()
	if ua.sess != nil && *ua.sess.CallID() == *callID {
		return ua.sess
	}
	return nil
}

func (ua *UserAgent) handleInvite(request sip.Request, tx sip.ServerTransaction) {
	ua.log.Infof("handleInvite => %s", request.Short())

	if sess := ua.sessionFor(request); sess != nil {
		ua.handleReInvite(sess, request, tx)
		return
	}

	callID, ok := request.CallID()
	if !ok {
		ua.respond(request, tx, 400, "Missing Call-ID", "")
		return
	}

	contact, _ := request.Contact()
	var transaction sip.Transaction = tx
	sess := session.NewInviteSession(ua.requestInDialog, "UAS", contact, ua.viaHop(), request, *callID, transaction, session.Incoming, ua.log)

	ua.mu.Lock()
	if ua.sess != nil {
		ua.mu.Unlock()
		ua.respond(request, tx, 486, "Busy Here", "")
		return
	}
	ua.sess = sess
	ua.track = media.NewTrack(ua.config.RemoteAudio)
	ua.mu.Unlock()

	if err := sess.SetState(session.InviteReceived); err != nil {
		ua.log.Errorf("incoming INVITE: %v", err)
		ua.clearSession(sess)
		ua.respond(request, tx, 500, "Server Internal Error", "")
		return
	}
	if err := sess.Provisional(180, "Ringing"); err != nil {
		ua.log.Warnf("send 180 Ringing: %v", err)
	}

	go ua.watchCancel(sess, tx)
	ua.emit(CallReceived{})
}

func (ua *UserAgent) watchCancel(sess *session.Session, tx sip.ServerTransaction) {
	select {
	case cancel, ok := <-tx.Cancels():
		if !ok || cancel == nil {
			return
		}
		ua.log.Infof("cancel => %s", cancel.Short())
		ua.respond(cancel, nil, 200, "OK", "")
		if sess.Status() != session.InviteReceived {
			return
		}
		if err := sess.Reject(487, "Request Terminated"); err != nil {
			ua.log.Warnf("respond 487: %v", err)
		}
		if err := sess.SetState(session.Canceled); err != nil {
			ua.log.Warnf("cancel: %v", err)
		}
		if ua.clearSession(sess) {
			ua.emit(CallHungup{})
		}
	case <-tx.Done():
	}
}

// handleReInvite answers a re-INVITE inside the current dialog, reporting a
// remote hold change.
func (ua *UserAgent) handleReInvite(sess *session.Session, request sip.Request, tx sip.ServerTransaction) {
	if !sess.IsEstablished() {
		ua.respond(request, tx, 491, "Request Pending", "")
		return
	}
	if err := sess.SetState(session.ReInviteReceived); err != nil {
		ua.log.Warnf("re-INVITE: %v", err)
	}

	dir := media.SendRecv
	if offer := request.Body(); offer != "" {
		remote, err := media.ParseDirection(offer)
		if err != nil {
			ua.respond(request, tx, 488, "Not Acceptable Here", "")
			return
		}
		dir = remote
	}

	ua.mu.Lock()
	if ua.held && dir == media.SendRecv {
		// we hold the call ourselves, keep our side sendonly
		dir = media.RecvOnly
	}
	ua.mu.Unlock()

	answer, err := ua.sdp.Build(dir.Reverse())
	if err != nil {
		ua.respond(request, tx, 500, "Server Internal Error", "")
		return
	}
	sess.ProvideAnswer(answer)

	response := sip.NewResponseFromRequest(request.MessageID(), request, 200, "OK", answer)
	contentType := sip.ContentType("application/sdp")
	response.RemoveHeader("Content-Type")
	response.AppendHeader(&contentType)
	if err := tx.Respond(response); err != nil {
		ua.log.Errorf("respond to re-INVITE: %v", err)
		return
	}

	ua.emit(CallHold{Held: dir.Held()})
}

func (ua *UserAgent) handleACK(request sip.Request, tx sip.ServerTransaction) {
	ua.log.Infof("handleACK => %s", request.Short())
	if sess := ua.sessionFor(request); sess != nil {
		if err := sess.SetState(session.Confirmed); err != nil {
			ua.log.Warnf("ACK: %v", err)
		}
	}
}

func (ua *UserAgent) handleBye(request sip.Request, tx sip.ServerTransaction) {
	ua.log.Infof("handleBye => %s", request.Short())

	sess := ua.sessionFor(request)
	if sess == nil {
		ua.respond(request, tx, 481, "Call/Transaction Does Not Exist", "")
		return
	}
	ua.respond(request, tx, 200, "OK", "")

	if err := sess.SetState(session.Terminated); err != nil {
		ua.log.Warnf("BYE: %v", err)
	}
	if ua.clearSession(sess) {
		ua.emit(CallHungup{})
	}
}

func (ua *UserAgent) handleInfo(request sip.Request, tx sip.ServerTransaction) {
	if ua.sessionFor(request) == nil {
		ua.respond(request, tx, 481, "Call/Transaction Does Not Exist", "")
		return
	}
	ua.log.Debugf("handleInfo => %s, body => %s", request.Short(), request.Body())
	ua.respond(request, tx, 200, "OK", "")
}

func (ua *UserAgent) handleOptions(request sip.Request, tx sip.ServerTransaction) {
	ua.respond(request, tx, 200, "OK", "")
}
