package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/util"
	"github.com/looplab/fsm"
)

// RequestCallback sends an in-dialog request and waits for its final response.
type RequestCallback func(ctx context.Context, request sip.Request) (sip.Response, error)

// Session is one INVITE dialog, outgoing (UAC) or incoming (UAS).
type Session struct {
	lock           sync.Mutex
	requestCallbck RequestCallback
	state          *fsm.FSM
	callID         sip.CallID
	offer          string
	answer         string
	request        sip.Request
	response       sip.Response
	transaction    sip.Transaction
	cancelInvite   context.CancelFunc
	direction      Direction
	uaType         string // UAS | UAC
	contact        *sip.ContactHeader
	via            sip.ViaHop
	localURI       sip.Address
	remoteURI      sip.Address
	remoteTarget   sip.Uri
	routeSet       []sip.Uri
	destination    string
	localCSeq      uint32
	logger         log.Logger
}

// NewInviteSession creates the dialog for req. contact is our own Contact for
// UAC sessions and the caller's Contact for UAS sessions; via is the template
// hop used for requests we originate inside the dialog.
func NewInviteSession(reqcb RequestCallback, uaType string,
	contact *sip.ContactHeader, via sip.ViaHop, req sip.Request, cid sip.CallID,
	tx sip.Transaction, dir Direction, logger log.Logger) *Session {
	s := &Session{
		requestCallbck: reqcb,
		uaType:         uaType,
		callID:         cid,
		transaction:    tx,
		direction:      dir,
		contact:        contact,
		via:            via,
		logger:         logger.WithPrefix("Session"),
	}
	s.state = newStateMachine(func(from, to Status) {
		s.logger.Debugf("session %s: %s -> %s", cid, from, to)
	})

	to, _ := req.To()
	from, _ := req.From()

	if uaType == "UAS" {
		if to.Params == nil {
			to.Params = sip.NewParams()
		}
		if !to.Params.Has("tag") {
			to.Params.Add("tag", sip.String{Str: util.RandString(8)})
		}
		s.localURI = sip.Address{DisplayName: to.DisplayName, Uri: to.Address, Params: to.Params}
		s.remoteURI = sip.Address{DisplayName: from.DisplayName, Uri: from.Address, Params: from.Params}
		if contact != nil {
			s.remoteTarget = contact.Address
		}
		s.offer = req.Body()
		s.destination = req.Source()
		s.routeSet = recordRoutes(req, false)
	} else {
		s.localURI = sip.Address{DisplayName: from.DisplayName, Uri: from.Address, Params: from.Params}
		s.remoteURI = sip.Address{DisplayName: to.DisplayName, Uri: to.Address, Params: to.Params}
		s.remoteTarget = req.Recipient()
		s.offer = req.Body()
		s.destination = req.Destination()
		if cseq, ok := req.CSeq(); ok {
			s.localCSeq = cseq.SeqNo
		}
	}

	s.request = req
	return s
}

func recordRoutes(msg sip.Message, reverse bool) []sip.Uri {
	var uris []sip.Uri
	for _, h := range msg.GetHeaders("Record-Route") {
		if rr, ok := h.(*sip.RecordRouteHeader); ok {
			for _, addr := range rr.Addresses {
				uris = append(uris, addr.Clone())
			}
		}
	}
	if reverse {
		for i, j := 0, len(uris)-1; i < j; i, j = i+1, j-1 {
			uris[i], uris[j] = uris[j], uris[i]
		}
	}
	return uris
}

func (s *Session) Log() log.Logger {
	return s.logger
}

func (s *Session) String() string {
	return "Local: " + s.localURI.String() + ", Remote: " + s.remoteURI.String()
}

func (s *Session) LocalSdp() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.uaType == "UAC" {
		return s.offer
	}
	return s.answer
}

func (s *Session) RemoteSdp() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.uaType == "UAS" {
		return s.offer
	}
	return s.answer
}

func (s *Session) CallID() *sip.CallID {
	return &s.callID
}

func (s *Session) Request() sip.Request {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.request
}

func (s *Session) Response() sip.Response {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.response
}

// RemoteUser is the user part of the remote party's address.
func (s *Session) RemoteUser() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.remoteURI.Uri == nil || s.remoteURI.Uri.User() == nil {
		return ""
	}
	return s.remoteURI.Uri.User().String()
}

// RemoteDisplayName is the display name of the remote party, if any.
func (s *Session) RemoteDisplayName() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.remoteURI.DisplayName == nil {
		return ""
	}
	return s.remoteURI.DisplayName.String()
}

func (s *Session) IsInProgress() bool {
	switch s.Status() {
	case InviteSent, Provisional, EarlyMedia, InviteReceived:
		return true
	default:
		return false
	}
}

func (s *Session) IsEstablished() bool {
	switch s.Status() {
	case WaitingForACK, Confirmed, ReInviteReceived:
		return true
	default:
		return false
	}
}

func (s *Session) IsEnded() bool {
	switch s.Status() {
	case Failure, Canceled, Terminated:
		return true
	default:
		return false
	}
}

// StoreRequest replaces the INVITE the dialog is built from, e.g. after a
// digest challenge re-sent it with a higher CSeq.
func (s *Session) StoreRequest(request sip.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.request = request
	// an incoming INVITE carries the remote CSeq space
	if s.uaType == "UAC" {
		s.followCSeq(request)
	}
}

// followCSeq keeps localCSeq at or above the CSeq of a request we sent.
// Caller holds the lock.
func (s *Session) followCSeq(request sip.Request) {
	if cseq, ok := request.CSeq(); ok && cseq.SeqNo > s.localCSeq {
		s.localCSeq = cseq.SeqNo
	}
}

// StoreResponse records a response to our INVITE: the remote tag, the
// answer SDP and, on 2xx, the remote target and route set.
func (s *Session) StoreResponse(response sip.Response) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.uaType == "UAC" {
		to, _ := response.To()
		if to != nil && to.Params != nil && to.Params.Has("tag") {
			s.remoteURI = sip.Address{DisplayName: to.DisplayName, Uri: to.Address, Params: to.Params}
		}

		if sdp := response.Body(); len(sdp) > 0 {
			s.answer = sdp
		}

		if response.IsSuccess() {
			if contact, ok := response.Contact(); ok {
				s.remoteTarget = contact.Address
			}
			s.routeSet = recordRoutes(response, true)
		}
	}
	s.response = response
}

func (s *Session) StoreTransaction(tx sip.Transaction) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.transaction = tx
}

// SetCancel stores the function that abandons a pending outgoing INVITE.
func (s *Session) SetCancel(cancel context.CancelFunc) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cancelInvite = cancel
}

// SetState moves the dialog to status, rejecting transitions an INVITE
// dialog can not take.
func (s *Session) SetState(status Status) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return transition(s.state, status)
}

func (s *Session) Status() Status {
	return Status(s.state.Current())
}

func (s *Session) Direction() Direction {
	return s.direction
}

// ProvideOffer .
func (s *Session) ProvideOffer(sdp string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.offer = sdp
}

// ProvideAnswer .
func (s *Session) ProvideAnswer(sdp string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.answer = sdp
}

// Info sends SIP INFO.
func (s *Session) Info(ctx context.Context, content string, contentType string) error {
	req := s.makeRequest(sip.INFO)
	req.SetBody(content, true)
	hdr := sip.ContentType(contentType)
	req.AppendHeader(&hdr)
	_, err := s.sendRequest(ctx, req)
	return err
}

// ReInvite sends a re-INVITE carrying sdp as the new local description.
func (s *Session) ReInvite(ctx context.Context, sdp string) error {
	req := s.makeRequest(sip.INVITE)
	req.SetBody(sdp, true)
	hdr := sip.ContentType("application/sdp")
	req.AppendHeader(&hdr)
	if s.contact != nil && s.uaType == "UAC" {
		req.AppendHeader(s.contact.Clone())
	}

	resp, err := s.sendRequest(ctx, req)
	if err != nil {
		return err
	}

	s.lock.Lock()
	if s.uaType == "UAC" {
		s.offer = sdp
		if body := resp.Body(); len(body) > 0 {
			s.answer = body
		}
	} else {
		s.answer = sdp
		if body := resp.Body(); len(body) > 0 {
			s.offer = body
		}
	}
	s.lock.Unlock()
	return nil
}

// Bye sends BYE.
func (s *Session) Bye(ctx context.Context) error {
	req := s.makeRequest(sip.BYE)
	_, err := s.sendRequest(ctx, req)
	return err
}

func (s *Session) sendRequest(ctx context.Context, req sip.Request) (sip.Response, error) {
	s.Log().Debugf(s.uaType+" send request: %v => \n%v", req.Method(), req)
	resp, err := s.requestCallbck(ctx, req)
	// a 401/407 retry goes out with a bumped CSeq
	s.lock.Lock()
	s.followCSeq(req)
	s.lock.Unlock()
	return resp, err
}

func (s *Session) serverTransaction() (sip.ServerTransaction, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	tx, ok := s.transaction.(sip.ServerTransaction)
	if !ok {
		return nil, fmt.Errorf("session %s has no server transaction", s.callID)
	}
	return tx, nil
}

// Reject rejects the incoming INVITE with a final non-2xx response.
func (s *Session) Reject(statusCode sip.StatusCode, reason string) error {
	tx, err := s.serverTransaction()
	if err != nil {
		return err
	}
	request := s.Request()
	s.Log().Debugf("Reject: Request => %s, body => %s", request.Short(), request.Body())
	response := sip.NewResponseFromRequest(request.MessageID(), request, statusCode, reason, "")
	s.setLocalTag(response)
	return tx.Respond(response)
}

// End finishes the session in whatever way its status requires: CANCEL for
// an early outgoing call, 603 for an unanswered incoming one, BYE otherwise.
func (s *Session) End(ctx context.Context) error {
	status := s.Status()
	switch status {
	case InviteSent, Provisional, EarlyMedia:
		s.Log().Info("Canceling session.")
		s.lock.Lock()
		cancel := s.cancelInvite
		s.lock.Unlock()
		if cancel == nil {
			return fmt.Errorf("session %s: no pending INVITE to cancel", s.callID)
		}
		cancel()
		return nil

	case InviteReceived:
		s.Log().Info("Rejecting session")
		if err := s.Reject(603, "Decline"); err != nil {
			return err
		}
		return s.SetState(Failure)

	case WaitingForACK, Confirmed, ReInviteReceived:
		s.Log().Info("Terminating session.")
		if err := s.Bye(ctx); err != nil {
			return err
		}
		return s.SetState(Terminated)
	}

	err := fmt.Errorf("invalid status: %v", status)
	s.Log().Errorf("Session::End() %v", err)
	return err
}

// Accept answers the incoming INVITE with statusCode and the provided answer SDP.
func (s *Session) Accept(statusCode sip.StatusCode) error {
	tx, err := s.serverTransaction()
	if err != nil {
		return err
	}

	s.lock.Lock()
	answer := s.answer
	s.lock.Unlock()
	if len(answer) == 0 {
		return fmt.Errorf("answer sdp is empty")
	}

	request := s.Request()
	response := sip.NewResponseFromRequest(request.MessageID(), request, statusCode, "OK", answer)
	s.setLocalTag(response)

	contentType := sip.ContentType("application/sdp")
	response.RemoveHeader("Content-Type")
	response.AppendHeader(&contentType)
	if s.contact != nil {
		response.AppendHeader(s.localContact())
	}
	response.SetBody(answer, true)

	s.lock.Lock()
	s.response = response
	s.lock.Unlock()

	if err := tx.Respond(response); err != nil {
		return err
	}
	return s.SetState(WaitingForACK)
}

// Provisional sends a provisional code 100|180|183
func (s *Session) Provisional(statusCode sip.StatusCode, reason string) error {
	tx, err := s.serverTransaction()
	if err != nil {
		return err
	}
	request := s.Request()
	response := sip.NewResponseFromRequest(request.MessageID(), request, statusCode, reason, "")
	s.setLocalTag(response)
	return tx.Respond(response)
}

func (s *Session) setLocalTag(response sip.Response) {
	s.lock.Lock()
	local := s.localURI.Clone()
	s.lock.Unlock()
	response.RemoveHeader("To")
	response.AppendHeader(local.AsToHeader())
}

func (s *Session) localContact() *sip.ContactHeader {
	s.lock.Lock()
	defer s.lock.Unlock()
	return &sip.ContactHeader{
		DisplayName: s.localURI.DisplayName,
		Address:     s.localURI.Uri.Clone(),
	}
}

func (s *Session) makeRequest(method sip.RequestMethod) sip.Request {
	s.lock.Lock()
	defer s.lock.Unlock()

	inviteRequest := s.request
	newRequest := sip.NewRequest(
		"",
		method,
		s.remoteTarget.Clone(),
		inviteRequest.SipVersion(),
		[]sip.Header{},
		"",
		inviteRequest.Fields().
			WithFields(log.Fields{
				"invite_request_id": inviteRequest.MessageID(),
			}),
	)

	via := s.via.Clone()
	via.Params = sip.NewParams().Add("branch", sip.String{Str: sip.GenerateBranch()})
	newRequest.AppendHeader(sip.ViaHeader{via})

	if len(s.routeSet) > 0 {
		newRequest.AppendHeader(&sip.RouteHeader{Addresses: s.routeSet})
	}

	newRequest.AppendHeader(s.localURI.Clone().AsFromHeader())
	newRequest.AppendHeader(s.remoteURI.Clone().AsToHeader())

	callID := s.callID
	newRequest.AppendHeader(&callID)

	s.localCSeq++
	newRequest.AppendHeader(&sip.CSeq{SeqNo: s.localCSeq, MethodName: method})

	maxForwardsHeader := sip.MaxForwards(MaxForwards)
	newRequest.AppendHeader(&maxForwardsHeader)

	if s.destination != "" {
		newRequest.SetDestination(s.destination)
	}

	return newRequest
}
