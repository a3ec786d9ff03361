package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/auth"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = utils.NewLogrusLogger(log.DebugLevel, "session_test", nil)

type sent struct {
	mu       sync.Mutex
	requests []sip.Request
	err      error
}

func (s *sent) callback(_ context.Context, req sip.Request) (sip.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return sip.NewResponseFromRequest("", req, 200, "OK", ""), nil
}

func (s *sent) last(t *testing.T) sip.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

func viaTemplate() sip.ViaHop {
	return sip.ViaHop{ProtocolName: "SIP", ProtocolVersion: "2.0", Transport: "WSS", Host: "abc.invalid"}
}

func newInvite(t *testing.T) sip.Request {
	t.Helper()
	via := viaTemplate()
	via.Params = sip.NewParams().Add("branch", sip.String{Str: sip.GenerateBranch()})
	req, err := sip.NewRequestBuilder().
		SetMethod(sip.INVITE).
		SetFrom(&sip.Address{
			DisplayName: sip.String{Str: "SIP User"},
			Uri:         &sip.SipUri{FUser: sip.String{Str: "webrtc_309"}, FHost: "sipserver.local"},
			Params:      sip.NewParams().Add("tag", sip.String{Str: "local"}),
		}).
		SetTo(&sip.Address{Uri: &sip.SipUri{FUser: sip.String{Str: "1001"}, FHost: "sipserver.local"}}).
		SetRecipient(&sip.SipUri{FUser: sip.String{Str: "1001"}, FHost: "sipserver.local"}).
		AddVia(&via).
		SetBody("v=0\r\n").
		Build()
	require.NoError(t, err)
	req.SetDestination("sipserver.local:8089")
	return req
}

func newOutgoing(t *testing.T, cb RequestCallback) *Session {
	t.Helper()
	req := newInvite(t)
	callID, ok := req.CallID()
	require.True(t, ok)
	return NewInviteSession(cb, "UAC", nil, viaTemplate(), req, *callID, nil, Outgoing, logger)
}

func confirm(t *testing.T, s *Session) {
	t.Helper()
	res := sip.NewResponseFromRequest("", s.Request(), 200, "OK", "v=0\r\n")
	to, _ := res.To()
	to.Params = sip.NewParams().Add("tag", sip.String{Str: "remote"})
	res.AppendHeader(&sip.ContactHeader{Address: &sip.SipUri{FUser: sip.String{Str: "1001"}, FHost: "10.0.0.5"}})
	s.StoreResponse(res)
	require.NoError(t, s.SetState(InviteSent))
	require.NoError(t, s.SetState(Confirmed))
}

func TestTransitions(t *testing.T) {
	s := newOutgoing(t, nil)
	assert.Equal(t, New, s.Status())

	require.NoError(t, s.SetState(InviteSent))
	assert.True(t, s.IsInProgress())
	require.NoError(t, s.SetState(Provisional))
	require.NoError(t, s.SetState(Provisional))
	require.NoError(t, s.SetState(EarlyMedia))
	require.NoError(t, s.SetState(Confirmed))
	assert.True(t, s.IsEstablished())

	err := s.SetState(InviteReceived)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Confirmed, s.Status())

	require.NoError(t, s.SetState(Terminated))
	assert.True(t, s.IsEnded())
	assert.ErrorIs(t, s.SetState(Confirmed), ErrInvalidTransition)
}

func TestRemoteUser(t *testing.T) {
	s := newOutgoing(t, nil)
	assert.Equal(t, "1001", s.RemoteUser())
	assert.Equal(t, "", s.RemoteDisplayName())
}

func TestByeInDialog(t *testing.T) {
	out := &sent{}
	s := newOutgoing(t, out.callback)
	confirm(t, s)

	require.NoError(t, s.End(context.Background()))
	assert.Equal(t, Terminated, s.Status())

	bye := out.last(t)
	assert.Equal(t, sip.BYE, bye.Method())
	assert.Equal(t, "10.0.0.5", bye.Recipient().Host())
	assert.Equal(t, "sipserver.local:8089", bye.Destination())

	cseq, ok := bye.CSeq()
	require.True(t, ok)
	assert.Equal(t, uint32(2), cseq.SeqNo)
	assert.Equal(t, sip.BYE, cseq.MethodName)

	callID, _ := bye.CallID()
	inviteCallID, _ := s.Request().CallID()
	assert.Equal(t, inviteCallID.Value(), callID.Value())

	to, _ := bye.To()
	tag, ok := to.Params.Get("tag")
	require.True(t, ok)
	assert.Equal(t, "remote", tag.String())
}

func TestInfoAndReInvite(t *testing.T) {
	out := &sent{}
	s := newOutgoing(t, out.callback)
	confirm(t, s)

	require.NoError(t, s.Info(context.Background(), "Signal=5\r\nDuration=160\r\n", "application/dtmf-relay"))
	info := out.last(t)
	assert.Equal(t, sip.INFO, info.Method())
	assert.Equal(t, "Signal=5\r\nDuration=160\r\n", info.Body())

	require.NoError(t, s.ReInvite(context.Background(), "v=0\r\na=sendonly\r\n"))
	reinvite := out.last(t)
	assert.Equal(t, sip.INVITE, reinvite.Method())
	assert.Equal(t, "v=0\r\na=sendonly\r\n", s.LocalSdp())

	cseq, _ := reinvite.CSeq()
	assert.Equal(t, uint32(3), cseq.SeqNo)
}

func challenge(req sip.Request) sip.Response {
	res := sip.NewResponseFromRequest("", req, 401, "Unauthorized", "")
	res.AppendHeader(&sip.GenericHeader{HeaderName: "WWW-Authenticate", Contents: `Digest realm="asterisk",nonce="abc",qop="auth"`})
	return res
}

func seqNo(t *testing.T, req sip.Request) uint32 {
	t.Helper()
	cseq, ok := req.CSeq()
	require.True(t, ok)
	return cseq.SeqNo
}

func TestCSeqAfterChallengedInvite(t *testing.T) {
	out := &sent{}
	s := newOutgoing(t, out.callback)

	invite := s.Request()
	require.NoError(t, auth.NewClientAuthorizer("webrtc_000", "PASSWORD").AuthorizeRequest(invite, challenge(invite)))
	s.StoreRequest(invite)
	inviteSeq := seqNo(t, invite)
	require.Equal(t, uint32(2), inviteSeq)

	confirm(t, s)
	require.NoError(t, s.Info(context.Background(), "Signal=1\r\nDuration=160\r\n", "application/dtmf-relay"))
	assert.Greater(t, seqNo(t, out.last(t)), inviteSeq)
}

func TestCSeqAfterChallengedInDialogRequest(t *testing.T) {
	authorizer := auth.NewClientAuthorizer("webrtc_000", "PASSWORD")
	var mu sync.Mutex
	var seqs []uint32
	challenged := false
	cb := func(_ context.Context, req sip.Request) (sip.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		if !challenged {
			challenged = true
			if err := authorizer.AuthorizeRequest(req, challenge(req)); err != nil {
				return nil, err
			}
		}
		cseq, _ := req.CSeq()
		seqs = append(seqs, cseq.SeqNo)
		return sip.NewResponseFromRequest("", req, 200, "OK", ""), nil
	}

	s := newOutgoing(t, cb)
	confirm(t, s)

	require.NoError(t, s.ReInvite(context.Background(), "v=0\r\na=sendonly\r\n"))
	require.NoError(t, s.Bye(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint32{3, 4}, seqs)
}

func TestIncomingInviteKeepsLocalCSeq(t *testing.T) {
	req := newInvite(t)
	req.RemoveHeader("CSeq")
	req.AppendHeader(&sip.CSeq{SeqNo: 40, MethodName: sip.INVITE})
	callID, _ := req.CallID()
	contact := &sip.ContactHeader{Address: &sip.SipUri{FUser: sip.String{Str: "webrtc_309"}, FHost: "10.0.0.7"}}
	s := NewInviteSession(nil, "UAS", contact, viaTemplate(), req, *callID, nil, Incoming, logger)

	s.StoreRequest(req)
	assert.Equal(t, uint32(1), seqNo(t, s.makeRequest(sip.BYE)))
}

func TestInDialogError(t *testing.T) {
	out := &sent{err: errors.New("481")}
	s := newOutgoing(t, out.callback)
	confirm(t, s)

	assert.Error(t, s.End(context.Background()))
	assert.Equal(t, Confirmed, s.Status())
}

func TestEndEarlyCancels(t *testing.T) {
	s := newOutgoing(t, nil)
	require.NoError(t, s.SetState(InviteSent))

	assert.Error(t, s.End(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	s.SetCancel(cancel)
	require.NoError(t, s.End(context.Background()))
	assert.Error(t, ctx.Err())
}

func TestEndInvalidStatus(t *testing.T) {
	s := newOutgoing(t, nil)
	assert.Error(t, s.End(context.Background()))
}

func TestIncomingWithoutTransaction(t *testing.T) {
	req := newInvite(t)
	callID, _ := req.CallID()
	s := NewInviteSession(nil, "UAS", nil, viaTemplate(), req, *callID, nil, Incoming, logger)

	assert.Equal(t, "webrtc_309", s.RemoteUser())
	assert.Equal(t, "SIP User", s.RemoteDisplayName())
	assert.Error(t, s.Accept(200))
	assert.Error(t, s.Reject(486, "Busy Here"))
	assert.Error(t, s.Provisional(180, "Ringing"))
}
