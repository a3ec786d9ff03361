package auth

import (
	"strings"
	"testing"

	"github.com/ghettovoice/gosip/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChallenge(t *testing.T) {
	c, err := ParseChallenge(`Digest realm="testrealm@host.com", qop="auth,auth-int", nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093", opaque="5ccc069c403ebaf9f0171e9517f40e41"`)
	require.NoError(t, err)

	assert.Equal(t, "testrealm@host.com", c.Realm)
	assert.Equal(t, "dcd98b7102dd2f0e8b11d0f600bfb0c093", c.Nonce)
	assert.Equal(t, "5ccc069c403ebaf9f0171e9517f40e41", c.Opaque)
	assert.Equal(t, []string{"auth", "auth-int"}, c.QOP)
	assert.Equal(t, "MD5", c.Algorithm)
}

func TestParseChallengeErrors(t *testing.T) {
	for _, value := range []string{
		`Basic realm="x"`,
		`Digest realm="x"`,
		`Digest realm="x",nonce="y",algorithm=SHA-256`,
	} {
		_, err := ParseChallenge(value)
		assert.Error(t, err, value)
	}
}

func TestRespondWithQOP(t *testing.T) {
	c, err := ParseChallenge(`Digest realm="testrealm@host.com",qop="auth",nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093",opaque="5ccc069c403ebaf9f0171e9517f40e41"`)
	require.NoError(t, err)

	creds := c.Respond("GET", "/dir/index.html", "Mufasa", "Circle Of Life", "0a4f113b", 1)
	assert.Equal(t, "6629fae49393a05397450978507c4ef1", creds.Response)
	assert.Equal(t, "00000001", creds.NC)
	assert.Contains(t, creds.String(), `qop=auth,nc=00000001,cnonce="0a4f113b"`)
	assert.Contains(t, creds.String(), `opaque="5ccc069c403ebaf9f0171e9517f40e41"`)
}

func TestRespondWithoutQOP(t *testing.T) {
	c := &Challenge{Realm: "asterisk", Nonce: "abc", Algorithm: "MD5"}
	creds := c.Respond("REGISTER", "sip:sipserver.local", "webrtc_000", "PASSWORD", "ignored", 1)

	ha1 := md5Hex("webrtc_000:asterisk:PASSWORD")
	ha2 := md5Hex("REGISTER:sip:sipserver.local")
	assert.Equal(t, md5Hex(ha1+":abc:"+ha2), creds.Response)
	assert.NotContains(t, creds.String(), "qop")
}

func newRegister(t *testing.T) sip.Request {
	t.Helper()
	uri := &sip.SipUri{FUser: sip.String{Str: "webrtc_309"}, FHost: "sipserver.local"}
	via := &sip.ViaHop{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       "WSS",
		Host:            "abc.invalid",
		Params:          sip.NewParams().Add("branch", sip.String{Str: sip.GenerateBranch()}),
	}
	req, err := sip.NewRequestBuilder().
		SetMethod(sip.REGISTER).
		SetFrom(&sip.Address{Uri: uri, Params: sip.NewParams().Add("tag", sip.String{Str: "t1"})}).
		SetTo(&sip.Address{Uri: uri}).
		SetRecipient(&sip.SipUri{FHost: "sipserver.local"}).
		AddVia(via).
		Build()
	require.NoError(t, err)
	return req
}

func TestClientAuthorizer(t *testing.T) {
	for _, tc := range []struct {
		status     sip.StatusCode
		challenge  string
		authorized string
	}{
		{401, "WWW-Authenticate", "Authorization"},
		{407, "Proxy-Authenticate", "Proxy-Authorization"},
	} {
		req := newRegister(t)
		res := sip.NewResponseFromRequest("", req, tc.status, "Unauthorized", "")
		res.AppendHeader(&sip.GenericHeader{HeaderName: tc.challenge, Contents: `Digest realm="asterisk",nonce="abc",qop="auth"`})

		cseq, _ := req.CSeq()
		seq := cseq.SeqNo
		via, _ := req.ViaHop()
		branch, _ := via.Params.Get("branch")
		branchBefore := branch.String()

		authorizer := NewClientAuthorizer("webrtc_000", "PASSWORD")
		require.NoError(t, authorizer.AuthorizeRequest(req, res))

		hdrs := req.GetHeaders(tc.authorized)
		require.Len(t, hdrs, 1)
		assert.True(t, strings.HasPrefix(hdrs[0].Value(), `Digest username="webrtc_000",realm="asterisk"`))
		assert.Contains(t, hdrs[0].Value(), "nc=00000001")

		cseq, _ = req.CSeq()
		assert.Equal(t, seq+1, cseq.SeqNo)
		via, _ = req.ViaHop()
		branch, _ = via.Params.Get("branch")
		assert.NotEqual(t, branchBefore, branch.String())

		require.NoError(t, authorizer.AuthorizeRequest(req, res))
		hdrs = req.GetHeaders(tc.authorized)
		require.Len(t, hdrs, 1)
		assert.Contains(t, hdrs[0].Value(), "nc=00000002")
	}
}

func TestAuthorizeRequestErrors(t *testing.T) {
	req := newRegister(t)

	res := sip.NewResponseFromRequest("", req, 403, "Forbidden", "")
	assert.Error(t, AuthorizeRequest(req, res, "u", "p", 1))

	res = sip.NewResponseFromRequest("", req, 401, "Unauthorized", "")
	assert.Error(t, AuthorizeRequest(req, res, "u", "p", 1))
	assert.Error(t, AuthorizeRequest(req, res, "", "p", 1))
}
