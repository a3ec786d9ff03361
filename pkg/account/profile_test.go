package account

import (
	"strings"
	"testing"

	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfile(t *testing.T) {
	uri, err := parser.ParseUri("sip:webrtc_309@sipserver.local")
	require.NoError(t, err)

	p, err := NewProfile(uri, "SIP User", &AuthInfo{AuthUser: "webrtc_000", Password: "PASSWORD"}, 600)
	require.NoError(t, err)

	assert.Equal(t, "webrtc_309", p.User())
	assert.True(t, strings.HasPrefix(p.InstanceID, `"<urn:uuid:`), p.InstanceID)

	other, err := NewProfile(uri, "SIP User", nil, 600)
	require.NoError(t, err)
	assert.NotEqual(t, p.InstanceID, other.InstanceID)
}

func TestContact(t *testing.T) {
	uri, err := parser.ParseUri("sip:webrtc_309@sipserver.local")
	require.NoError(t, err)
	p, err := NewProfile(uri, "SIP User", nil, 600)
	require.NoError(t, err)

	contact := p.Contact("abc.invalid", nil, "ws")
	assert.Equal(t, "webrtc_309", contact.Uri.User().String())
	assert.Equal(t, "abc.invalid", contact.Uri.Host())
	assert.Nil(t, contact.Uri.Port())
	transport, ok := contact.Uri.UriParams().Get("transport")
	require.True(t, ok)
	assert.Equal(t, "ws", transport.String())
	assert.True(t, contact.Params.Has("+sip.instance"))

	port := sip.Port(5060)
	assert.Equal(t, sip.Port(5060), *p.Contact("10.0.0.1", &port, "udp").Uri.Port())
}

func TestEmptyProfileUser(t *testing.T) {
	assert.Equal(t, "", (&Profile{}).User())
}
