package ua

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/account"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/stack"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = utils.NewLogrusLogger(log.DebugLevel, "ua_test", nil)

func newTestAgent(t *testing.T, server string) (*UserAgent, error) {
	t.Helper()
	s, err := stack.NewSipStack(&stack.SipStackConfig{Host: "127.0.0.1"}, logger)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	uri, err := parser.ParseUri("sip:webrtc_309@sipserver.local")
	require.NoError(t, err)
	profile, err := account.NewProfile(uri, "SIP User", &account.AuthInfo{AuthUser: "webrtc_000", Password: "PASSWORD"}, 600)
	require.NoError(t, err)

	return NewUserAgent(&UserAgentConfig{
		Server:      server,
		Profile:     profile,
		Stack:       s,
		RemoteAudio: "remoteAudio",
	}, logger)
}

func TestNewUserAgent(t *testing.T) {
	ua, err := newTestAgent(t, "wss://sipserver.local:8089/ws")
	require.NoError(t, err)
	assert.Equal(t, "sipserver.local:8089", ua.destination)
	assert.Equal(t, "WSS", ua.network)
	assert.False(t, ua.IsConnected())

	ua, err = newTestAgent(t, "ws://sipserver.local/ws")
	require.NoError(t, err)
	assert.Equal(t, "WS", ua.network)

	_, err = newTestAgent(t, "http://sipserver.local")
	assert.Error(t, err)

	_, err = NewUserAgent(&UserAgentConfig{Server: "wss://x"}, logger)
	assert.Error(t, err)
}

func TestNotConnected(t *testing.T) {
	ua, err := newTestAgent(t, "wss://sipserver.local:8089/ws")
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, ua.Call(ctx, "sip:1001@sipserver.local", CallOptions{}), ErrNotConnected)
	assert.ErrorIs(t, ua.Register(ctx), ErrNotConnected)
	assert.NoError(t, ua.Unregister(ctx))
	assert.NoError(t, ua.Disconnect(ctx))
}

func TestWithoutSession(t *testing.T) {
	ua, err := newTestAgent(t, "wss://sipserver.local:8089/ws")
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, ua.Answer(ctx), ErrNoSession)
	assert.ErrorIs(t, ua.Hangup(ctx), ErrNoSession)
	assert.ErrorIs(t, ua.Hold(ctx), ErrNoSession)
	assert.ErrorIs(t, ua.Unhold(ctx), ErrNoSession)
	assert.ErrorIs(t, ua.SendDTMF(ctx, "5"), ErrNoSession)
	assert.Equal(t, "", ua.RemoteUser())

	ua.Mute()
	assert.False(t, ua.IsMuted())
	ua.Unmute()
	assert.False(t, ua.IsMuted())
}

func TestSendDTMFValidatesTone(t *testing.T) {
	ua, err := newTestAgent(t, "wss://sipserver.local:8089/ws")
	require.NoError(t, err)

	for _, tone := range []string{"", "55", "E", "x"} {
		assert.ErrorIs(t, ua.SendDTMF(context.Background(), tone), ErrInvalidDTMF, tone)
	}
}

func TestEventNames(t *testing.T) {
	assert.Equal(t, "CallHold(true)", CallHold{Held: true}.String())
	assert.Equal(t, "ServerDisconnect(timeout)", ServerDisconnect{Err: errors.New("timeout")}.String())
	assert.Equal(t, "CallCreated", CallCreated{}.String())
}

func TestMergeContext(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	b, cancelB := context.WithCancel(context.Background())

	ctx, cancel := mergeContext(a, b)
	defer cancel()
	cancelB()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("merged context not done after second parent")
	}
}
