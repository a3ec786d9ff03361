package phone

import (
	"context"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/ua"
)

// SignalingClient is the SIP user agent the phone drives. Its call and
// registration state is authoritative; the phone only reflects it.
type SignalingClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Register(ctx context.Context) error

	Call(ctx context.Context, destination string, opts ua.CallOptions) error
	Answer(ctx context.Context) error
	Hangup(ctx context.Context) error
	Hold(ctx context.Context) error
	Unhold(ctx context.Context) error

	Mute()
	Unmute()
	IsMuted() bool

	SendDTMF(ctx context.Context, tone string) error

	// RemoteUser is the user part of the remote identity of the current call.
	RemoteUser() string
}

var _ SignalingClient = (*ua.UserAgent)(nil)
