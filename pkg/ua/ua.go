package ua

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/account"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/auth"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/media"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/session"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/stack"
	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/transport"
	"github.com/ghettovoice/gosip/util"
	"github.com/tevino/abool"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrNoSession     = errors.New("no session")
	ErrSessionExists = errors.New("session already exists")
	ErrInvalidDTMF   = errors.New("invalid dtmf tone")
	ErrInvalidState  = errors.New("invalid session state")
)

// UserAgentConfig is fixed at construction.
type UserAgentConfig struct {
	// Server is the WebSocket URL of the SIP server, e.g. wss://host:8089/ws.
	Server  string
	Profile *account.Profile
	Stack   *stack.SipStack
	// RemoteAudio names the sink remote audio is rendered to.
	RemoteAudio          string
	Handler              EventHandler
	RegisterStateHandler account.RegisterHandler
}

// transactor is the part of the SIP stack a UserAgent sends through.
type transactor interface {
	Request(req sip.Request) (sip.ClientTransaction, error)
	Respond(res sip.Response) (sip.ServerTransaction, error)
	CancelRequest(request sip.Request, response sip.Response)
	AckInviteRequest(request sip.Request, response sip.Response)
	RememberInviteRequest(request sip.Request)
	UserAgent() string
	Shutdown()
}

// UserAgent drives a single call at a time against one SIP server.
type UserAgent struct {
	config      *UserAgentConfig
	stack       transactor
	profile     *account.Profile
	network     string
	destination string
	viaHost     string
	sdp         *media.Builder
	connected   *abool.AtomicBool
	mu          sync.Mutex
	sess        *session.Session
	track       *media.Track
	held        bool
	register    *Register
	log         log.Logger
}

// NewUserAgent .
func NewUserAgent(config *UserAgentConfig, logger log.Logger) (*UserAgent, error) {
	if config.Stack == nil {
		return nil, fmt.Errorf("user agent: stack is required")
	}
	if config.Profile == nil || config.Profile.URI == nil {
		return nil, fmt.Errorf("user agent: profile with AOR is required")
	}

	server, err := url.Parse(config.Server)
	if err != nil {
		return nil, fmt.Errorf("user agent: parse server %q: %w", config.Server, err)
	}
	if server.Scheme != "ws" && server.Scheme != "wss" {
		return nil, fmt.Errorf("user agent: unsupported server scheme %q", server.Scheme)
	}
	port := server.Port()
	if port == "" {
		port = strconv.Itoa(int(sip.DefaultPort(stack.NetworkFromURL(server.Scheme))))
	}

	ua := &UserAgent{
		config:      config,
		stack:       config.Stack,
		profile:     config.Profile,
		network:     stack.NetworkFromURL(server.Scheme),
		destination: net.JoinHostPort(server.Hostname(), port),
		viaHost:     util.RandString(12) + ".invalid",
		sdp:         media.NewBuilder(config.Stack.IP().String(), 9),
		connected:   abool.New(),
		log:         logger.WithPrefix("UserAgent"),
	}

	config.Stack.OnRequest(sip.INVITE, ua.handleInvite)
	config.Stack.OnRequest(sip.ACK, ua.handleACK)
	config.Stack.OnRequest(sip.BYE, ua.handleBye)
	config.Stack.OnRequest(sip.INFO, ua.handleInfo)
	config.Stack.OnRequest(sip.OPTIONS, ua.handleOptions)
	config.Stack.OnConnectionError(ua.handleConnectionError)

	return ua, nil
}

func (ua *UserAgent) Log() log.Logger {
	return ua.log
}

func (ua *UserAgent) emit(ev Event) {
	ua.log.Debugf("event => %v", ev)
	if ua.config.Handler != nil {
		ua.config.Handler(ev)
	}
}

// IsConnected reports whether the transport to the server is up.
func (ua *UserAgent) IsConnected() bool {
	return ua.connected.IsSet()
}

// Connect probes the server with OPTIONS over the configured WebSocket
// transport. Any response proves the transport is up.
func (ua *UserAgent) Connect(ctx context.Context) error {
	if ua.connected.IsSet() {
		return nil
	}

	target := &sip.SipUri{FHost: ua.profile.URI.Host()}
	request, err := ua.buildRequest(sip.OPTIONS, ua.fromAddress(), &sip.Address{Uri: target}, nil, target, nil)
	if err != nil {
		return err
	}

	if _, err := ua.RequestWithContext(ctx, *request, nil); err != nil {
		var reqErr *sip.RequestError
		if !errors.As(err, &reqErr) || reqErr.Response == nil {
			return fmt.Errorf("connect %s: %w", ua.config.Server, err)
		}
	}

	ua.connected.Set()
	ua.emit(ServerConnect{})
	return nil
}

// Disconnect unregisters, ends any call and shuts the stack down. It does
// not fire ServerDisconnect.
func (ua *UserAgent) Disconnect(ctx context.Context) error {
	if !ua.connected.SetToIf(true, false) {
		return nil
	}

	ua.mu.Lock()
	sess := ua.sess
	register := ua.register
	ua.mu.Unlock()

	if sess != nil {
		if err := sess.End(ctx); err != nil {
			ua.log.Warnf("end session on disconnect: %v", err)
		}
		ua.clearSession(sess)
	}
	if register != nil {
		if err := register.Stop(ctx); err != nil {
			ua.log.Warnf("unregister on disconnect: %v", err)
		}
	}

	ua.stack.Shutdown()
	return nil
}

func (ua *UserAgent) handleConnectionError(connErr *transport.ConnectionError) {
	if !ua.connected.SetToIf(true, false) {
		return
	}
	ua.log.Errorf("connection lost: %v", connErr)
	ua.emit(ServerDisconnect{Err: connErr})
}

// RemoteUser is the user part of the remote party of the current call.
func (ua *UserAgent) RemoteUser() string {
	if sess := ua.session(); sess != nil {
		return sess.RemoteUser()
	}
	return ""
}

func (ua *UserAgent) session() *session.Session {
	ua.mu.Lock()
	defer ua.mu.Unlock()
	return ua.sess
}

func (ua *UserAgent) clearSession(sess *session.Session) bool {
	ua.mu.Lock()
	defer ua.mu.Unlock()
	if ua.sess != sess {
		return false
	}
	ua.sess = nil
	ua.track = nil
	ua.held = false
	return true
}

func (ua *UserAgent) authorizer() sip.Authorizer {
	if info := ua.profile.AuthInfo; info != nil {
		return auth.NewClientAuthorizer(info.AuthUser, info.Password)
	}
	return nil
}

func (ua *UserAgent) fromAddress() *sip.Address {
	from := &sip.Address{
		Uri:    ua.profile.URI.Clone(),
		Params: sip.NewParams().Add("tag", sip.String{Str: util.RandString(8)}),
	}
	if ua.profile.DisplayName != "" {
		from.DisplayName = sip.String{Str: ua.profile.DisplayName}
	}
	return from
}

func (ua *UserAgent) contact() *sip.Address {
	return ua.profile.Contact(ua.viaHost, nil, "ws")
}

func (ua *UserAgent) viaHop() sip.ViaHop {
	return sip.ViaHop{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       ua.network,
		Host:            ua.viaHost,
	}
}

func (ua *UserAgent) buildRequest(
	method sip.RequestMethod,
	from *sip.Address,
	to *sip.Address,
	contact *sip.Address,
	target sip.Uri,
	callID *sip.CallID) (*sip.Request, error) {

	via := ua.viaHop()
	via.Params = sip.NewParams().Add("branch", sip.String{Str: sip.GenerateBranch()})

	builder := sip.NewRequestBuilder().
		SetMethod(method).
		SetFrom(from).
		SetTo(to).
		SetRecipient(target.Clone()).
		AddVia(&via)

	if callID != nil {
		builder.SetCallID(callID)
	}
	if contact != nil {
		builder.SetContact(contact)
	}

	userAgent := sip.UserAgentHeader(ua.stack.UserAgent())
	builder.SetUserAgent(&userAgent)

	req, err := builder.Build()
	if err != nil {
		ua.log.Errorf("build %s request: %v", method, err)
		return nil, err
	}
	req.SetDestination(ua.destination)

	ua.log.Debugf("buildRequest %s => %v", method, req)
	return &req, nil
}
