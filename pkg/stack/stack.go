package stack

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/transaction"
	"github.com/ghettovoice/gosip/transport"
	"github.com/ghettovoice/gosip/util"
)

const (
	// DefaultUserAgent .
	DefaultUserAgent = "Go SIP WebPhone/1.0.0"
)

// ErrStopped is returned when sending through a stack that was shut down.
var ErrStopped = fmt.Errorf("can not send through stopped stack")

// RequestHandler is a callback that will be called on the incoming request
// of the certain method
// tx argument can be nil for 2xx ACK request
type RequestHandler func(req sip.Request, tx sip.ServerTransaction)

// SipStackConfig describes available options
type SipStackConfig struct {
	// Local IP address used by the transport layer, auto resolved when empty.
	Host      string
	UserAgent string
	// Extensions are advertised in Supported on INVITE, REGISTER and OPTIONS.
	Extensions []string
}

// SipStack wraps the gosip transport and transaction layers for a single
// client that talks to one outbound server.
type SipStack struct {
	tp                    transport.Layer
	tx                    transaction.Layer
	ip                    net.IP
	userAgent             string
	inShutdown            int32
	hwg                   *sync.WaitGroup
	hmu                   *sync.RWMutex
	requestHandlers       map[sip.RequestMethod]RequestHandler
	handleConnectionError func(err *transport.ConnectionError)
	extensions            []string
	invites               map[transaction.TxKey]sip.Request
	invitesLock           *sync.RWMutex
	log                   log.Logger
}

// NewSipStack creates new instance of SipStack.
func NewSipStack(config *SipStackConfig, logger log.Logger) (*SipStack, error) {
	if config == nil {
		config = &SipStackConfig{}
	}

	logger = logger.WithPrefix("SipStack")

	var ip net.IP
	if config.Host != "" {
		addr, err := net.ResolveIPAddr("ip", config.Host)
		if err != nil {
			return nil, fmt.Errorf("resolve host IP failed: %w", err)
		}
		ip = addr.IP
	} else {
		v, err := util.ResolveSelfIP()
		if err != nil {
			return nil, fmt.Errorf("resolve host IP failed: %w", err)
		}
		ip = v
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	s := &SipStack{
		ip:              ip,
		userAgent:       userAgent,
		hwg:             new(sync.WaitGroup),
		hmu:             new(sync.RWMutex),
		requestHandlers: make(map[sip.RequestMethod]RequestHandler),
		extensions:      config.Extensions,
		invites:         make(map[transaction.TxKey]sip.Request),
		invitesLock:     new(sync.RWMutex),
	}

	s.log = logger.WithFields(log.Fields{
		"sip_stack_ptr": fmt.Sprintf("%p", s),
	})

	s.tp = transport.NewLayer(ip, net.DefaultResolver, nil, logger.WithPrefix("transport.Layer"))

	sipTp := &sipTransport{
		tpl: s.tp,
		s:   s,
	}
	s.tx = transaction.NewLayer(sipTp, logger.WithPrefix("transaction.Layer"))
	go s.serve()

	return s, nil
}

// Log .
func (s *SipStack) Log() log.Logger {
	return s.log
}

// IP is the local address the transport layer was bound to.
func (s *SipStack) IP() net.IP {
	return s.ip
}

// UserAgent is the value placed in User-Agent headers.
func (s *SipStack) UserAgent() string {
	return s.userAgent
}

func (s *SipStack) serve() {
	for {
		select {
		case tx, ok := <-s.tx.Requests():
			if !ok {
				return
			}
			s.hwg.Add(1)
			go s.handleRequest(tx.Origin(), tx)
		case ack, ok := <-s.tx.Acks():
			if !ok {
				return
			}
			s.hwg.Add(1)
			go s.handleRequest(ack, nil)
		case response, ok := <-s.tx.Responses():
			if !ok {
				return
			}
			logger := s.Log().WithFields(map[string]interface{}{
				"sip_response": response.Short(),
			})
			logger.Warn("received not matched response")
			if key, err := transaction.MakeClientTxKey(response); err == nil {
				s.invitesLock.RLock()
				inviteRequest, ok := s.invites[key]
				s.invitesLock.RUnlock()
				if ok {
					go s.AckInviteRequest(inviteRequest, response)
				}
			}
		case err, ok := <-s.tx.Errors():
			if !ok {
				return
			}
			s.Log().Errorf("received SIP transaction error: %s", err)
		case err, ok := <-s.tp.Errors():
			if !ok {
				return
			}

			s.Log().Errorf("received SIP transport error: %s", err)

			if connError, ok := err.(*transport.ConnectionError); ok {
				s.hmu.RLock()
				handler := s.handleConnectionError
				s.hmu.RUnlock()
				if handler != nil {
					handler(connError)
				}
			}
		}
	}
}

func (s *SipStack) handleRequest(req sip.Request, tx sip.ServerTransaction) {
	defer s.hwg.Done()

	logger := s.Log().WithFields(req.Fields())
	logger.Debugf("routing incoming SIP request...")

	s.hmu.RLock()
	handler, ok := s.requestHandlers[req.Method()]
	s.hmu.RUnlock()

	if !ok {
		logger.Warnf("SIP request %v handler not found", req.Method())

		if req.IsAck() {
			return
		}
		res := sip.NewResponseFromRequest("", req, 405, "Method Not Allowed", "")
		if _, err := s.Respond(res); err != nil {
			logger.Errorf("respond '405 Method Not Allowed' failed: %s", err)
		}
		return
	}

	handler(req, tx)
}

// Request sends req in a new client transaction.
func (s *SipStack) Request(req sip.Request) (sip.ClientTransaction, error) {
	if s.shuttingDown() {
		return nil, ErrStopped
	}

	return s.tx.Request(s.prepareRequest(req))
}

// RememberInviteRequest keeps an answered INVITE for a minute so that
// retransmitted 2xx responses can be ACKed.
func (s *SipStack) RememberInviteRequest(request sip.Request) {
	if key, err := transaction.MakeClientTxKey(request); err == nil {
		s.invitesLock.Lock()
		s.invites[key] = request
		s.invitesLock.Unlock()

		time.AfterFunc(time.Minute, func() {
			s.invitesLock.Lock()
			delete(s.invites, key)
			s.invitesLock.Unlock()
		})
	} else {
		s.Log().WithFields(map[string]interface{}{
			"sip_request": request.Short(),
		}).Errorf("remember of the request failed: %s", err)
	}
}

func (s *SipStack) AckInviteRequest(request sip.Request, response sip.Response) {
	ackRequest := sip.NewAckRequest("", request, response, "", log.Fields{
		"sent_at": time.Now(),
	})
	ackRequest.SetSource(request.Source())
	ackRequest.SetDestination(request.Destination())
	if err := s.Send(ackRequest); err != nil {
		s.Log().WithFields(map[string]interface{}{
			"invite_request":  request.Short(),
			"invite_response": response.Short(),
			"ack_request":     ackRequest.Short(),
		}).Errorf("send ACK request failed: %s", err)
	}
}

func (s *SipStack) CancelRequest(request sip.Request, response sip.Response) {
	cancelRequest := sip.NewCancelRequest("", request, log.Fields{
		"sent_at": time.Now(),
	})
	cancelRequest.SetDestination(request.Destination())
	if err := s.Send(cancelRequest); err != nil {
		fields := map[string]interface{}{
			"invite_request": request.Short(),
			"cancel_request": cancelRequest.Short(),
		}
		if response != nil {
			fields["invite_response"] = response.Short()
		}
		s.Log().WithFields(fields).Errorf("send CANCEL request failed: %s", err)
	}
}

// prepareRequest makes sure the top Via carries a branch. Every request the
// user agent builds has a Via already.
func (s *SipStack) prepareRequest(req sip.Request) sip.Request {
	if viaHop, ok := req.ViaHop(); ok {
		if viaHop.Params == nil {
			viaHop.Params = sip.NewParams()
		}
		if !viaHop.Params.Has("branch") {
			viaHop.Params.Add("branch", sip.String{Str: sip.GenerateBranch()})
		}
	}

	s.appendAutoHeaders(req)
	return req
}

// Respond .
func (s *SipStack) Respond(res sip.Response) (sip.ServerTransaction, error) {
	if s.shuttingDown() {
		return nil, ErrStopped
	}

	return s.tx.Respond(s.prepareResponse(res))
}

// Send .
func (s *SipStack) Send(msg sip.Message) error {
	if s.shuttingDown() {
		return ErrStopped
	}

	switch m := msg.(type) {
	case sip.Request:
		msg = s.prepareRequest(m)
	case sip.Response:
		msg = s.prepareResponse(m)
	}

	return s.tp.Send(msg)
}

func (s *SipStack) prepareResponse(res sip.Response) sip.Response {
	s.appendAutoHeaders(res)
	return res
}

func (s *SipStack) shuttingDown() bool {
	return atomic.LoadInt32(&s.inShutdown) != 0
}

// Shutdown stops the transaction and transport layers and waits for the
// running request handlers.
func (s *SipStack) Shutdown() {
	if !atomic.CompareAndSwapInt32(&s.inShutdown, 0, 1) {
		return
	}

	s.tx.Cancel()
	<-s.tx.Done()
	s.tp.Cancel()
	<-s.tp.Done()
	s.hwg.Wait()
}

// OnRequest registers new request callback
func (s *SipStack) OnRequest(method sip.RequestMethod, handler RequestHandler) {
	s.hmu.Lock()
	s.requestHandlers[method] = handler
	s.hmu.Unlock()
}

func (s *SipStack) OnConnectionError(handler func(err *transport.ConnectionError)) {
	s.hmu.Lock()
	s.handleConnectionError = handler
	s.hmu.Unlock()
}

func (s *SipStack) appendAutoHeaders(msg sip.Message) {
	autoAppendMethods := map[sip.RequestMethod]bool{
		sip.INVITE:   true,
		sip.REGISTER: true,
		sip.OPTIONS:  true,
	}

	var msgMethod sip.RequestMethod
	switch m := msg.(type) {
	case sip.Request:
		msgMethod = m.Method()
	case sip.Response:
		if cseq, ok := m.CSeq(); ok && !m.IsProvisional() {
			msgMethod = cseq.MethodName
		}
	}
	if len(msgMethod) > 0 {
		if _, ok := autoAppendMethods[msgMethod]; ok {
			if hdrs := msg.GetHeaders("Allow"); len(hdrs) == 0 {
				msg.AppendHeader(sip.AllowHeader(s.getAllowedMethods()))
			}

			if hdrs := msg.GetHeaders("Supported"); len(hdrs) == 0 && len(s.extensions) > 0 {
				msg.AppendHeader(&sip.SupportedHeader{
					Options: s.extensions,
				})
			}
		}
	}

	if hdrs := msg.GetHeaders("User-Agent"); len(hdrs) == 0 {
		userAgent := sip.UserAgentHeader(s.userAgent)
		msg.AppendHeader(&userAgent)
	}

	if s.tp.IsStreamed(msg.Transport()) {
		if hdrs := msg.GetHeaders("Content-Length"); len(hdrs) == 0 {
			msg.SetBody(msg.Body(), true)
		}
	}
}

// getAllowedMethods lists the methods with a handler plus CANCEL, which the
// transaction layer answers itself.
func (s *SipStack) getAllowedMethods() []sip.RequestMethod {
	methods := []sip.RequestMethod{sip.CANCEL}

	s.hmu.RLock()
	for method := range s.requestHandlers {
		methods = append(methods, method)
	}
	s.hmu.RUnlock()

	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

// NetworkFromURL maps a ws/wss server URL scheme onto the transport name
// carried in Via headers.
func NetworkFromURL(scheme string) string {
	return strings.ToUpper(scheme)
}

type sipTransport struct {
	tpl transport.Layer
	s   *SipStack
}

func (tp *sipTransport) Messages() <-chan sip.Message {
	return tp.tpl.Messages()
}

func (tp *sipTransport) Send(msg sip.Message) error {
	return tp.s.Send(msg)
}

func (tp *sipTransport) IsReliable(network string) bool {
	return tp.tpl.IsReliable(network)
}

func (tp *sipTransport) IsStreamed(network string) bool {
	return tp.tpl.IsStreamed(network)
}
