package web

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/widget"
	"github.com/ghettovoice/gosip/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed index.html
var indexHTML []byte

var ErrUnknownAction = errors.New("unknown action")

// Phone is the set of user intents the front end forwards.
type Phone interface {
	DialInput()
	DialEnter()
	DialPreset(i int)
	Answer()
	Hangup()
	ToggleHold()
	ToggleMute()
	PressKey(tone string)
	BeforeUnload() string
}

type Config struct {
	Listen string
	// Debug enables gin's debug mode and request logging.
	Debug    bool
	Gatherer prometheus.Gatherer
}

type Server struct {
	config Config
	phone  Phone
	board  *widget.Board
	router *gin.Engine
	http   *http.Server
	log    log.Logger
}

func NewServer(config Config, phone Phone, board *widget.Board, logger log.Logger) *Server {
	s := &Server{
		config: config,
		phone:  phone,
		board:  board,
		log:    logger.WithPrefix("Web"),
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	if !s.config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if s.config.Debug {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})

	if s.config.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.board.Snapshot())
	})
	api.GET("/beforeunload", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": s.phone.BeforeUnload()})
	})
	api.POST("/alerts/take", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alerts": s.board.TakeAlerts()})
	})
	api.POST("/dial", s.handleDial)
	api.POST("/action/:action", func(c *gin.Context) {
		s.handleAction(c, c.Param("action"), "")
	})
	api.POST("/keypad/:tone", func(c *gin.Context) {
		s.handleAction(c, "keypad", c.Param("tone"))
	})
	api.POST("/phonebook/:index", func(c *gin.Context) {
		s.handleAction(c, "phonebook", c.Param("index"))
	})
	api.GET("/ws", s.handleWebSocket)

	return r
}

type dialRequest struct {
	Value string `json:"value"`
}

// handleDial sets the dial field. It does not place the call.
func (s *Server) handleDial(c *gin.Context) {
	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.setDial(req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleAction(c *gin.Context, action, arg string) {
	if err := s.dispatch(action, arg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) setDial(value string) error {
	in, err := s.board.Input(widget.DialInput)
	if err != nil {
		return err
	}
	in.SetValue(value)
	return nil
}

// dispatch forwards one intent to the phone. Results show up in later
// snapshots, never in the reply.
func (s *Server) dispatch(action, arg string) error {
	s.log.Debugf("intent %s %s", action, arg)
	switch action {
	case "call":
		s.phone.DialInput()
	case "enter":
		s.phone.DialEnter()
	case "answer":
		s.phone.Answer()
	case "hangup":
		s.phone.Hangup()
	case "hold":
		s.phone.ToggleHold()
	case "mute":
		s.phone.ToggleMute()
	case "keypad":
		s.phone.PressKey(arg)
	case "phonebook":
		i, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("bad phonebook index %q", arg)
		}
		s.phone.DialPreset(i)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return nil
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.config.Listen)
		errs <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
