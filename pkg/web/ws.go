package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// intent is a message from the browser.
type intent struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// handleWebSocket pushes a snapshot after every board change and reads
// intents from the browser until either side goes away.
func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorf("ws upgrade: %v", err)
		return
	}
	id := uuid.NewString()
	s.log.Infof("ws client %s connected", id)

	snapshots, unsubscribe := s.board.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.readPump(id, ws)
	}()

	defer func() {
		unsubscribe()
		_ = ws.Close()
		s.log.Infof("ws client %s gone", id)
	}()

	for {
		select {
		case <-done:
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteJSON(snap); err != nil {
				s.log.Debugf("ws client %s write: %v", id, err)
				return
			}
		}
	}
}

func (s *Server) readPump(id string, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			s.log.Debugf("ws client %s read: %v", id, err)
			return
		}
		var in intent
		if err := json.Unmarshal(data, &in); err != nil {
			s.log.Warnf("ws client %s sent bad json: %v", id, err)
			continue
		}
		if in.Type == "dial" {
			if err := s.setDial(in.Value); err != nil {
				s.log.Warnf("ws client %s: %v", id, err)
			}
			continue
		}
		if err := s.dispatch(in.Type, in.Value); err != nil {
			s.log.Warnf("ws client %s: %v", id, err)
		}
	}
}
