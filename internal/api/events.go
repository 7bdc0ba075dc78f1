package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pvieira/beacon/internal/bus"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	// Local unix socket, no cross-origin surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const eventStreamBuffer = 128

type streamedEvent struct {
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// streamEvents upgrades to a websocket and forwards message, alert and
// quality events until the client disconnects. Raw transport events stay
// internal.
func (s *Server) streamEvents(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, cancel := s.bus.Subscribe("", eventStreamBuffer)
	defer cancel()

	// Reads only serve to detect the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(evt.Kind, bus.NSMesh) {
				continue
			}
			msg := streamedEvent{Kind: evt.Kind, At: evt.At, Payload: evt.Payload}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("event stream closed", zap.Error(err))
				return nil
			}
		}
	}
}
