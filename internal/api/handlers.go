package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pvieira/beacon/internal/delivery"
	"github.com/pvieira/beacon/internal/mesh"
	"github.com/pvieira/beacon/internal/quality"
)

type createMessageRequest struct {
	Text      string `json:"text"`
	Emergency bool   `json:"emergency"`
}

type createMessageResponse struct {
	ID      string `json:"id"`
	Flagged bool   `json:"flagged"`
}

// createMessage submits a new outbound message. Only the caller's explicit
// emergency choice selects the redundant broadcast path; the classifier
// verdict comes back as flagged so the UI can offer escalation, it never
// overrides the caller.
func (s *Server) createMessage(c echo.Context) error {
	req := new(createMessageRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text must not be empty")
	}

	flagged := s.classifier.IsEmergency(req.Text)
	var id string
	if req.Emergency {
		id = s.scheduler.SendEmergency(c.Request().Context(), req.Text)
	} else {
		id = s.scheduler.SendNormal(c.Request().Context(), req.Text)
	}
	return c.JSON(http.StatusCreated, createMessageResponse{ID: id, Flagged: flagged})
}

func (s *Server) listMessages(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	return c.JSON(http.StatusOK, s.tracker.List(limit))
}

func (s *Server) getMessage(c echo.Context) error {
	msg, err := s.tracker.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown message")
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) retryMessage(c echo.Context) error {
	err := s.retrier.Retry(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, delivery.ErrUnknownMessage):
		return echo.NewHTTPError(http.StatusNotFound, "unknown message")
	case errors.Is(err, delivery.ErrNotRetryable):
		return echo.NewHTTPError(http.StatusConflict, "message does not need a retry")
	case err != nil:
		return err
	}
	msg, err := s.tracker.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, msg)
}

// markRead sends a read acknowledgement for an inbound message back to its
// sender. The local entry keeps its Received status; read state is a signal
// to the remote side, not a local one.
func (s *Server) markRead(c echo.Context) error {
	id := c.Param("id")
	msg, err := s.tracker.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown message")
	}
	if msg.FromMe {
		return echo.NewHTTPError(http.StatusConflict, "cannot acknowledge own message")
	}
	env := mesh.Envelope{
		Kind:      mesh.EnvelopeRead,
		MessageID: id,
		Sender:    s.transport.LocalID(),
		SentAt:    time.Now(),
	}
	if err := s.transport.Publish(c.Request().Context(), env); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "mesh rejected read acknowledgement")
	}
	return c.NoContent(http.StatusNoContent)
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// cancelMessage suppresses any pending redundant sends for the message.
// Delivery state already recorded is untouched.
func (s *Server) cancelMessage(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.tracker.Get(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown message")
	}
	return c.JSON(http.StatusOK, cancelResponse{Cancelled: s.scheduler.Cancel(id)})
}

type qualityResponse struct {
	Level     quality.Level `json:"level"`
	Peers     int           `json:"peers"`
	Connected bool          `json:"connected"`
}

func (s *Server) getQuality(c echo.Context) error {
	return c.JSON(http.StatusOK, qualityResponse{
		Level:     quality.Estimate(s.transport.PeerCount(), s.transport.IsConnected()),
		Peers:     s.transport.PeerCount(),
		Connected: s.transport.IsConnected(),
	})
}

type statusResponse struct {
	PID           int           `json:"pid"`
	StartedAt     time.Time     `json:"started_at"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	LocalID       string        `json:"local_id"`
	Peers         int           `json:"peers"`
	Connected     bool          `json:"connected"`
	Quality       quality.Level `json:"quality"`
	Messages      int           `json:"messages"`
	DroppedEvents uint64        `json:"dropped_events"`
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		PID:           os.Getpid(),
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		LocalID:       s.transport.LocalID(),
		Peers:         s.transport.PeerCount(),
		Connected:     s.transport.IsConnected(),
		Quality:       quality.Estimate(s.transport.PeerCount(), s.transport.IsConnected()),
		Messages:      s.tracker.Count(),
		DroppedEvents: s.bus.Dropped(),
	})
}
