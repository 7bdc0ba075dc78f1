package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/pvieira/beacon/internal/broadcast"
	"github.com/pvieira/beacon/internal/bus"
	"github.com/pvieira/beacon/internal/classify"
	"github.com/pvieira/beacon/internal/delivery"
	"github.com/pvieira/beacon/internal/mesh"
	"github.com/pvieira/beacon/internal/retry"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubTransport struct {
	mu        sync.Mutex
	published []mesh.Envelope
	peers     int
	running   bool
}

func (s *stubTransport) Publish(_ context.Context, env mesh.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, env)
	return nil
}

func (s *stubTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *stubTransport) last() (mesh.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.published) == 0 {
		return mesh.Envelope{}, false
	}
	return s.published[len(s.published)-1], true
}

func (s *stubTransport) Events() <-chan mesh.Event { return nil }
func (s *stubTransport) LocalID() string           { return "local-node" }
func (s *stubTransport) PeerCount() int            { return s.peers }
func (s *stubTransport) IsConnected() bool         { return s.running && s.peers > 0 }
func (s *stubTransport) Close() error              { return nil }

func newTestServer(t *testing.T) (*Server, *stubTransport, *delivery.Tracker) {
	t.Helper()
	st := &stubTransport{peers: 4, running: true}
	b := bus.New()
	tracker := delivery.NewTracker(b, classify.New(), nil, zap.NewNop())
	sched := broadcast.NewScheduler(st, tracker, clock.NewMock(), nil, "local-node", zap.NewNop())
	retrier := retry.NewCoordinator(tracker, sched, zap.NewNop())
	srv := New(tracker, sched, retrier, classify.New(), st, b, nil, "", zap.NewNop())
	return srv, st, tracker
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestCreateMessage(t *testing.T) {
	assert := assert.New(t)
	srv, st, tracker := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/v1/messages", `{"text":"hello there"}`)
	assert.Equal(http.StatusCreated, rec.Code)

	var resp createMessageResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(resp.ID)
	assert.False(resp.Flagged)

	env, ok := st.last()
	assert.True(ok)
	assert.Equal(resp.ID, env.MessageID)
	assert.Equal("hello there", env.Body)

	status, err := tracker.StatusOf(resp.ID)
	assert.NoError(err)
	assert.Equal(delivery.Sending, status.Kind)
}

// Flagged content submitted without the emergency choice stays on the normal
// path: one send, no redundancy. The verdict only informs the caller.
func TestFlaggedContentIsNotEscalated(t *testing.T) {
	assert := assert.New(t)
	srv, st, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/v1/messages", `{"text":"Need HELP now"}`)
	assert.Equal(http.StatusCreated, rec.Code)

	var resp createMessageResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(resp.Flagged)
	assert.Equal(1, st.count(), "flagged but non-emergency submission must publish exactly once")
	assert.False(srv.scheduler.Cancel(resp.ID), "no redundant sends may be pending")
}

func TestExplicitEmergencySchedulesRedundancy(t *testing.T) {
	assert := assert.New(t)
	srv, st, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/v1/messages", `{"text":"meet at noon","emergency":true}`)
	assert.Equal(http.StatusCreated, rec.Code)

	var resp createMessageResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(resp.Flagged, "plain text stays unflagged even on the emergency path")
	assert.Equal(1, st.count())
	assert.True(srv.scheduler.Cancel(resp.ID), "redundant sends must be pending")
}

func TestCreateMessageRejectsEmptyText(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/v1/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMessage(t *testing.T) {
	assert := assert.New(t)
	srv, _, tracker := newTestServer(t)
	msg := tracker.Create("local-node", "tracked")

	rec := doJSON(srv, http.MethodGet, "/v1/messages/"+msg.ID, "")
	assert.Equal(http.StatusOK, rec.Code)

	var got delivery.Message
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(msg.ID, got.ID)
	assert.Equal("tracked", got.Body)

	rec = doJSON(srv, http.MethodGet, "/v1/messages/ghost", "")
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestListMessagesNewestFirst(t *testing.T) {
	assert := assert.New(t)
	srv, _, tracker := newTestServer(t)
	first := tracker.Create("local-node", "first")
	second := tracker.Create("local-node", "second")

	rec := doJSON(srv, http.MethodGet, "/v1/messages", "")
	assert.Equal(http.StatusOK, rec.Code)

	var got []delivery.Message
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	if assert.Len(got, 2) {
		assert.Equal(second.ID, got[0].ID)
		assert.Equal(first.ID, got[1].ID)
	}

	rec = doJSON(srv, http.MethodGet, "/v1/messages?limit=frog", "")
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestRetryMessage(t *testing.T) {
	assert := assert.New(t)
	srv, st, tracker := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/v1/messages", `{"text":"flaky"}`)
	var resp createMessageResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))

	// Not failed yet: conflict.
	tracker.Apply(mesh.Event{Kind: mesh.EventAccepted, MessageID: resp.ID})
	rec = doJSON(srv, http.MethodPost, "/v1/messages/"+resp.ID+"/retry", "")
	assert.Equal(http.StatusConflict, rec.Code)

	tracker.Apply(mesh.Event{Kind: mesh.EventSendFailed, MessageID: resp.ID, Reason: "no route"})
	rec = doJSON(srv, http.MethodPost, "/v1/messages/"+resp.ID+"/retry", "")
	assert.Equal(http.StatusOK, rec.Code)

	var got delivery.Message
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(delivery.Sending, got.Status.Kind)
	assert.Equal(2, got.Attempts)

	env, ok := st.last()
	assert.True(ok)
	assert.Equal(resp.ID, env.MessageID)

	rec = doJSON(srv, http.MethodPost, "/v1/messages/ghost/retry", "")
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestMarkRead(t *testing.T) {
	assert := assert.New(t)
	srv, st, tracker := newTestServer(t)

	tracker.Apply(mesh.Event{
		Kind:      mesh.EventMessageReceived,
		MessageID: "msg-in",
		Sender:    "peer-a",
		Peer:      "peer-a",
		Body:      "hi",
	})

	rec := doJSON(srv, http.MethodPost, "/v1/messages/msg-in/read", "")
	assert.Equal(http.StatusNoContent, rec.Code)

	env, ok := st.last()
	assert.True(ok)
	assert.Equal(mesh.EnvelopeRead, env.Kind)
	assert.Equal("msg-in", env.MessageID)
	assert.Equal("local-node", env.Sender)

	// Own messages cannot be acknowledged.
	own := tracker.Create("local-node", "mine")
	rec = doJSON(srv, http.MethodPost, "/v1/messages/"+own.ID+"/read", "")
	assert.Equal(http.StatusConflict, rec.Code)
}

func TestCancelMessage(t *testing.T) {
	assert := assert.New(t)
	srv, _, tracker := newTestServer(t)
	msg := tracker.Create("local-node", "nothing pending")

	rec := doJSON(srv, http.MethodPost, "/v1/messages/"+msg.ID+"/cancel", "")
	assert.Equal(http.StatusOK, rec.Code)

	var resp cancelResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(resp.Cancelled)

	rec = doJSON(srv, http.MethodPost, "/v1/messages/ghost/cancel", "")
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestGetQuality(t *testing.T) {
	assert := assert.New(t)
	srv, st, _ := newTestServer(t)
	st.peers = 2

	rec := doJSON(srv, http.MethodGet, "/v1/quality", "")
	assert.Equal(http.StatusOK, rec.Code)

	var resp qualityResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal("POOR", string(resp.Level))
	assert.Equal(2, resp.Peers)
	assert.True(resp.Connected)
}

func TestGetStatus(t *testing.T) {
	assert := assert.New(t)
	srv, _, tracker := newTestServer(t)
	tracker.Create("local-node", "one")

	rec := doJSON(srv, http.MethodGet, "/v1/status", "")
	assert.Equal(http.StatusOK, rec.Code)

	var resp statusResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal("local-node", resp.LocalID)
	assert.Equal(4, resp.Peers)
	assert.Equal(1, resp.Messages)
	assert.Equal("GOOD", string(resp.Quality))
}
