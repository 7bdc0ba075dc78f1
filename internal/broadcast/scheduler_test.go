package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pvieira/beacon/internal/bus"
	"github.com/pvieira/beacon/internal/classify"
	"github.com/pvieira/beacon/internal/delivery"
	"github.com/pvieira/beacon/internal/mesh"
	"go.uber.org/zap"
)

// fakeTransport records publishes with the mock clock's timestamp so tests
// can assert on relative send offsets.
type fakeTransport struct {
	mu        sync.Mutex
	clk       clock.Clock
	published []publishRecord
	err       error
	events    chan mesh.Event
}

type publishRecord struct {
	Env mesh.Envelope
	At  time.Time
}

func newFakeTransport(clk clock.Clock) *fakeTransport {
	return &fakeTransport{clk: clk, events: make(chan mesh.Event, 16)}
}

func (f *fakeTransport) Publish(_ context.Context, env mesh.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishRecord{Env: env, At: f.clk.Now()})
	return nil
}

func (f *fakeTransport) records() []publishRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishRecord, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeTransport) Events() <-chan mesh.Event { return f.events }
func (f *fakeTransport) LocalID() string           { return "local-node" }
func (f *fakeTransport) PeerCount() int            { return 3 }
func (f *fakeTransport) IsConnected() bool         { return true }
func (f *fakeTransport) Close() error              { return nil }

func newTestScheduler(t *testing.T) (*Scheduler, *fakeTransport, *delivery.Tracker, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	ft := newFakeTransport(mock)
	tracker := delivery.NewTracker(bus.New(), classify.New(), nil, zap.NewNop())
	s := NewScheduler(ft, tracker, mock, nil, "local-node", zap.NewNop())
	return s, ft, tracker, mock
}

func TestSendNormalPublishesExactlyOnce(t *testing.T) {
	s, ft, tracker, mock := newTestScheduler(t)

	id := s.SendNormal(context.Background(), "hello")

	if got := len(ft.records()); got != 1 {
		t.Fatalf("publishes = %d, want 1", got)
	}
	// No stragglers later.
	mock.Add(10 * time.Second)
	if got := len(ft.records()); got != 1 {
		t.Errorf("publishes after 10s = %d, want 1", got)
	}

	if status, err := tracker.StatusOf(id); err != nil || status.Kind != delivery.Sending {
		t.Errorf("status = %v, %v; want SENDING", status, err)
	}
}

func TestSendEmergencyThreeSendsAtOffsets(t *testing.T) {
	s, ft, _, mock := newTestScheduler(t)
	start := mock.Now()

	id := s.SendEmergency(context.Background(), "sos, need medical")

	if got := len(ft.records()); got != 1 {
		t.Fatalf("immediate publishes = %d, want 1", got)
	}

	mock.Add(1 * time.Second)
	if got := len(ft.records()); got != 2 {
		t.Fatalf("publishes at +1s = %d, want 2", got)
	}

	mock.Add(2 * time.Second)
	records := ft.records()
	if got := len(records); got != 3 {
		t.Fatalf("publishes at +3s = %d, want 3", got)
	}

	wantOffsets := []time.Duration{0, 1 * time.Second, 3 * time.Second}
	for i, rec := range records {
		if got := rec.At.Sub(start); got != wantOffsets[i] {
			t.Errorf("send %d offset = %s, want %s", i, got, wantOffsets[i])
		}
		if rec.Env.MessageID != id {
			t.Errorf("send %d id = %s, want %s (one logical message)", i, rec.Env.MessageID, id)
		}
		if rec.Env.Kind != mesh.EnvelopeData {
			t.Errorf("send %d kind = %s, want data", i, rec.Env.Kind)
		}
		if rec.Env.Body != "sos, need medical" {
			t.Errorf("send %d body = %q", i, rec.Env.Body)
		}
	}

	// Nothing further.
	mock.Add(time.Minute)
	if got := len(ft.records()); got != 3 {
		t.Errorf("publishes after a minute = %d, want 3", got)
	}
}

// Early delivery success must not cancel the remaining redundant sends;
// redundancy protects against peers the first copy did not reach.
func TestEarlyDeliveryDoesNotCancelRedundancy(t *testing.T) {
	s, ft, tracker, mock := newTestScheduler(t)

	id := s.SendEmergency(context.Background(), "emergency: fire on 5th street")

	mock.Add(500 * time.Millisecond)
	tracker.Apply(mesh.Event{Kind: mesh.EventDeliveryAck, MessageID: id, Peer: "peer-b", At: mock.Now()})
	if status, _ := tracker.StatusOf(id); status.Kind != delivery.Delivered {
		t.Fatalf("status = %s, want DELIVERED", status.Kind)
	}

	mock.Add(3 * time.Second)
	if got := len(ft.records()); got != 3 {
		t.Errorf("publishes = %d, want 3 (redundancy survives early success)", got)
	}
	if status, _ := tracker.StatusOf(id); status.Kind != delivery.Delivered {
		t.Errorf("status regressed to %s after redundant sends", status.Kind)
	}
}

func TestCancelSuppressesPendingSends(t *testing.T) {
	s, ft, tracker, mock := newTestScheduler(t)

	id := s.SendEmergency(context.Background(), "urgent")
	tracker.Apply(mesh.Event{Kind: mesh.EventDeliveryAck, MessageID: id, Peer: "peer-b", At: mock.Now()})

	if !s.Cancel(id) {
		t.Fatal("Cancel should report pending timers")
	}
	mock.Add(time.Minute)

	if got := len(ft.records()); got != 1 {
		t.Errorf("publishes = %d, want 1 (pending sends suppressed)", got)
	}
	// Cancellation must not touch recorded delivery state.
	if status, _ := tracker.StatusOf(id); status.Kind != delivery.Delivered {
		t.Errorf("status = %s, want DELIVERED untouched", status.Kind)
	}

	if s.Cancel(id) {
		t.Error("second Cancel should report nothing pending")
	}
}

// Fired sends must leave the pending set: once all redundant sends have run,
// Cancel has nothing to suppress and says so.
func TestCancelAfterAllSendsFired(t *testing.T) {
	s, ft, _, mock := newTestScheduler(t)

	id := s.SendEmergency(context.Background(), "danger")
	mock.Add(3 * time.Second)
	if got := len(ft.records()); got != 3 {
		t.Fatalf("publishes = %d, want 3", got)
	}

	if s.Cancel(id) {
		t.Error("Cancel should report nothing pending after all sends fired")
	}
}

func TestStopCancelsAllPendingSends(t *testing.T) {
	s, ft, _, mock := newTestScheduler(t)

	s.SendEmergency(context.Background(), "danger one")
	s.SendEmergency(context.Background(), "danger two")
	if got := len(ft.records()); got != 2 {
		t.Fatalf("immediate publishes = %d, want 2", got)
	}

	s.Stop()
	mock.Add(time.Minute)

	if got := len(ft.records()); got != 2 {
		t.Errorf("publishes after Stop = %d, want 2", got)
	}
}

func TestPublishFailureMarksFailed(t *testing.T) {
	s, ft, tracker, _ := newTestScheduler(t)
	ft.err = errors.New("transport closed")

	id := s.SendNormal(context.Background(), "hello")

	status, err := tracker.StatusOf(id)
	if err != nil {
		t.Fatal(err)
	}
	if status.Kind != delivery.Failed {
		t.Errorf("status = %s, want FAILED", status.Kind)
	}
	if status.Reason != "transport closed" {
		t.Errorf("reason = %q, want transport closed", status.Reason)
	}
}
