// Package broadcast turns one logical message into one or more transport
// sends according to its priority.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pvieira/beacon/internal/delivery"
	"github.com/pvieira/beacon/internal/mesh"
	"github.com/pvieira/beacon/internal/metrics"
	"go.uber.org/zap"
)

// emergencyOffsets are the fixed delays of the redundant emergency sends,
// relative to submission. Redundant transmission over a best-effort mesh
// trades bandwidth for a materially higher chance of at-least-one delivery
// within a bounded window, so it is reserved for safety-critical content.
var emergencyOffsets = []time.Duration{0, 1 * time.Second, 3 * time.Second}

// Scheduler issues transport sends for tracked messages. Redundant sends run
// on cancellable clock timers, never blocking waits; early delivery success
// does not cancel them, only Cancel or Stop does.
type Scheduler struct {
	transport mesh.Transport
	tracker   *delivery.Tracker
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
	sender    string

	mu     sync.Mutex
	timers map[string][]*pendingSend
	closed bool
}

// pendingSend wraps a scheduled redundant send. The callback identifies
// itself by this pointer, not by the timer: the timer field is written under
// s.mu after AfterFunc returns, and only Cancel and Stop (also under s.mu)
// ever read it.
type pendingSend struct {
	timer *clock.Timer
}

// NewScheduler creates a scheduler sending on behalf of the given local
// sender identity.
func NewScheduler(tr mesh.Transport, t *delivery.Tracker, clk clock.Clock, m *metrics.Metrics, sender string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		transport: tr,
		tracker:   t,
		clock:     clk,
		metrics:   m,
		logger:    logger,
		sender:    sender,
		timers:    make(map[string][]*pendingSend),
	}
}

// SendNormal tracks a new message and issues exactly one transport send.
func (s *Scheduler) SendNormal(ctx context.Context, text string) string {
	msg := s.tracker.Create(s.sender, text)
	s.count("normal")
	s.publish(ctx, msg)
	return msg.ID
}

// SendEmergency tracks a new message and issues three transport sends of the
// same envelope at the emergency offsets, all sharing the message id. The
// first send happens immediately so the local entry is visible right away.
func (s *Scheduler) SendEmergency(ctx context.Context, text string) string {
	msg := s.tracker.Create(s.sender, text)
	s.count("emergency")
	s.publish(ctx, msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return msg.ID
	}
	for _, offset := range emergencyOffsets[1:] {
		p := &pendingSend{}
		p.timer = s.clock.AfterFunc(offset, func() {
			s.reap(msg.ID, p)
			s.count("redundant")
			s.publish(context.Background(), msg)
		})
		s.timers[msg.ID] = append(s.timers[msg.ID], p)
	}
	s.logger.Info("emergency redundancy scheduled",
		zap.String("msg_id", msg.ID),
		zap.Int("extra_sends", len(emergencyOffsets)-1))
	return msg.ID
}

// Resend issues exactly one additional transport send for an already-tracked
// message. Used by the retry coordinator after it has reset the status.
func (s *Scheduler) Resend(ctx context.Context, msg delivery.Message) {
	s.count("retry")
	s.publish(ctx, msg)
}

// Cancel suppresses any not-yet-fired redundant sends for id. Already
// recorded delivery state is untouched. Reports whether timers were pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	pending := s.timers[id]
	delete(s.timers, id)
	for _, p := range pending {
		p.timer.Stop()
	}
	s.mu.Unlock()
	return len(pending) > 0
}

// Stop cancels all pending redundant sends. Further SendEmergency calls
// still issue their immediate send but schedule no redundancy.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	all := s.timers
	s.timers = make(map[string][]*pendingSend)
	s.mu.Unlock()

	for _, pending := range all {
		for _, p := range pending {
			p.timer.Stop()
		}
	}
}

// publish hands one data envelope to the transport. A synchronous enqueue
// failure is folded into the event stream as a SendFailed, keeping every
// outcome on the same path.
func (s *Scheduler) publish(ctx context.Context, msg delivery.Message) {
	env := mesh.Envelope{
		Kind:      mesh.EnvelopeData,
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Body:      msg.Body,
		SentAt:    s.clock.Now(),
	}
	if err := s.transport.Publish(ctx, env); err != nil {
		s.logger.Error("transport rejected envelope", zap.Error(err), zap.String("msg_id", msg.ID))
		s.tracker.Apply(mesh.Event{
			Kind:      mesh.EventSendFailed,
			MessageID: msg.ID,
			Reason:    err.Error(),
			At:        s.clock.Now(),
		})
	}
}

// reap drops a fired send from the pending set.
func (s *Scheduler) reap(id string, fired *pendingSend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.timers[id]
	for i, p := range pending {
		if p == fired {
			s.timers[id] = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	if len(s.timers[id]) == 0 {
		delete(s.timers, id)
	}
}

func (s *Scheduler) count(priority string) {
	if s.metrics != nil {
		s.metrics.Sends.WithLabelValues(priority).Inc()
	}
}
