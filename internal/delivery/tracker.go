package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pvieira/beacon/internal/bus"
	"github.com/pvieira/beacon/internal/classify"
	"github.com/pvieira/beacon/internal/mesh"
	"github.com/pvieira/beacon/internal/metrics"
	"go.uber.org/zap"
)

// Tracker is the single owner of all mutable message/delivery state. Status
// mutations are serialized behind its lock: transport events arrive through
// the bus apply loop, user actions through the exported methods, and both
// funnel into transition().
//
// The tracker never times out a send on its own; Failed arises only from
// explicit transport events, and retry policy lives in the retry package.
type Tracker struct {
	mu       sync.RWMutex
	messages map[string]*Message
	order    []string

	bus        *bus.Bus
	classifier *classify.Classifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cancel     context.CancelFunc
}

// NewTracker creates an empty tracker.
func NewTracker(b *bus.Bus, cls *classify.Classifier, m *metrics.Metrics, logger *zap.Logger) *Tracker {
	return &Tracker{
		messages:   make(map[string]*Message),
		bus:        b,
		classifier: cls,
		metrics:    m,
		logger:     logger,
	}
}

// Start subscribes to mesh.* transport events on the bus and applies them
// until Stop or context cancellation.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	ch, unsub := t.bus.Subscribe(bus.NSMesh, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				me, ok := evt.Payload.(mesh.Event)
				if !ok {
					continue
				}
				t.Apply(me)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the apply loop.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Create registers a new locally originated message in Sending state and
// returns a copy. The transport send itself is the scheduler's job; the
// entry exists immediately so presentation gets responsive feedback.
func (t *Tracker) Create(sender, body string) Message {
	msg := &Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Body:      body,
		CreatedAt: time.Now(),
		FromMe:    true,
		Attempts:  1,
		Status:    StatusSending(),
	}

	t.mu.Lock()
	t.messages[msg.ID] = msg
	t.order = append(t.order, msg.ID)
	t.mu.Unlock()

	t.publish("message.created", *msg)
	return *msg
}

// Apply processes one inbound transport event. Unknown message ids are
// logged and dropped: a late ack for an expired id is a local no-op, never
// an error that escapes the core.
func (t *Tracker) Apply(evt mesh.Event) {
	if t.metrics != nil {
		t.metrics.TransportEvents.WithLabelValues(string(evt.Kind)).Inc()
	}

	switch evt.Kind {
	case mesh.EventAccepted:
		t.transition(evt.MessageID, StatusSent())
	case mesh.EventDeliveryAck:
		t.transition(evt.MessageID, StatusDelivered(evt.Peer, evt.At))
	case mesh.EventReadAck:
		t.transition(evt.MessageID, StatusRead(evt.Peer, evt.At))
	case mesh.EventPartialAck:
		t.transition(evt.MessageID, StatusPartial(evt.Reached, evt.Total))
	case mesh.EventSendFailed:
		t.transition(evt.MessageID, StatusFailed(evt.Reason))
	case mesh.EventMessageReceived:
		t.recordInbound(evt)
	}
}

// transition applies a status update under the information ordering: an
// update that does not supersede the current status is ignored, which makes
// out-of-order event delivery harmless.
func (t *Tracker) transition(id string, to Status) {
	t.mu.Lock()
	msg, ok := t.messages[id]
	if !ok {
		t.mu.Unlock()
		t.logger.Debug("event for untracked message", zap.String("msg_id", id), zap.String("to", string(to.Kind)))
		return
	}
	from := msg.Status
	if !to.Supersedes(from) {
		t.mu.Unlock()
		return
	}
	msg.Status = to
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.StatusChanges.WithLabelValues(string(to.Kind)).Inc()
	}
	t.logger.Info("delivery status changed",
		zap.String("msg_id", id),
		zap.String("from", string(from.Kind)),
		zap.String("to", string(to.Kind)))
	t.publishPayload("message.status_changed", StatusChange{ID: id, From: from, To: to})
}

func (t *Tracker) recordInbound(evt mesh.Event) {
	t.mu.Lock()
	if _, exists := t.messages[evt.MessageID]; exists {
		// Redundant copy of an already-seen message (emergency sends
		// arrive up to three times). Idempotent.
		t.mu.Unlock()
		return
	}
	msg := &Message{
		ID:        evt.MessageID,
		Sender:    evt.Sender,
		Body:      evt.Body,
		CreatedAt: evt.At,
		FromMe:    false,
		Status:    StatusReceived(),
	}
	t.messages[msg.ID] = msg
	t.order = append(t.order, msg.ID)
	t.mu.Unlock()

	t.publish("message.received", *msg)

	if t.classifier != nil && t.classifier.IsEmergency(msg.Body) {
		t.logger.Warn("inbound emergency message",
			zap.String("msg_id", msg.ID),
			zap.String("sender", msg.Sender))
		t.publish("alert.emergency", *msg)
	}
}

// ResetForRetry validates that id is tracked and needs a retry, then resets
// its status to Sending for a new attempt on the same id. The returned copy
// carries the original content for re-submission.
func (t *Tracker) ResetForRetry(id string) (Message, error) {
	t.mu.Lock()
	msg, ok := t.messages[id]
	if !ok {
		t.mu.Unlock()
		return Message{}, ErrUnknownMessage
	}
	if !msg.Status.NeedsRetry() {
		t.mu.Unlock()
		return Message{}, ErrNotRetryable
	}
	from := msg.Status
	msg.Status = StatusSending()
	msg.Attempts++
	out := *msg
	t.mu.Unlock()

	t.publishPayload("message.status_changed", StatusChange{ID: id, From: from, To: out.Status})
	return out, nil
}

// StatusOf returns the current status of a tracked message.
func (t *Tracker) StatusOf(id string) (Status, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	msg, ok := t.messages[id]
	if !ok {
		return Status{}, ErrUnknownMessage
	}
	return msg.Status, nil
}

// Get returns a copy of a tracked message.
func (t *Tracker) Get(id string) (Message, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	msg, ok := t.messages[id]
	if !ok {
		return Message{}, ErrUnknownMessage
	}
	return *msg, nil
}

// List returns up to limit messages, newest first.
func (t *Tracker) List(limit int) []Message {
	if limit <= 0 {
		limit = 50
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, 0, min(limit, len(t.order)))
	for i := len(t.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *t.messages[t.order[i]])
	}
	return out
}

// Count reports how many messages are tracked.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Tracker) publish(kind string, msg Message) {
	t.publishPayload(kind, msg)
}

func (t *Tracker) publishPayload(kind string, payload any) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(bus.Event{Kind: kind, At: time.Now(), Payload: payload})
}
