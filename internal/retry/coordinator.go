// Package retry re-submits messages whose delivery status indicates a
// recoverable failure. Retries happen only on explicit trigger; the daemon
// never times out or retries a send on its own.
package retry

import (
	"context"

	"github.com/pvieira/beacon/internal/broadcast"
	"github.com/pvieira/beacon/internal/delivery"
	"go.uber.org/zap"
)

// Coordinator validates retry requests and re-issues the transport send.
type Coordinator struct {
	tracker   *delivery.Tracker
	scheduler *broadcast.Scheduler
	logger    *zap.Logger
}

// NewCoordinator creates a retry coordinator.
func NewCoordinator(t *delivery.Tracker, s *broadcast.Scheduler, logger *zap.Logger) *Coordinator {
	return &Coordinator{tracker: t, scheduler: s, logger: logger}
}

// Retry resets the message to Sending and issues exactly one new transport
// send with the original content, preserving the message id.
//
// Errors: delivery.ErrUnknownMessage if id is not tracked,
// delivery.ErrNotRetryable if the current status does not need a retry.
// The status then stays Sending until a genuine transport event arrives;
// there is no optimistic Sent simulation.
func (c *Coordinator) Retry(ctx context.Context, id string) error {
	msg, err := c.tracker.ResetForRetry(id)
	if err != nil {
		return err
	}

	c.logger.Info("retrying message",
		zap.String("msg_id", id),
		zap.Int("attempt", msg.Attempts))
	c.scheduler.Resend(ctx, msg)
	return nil
}
