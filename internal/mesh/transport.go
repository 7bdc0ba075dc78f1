// Package mesh defines the boundary to the peer-to-peer transport
// collaborator. The daemon never talks to the mesh directly: it hands
// envelopes to a Transport and consumes the inbound event stream.
package mesh

import (
	"context"
	"time"
)

// Envelope is the unit exchanged with the transport. Data envelopes carry
// user content; ack envelopes confirm receipt or consumption of an earlier
// data envelope.
type Envelope struct {
	Kind      EnvelopeKind `json:"kind"`
	MessageID string       `json:"message_id"`
	Sender    string       `json:"sender"`
	Body      string       `json:"body,omitempty"`
	SentAt    time.Time    `json:"sent_at"`
}

// EnvelopeKind discriminates envelope payloads.
type EnvelopeKind string

const (
	EnvelopeData EnvelopeKind = "data"
	EnvelopeAck  EnvelopeKind = "ack"
	EnvelopeRead EnvelopeKind = "read"
)

// Transport is the external mesh collaborator. Publish is fire-and-forget:
// it only enqueues the envelope; acceptance, failure and peer acknowledgments
// arrive later on the Events stream. Implementations must never block
// Publish on network I/O.
type Transport interface {
	Publish(ctx context.Context, env Envelope) error
	Events() <-chan Event
	LocalID() string
	PeerCount() int
	IsConnected() bool
	Close() error
}
