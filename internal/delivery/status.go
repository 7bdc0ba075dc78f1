package delivery

import (
	"fmt"
	"time"
)

// Kind discriminates the delivery status variants. A message has exactly one
// status at any time.
type Kind string

const (
	// Sending: submitted to the transport, no outcome yet. Initial state
	// for locally originated messages.
	Sending Kind = "SENDING"
	// Sent: accepted by the local transport layer, no peer confirmation.
	Sent Kind = "SENT"
	// Delivered: confirmed received by at least one specific peer.
	Delivered Kind = "DELIVERED"
	// Read: confirmed consumed by a specific peer.
	Read Kind = "READ"
	// PartiallyDelivered: confirmed at some but not all of the expected
	// peer set.
	PartiallyDelivered Kind = "PARTIALLY_DELIVERED"
	// Failed: the transport reported failure for this attempt.
	Failed Kind = "FAILED"
	// Received: an inbound message from a peer. Terminal on arrival.
	Received Kind = "RECEIVED"
)

// Status is the tagged delivery state of a message. Only the fields relevant
// to Kind are set.
type Status struct {
	Kind    Kind      `json:"kind"`
	Peer    string    `json:"peer,omitempty"`
	At      time.Time `json:"at,omitempty"`
	Reached int       `json:"reached,omitempty"`
	Total   int       `json:"total,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

func StatusSending() Status { return Status{Kind: Sending} }
func StatusSent() Status    { return Status{Kind: Sent} }

func StatusDelivered(peer string, at time.Time) Status {
	return Status{Kind: Delivered, Peer: peer, At: at}
}

func StatusRead(peer string, at time.Time) Status {
	return Status{Kind: Read, Peer: peer, At: at}
}

func StatusPartial(reached, total int) Status {
	return Status{Kind: PartiallyDelivered, Reached: reached, Total: total}
}

func StatusFailed(reason string) Status { return Status{Kind: Failed, Reason: reason} }
func StatusReceived() Status            { return Status{Kind: Received} }

// NeedsRetry reports whether the message should be offered for re-submission:
// true iff the attempt failed or reached only part of the expected peer set.
func (s Status) NeedsRetry() bool {
	switch s.Kind {
	case Failed:
		return true
	case PartiallyDelivered:
		return s.Reached < s.Total
	default:
		return false
	}
}

// Successful reports whether at least one peer is known to have the message.
func (s Status) Successful() bool {
	switch s.Kind {
	case Delivered, Read:
		return true
	case PartiallyDelivered:
		return s.Reached > 0
	default:
		return false
	}
}

// rank orders statuses by how much is known about the delivery outcome.
// Updates only ever move up in rank, so a late Delivered overrides an
// earlier Failed but never the other way around.
func (s Status) rank() int {
	switch s.Kind {
	case Sending:
		return 0
	case Sent:
		return 1
	case Failed:
		return 2
	case PartiallyDelivered:
		return 3
	case Delivered:
		return 4
	case Read:
		return 5
	default:
		return -1
	}
}

// Supersedes reports whether s carries strictly more information than prev
// and should replace it. Two PartiallyDelivered statuses compare by reached
// count; reached never shrinks.
func (s Status) Supersedes(prev Status) bool {
	if s.Kind == PartiallyDelivered && prev.Kind == PartiallyDelivered {
		return s.Reached > prev.Reached
	}
	return s.rank() > prev.rank()
}

func (s Status) String() string {
	switch s.Kind {
	case Delivered, Read:
		return fmt.Sprintf("%s(peer=%s)", s.Kind, s.Peer)
	case PartiallyDelivered:
		return fmt.Sprintf("%s(%d/%d)", s.Kind, s.Reached, s.Total)
	case Failed:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Reason)
	default:
		return string(s.Kind)
	}
}
