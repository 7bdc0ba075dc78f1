package mesh

import "time"

// EventKind identifies an inbound transport event.
type EventKind string

const (
	// EventAccepted: the local transport accepted an outbound envelope.
	EventAccepted EventKind = "accepted"
	// EventSendFailed: the local transport could not send an envelope.
	EventSendFailed EventKind = "send_failed"
	// EventPeerConnected / EventPeerDisconnected: mesh membership changes.
	EventPeerConnected    EventKind = "peer_connected"
	EventPeerDisconnected EventKind = "peer_disconnected"
	// EventMessageReceived: a data envelope arrived from a peer.
	EventMessageReceived EventKind = "message_received"
	// EventDeliveryAck: a peer confirmed receipt of one of our messages.
	EventDeliveryAck EventKind = "delivery_ack"
	// EventReadAck: a peer confirmed consumption of one of our messages.
	EventReadAck EventKind = "read_ack"
	// EventPartialAck: the transport reported aggregate delivery to a
	// subset of the expected peer set.
	EventPartialAck EventKind = "partial_ack"
)

// Event is a single inbound transport event. Exactly the fields relevant to
// Kind are populated; the rest are zero.
type Event struct {
	Kind      EventKind
	Peer      string
	MessageID string
	Sender    string
	Body      string
	At        time.Time
	Reached   int
	Total     int
	Reason    string
}
