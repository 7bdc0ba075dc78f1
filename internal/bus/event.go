package bus

import "time"

// Event is a domain event published on the bus. Kind is a dot-separated
// name; subscribers filter by namespace prefix.
type Event struct {
	Kind    string
	At      time.Time
	Payload any
}

// Event kind namespaces used across the daemon.
const (
	// NSMesh covers raw transport events translated by the mesh adapter.
	NSMesh = "mesh."
	// NSMessage covers message lifecycle changes owned by the delivery tracker.
	NSMessage = "message."
	// NSAlert covers local safety alerts (inbound emergency content).
	NSAlert = "alert."
	// NSQuality covers connectivity quality changes.
	NSQuality = "quality."
)
