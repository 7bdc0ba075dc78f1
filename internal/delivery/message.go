package delivery

import "time"

// Message is a tracked message. Identity (ID, Sender, Body, CreatedAt) is
// immutable once created; Status is mutated only by the Tracker. A retry
// keeps the same ID and resets Status, so the UI thread of the message is
// continuous across attempts.
//
// The emergency flag is deliberately not stored here: it is a pure function
// of Body, recomputed where needed, never cached as stale state.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	FromMe    bool      `json:"from_me"`
	Attempts  int       `json:"attempts"`
	Status    Status    `json:"status"`
}

// StatusChange is the payload of message.status_changed bus events.
type StatusChange struct {
	ID   string
	From Status
	To   Status
}
