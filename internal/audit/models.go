package audit

import "time"

// Event is an immutable, append-only record of one dispatch decision.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; no dispatch transition blocks on audit failure.
//
// Storage recommendation (Postgres):
// - Table dispatch_events with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the record.
	Type EventType `json:"type" db:"type"`

	BookingID string `json:"booking_id" db:"booking_id"`
	EntryID   string `json:"entry_id,omitempty" db:"entry_id"`
	DriverID  string `json:"driver_id,omitempty" db:"driver_id"`

	// CallID is the provider correlation id, when a call was involved.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// Detail is a short human-readable description for internal ops.
	Detail string `json:"detail,omitempty" db:"detail"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallPlaced     EventType = "call_placed"
	EventTypeDriverAccepted EventType = "driver_accepted"
	EventTypeDriverDeclined EventType = "driver_declined"
	EventTypeDriverNoAnswer EventType = "driver_no_answer"
	EventTypeCallFailed     EventType = "call_failed"
	EventTypePoolExhausted  EventType = "pool_exhausted"
)
