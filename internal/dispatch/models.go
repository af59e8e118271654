package dispatch

import "time"

// Booking represents one emergency transport request.
//
// Invariant: Booking status is mutated only by the assignment engine, and only
// on a terminal outcome (a driver accepted, or the candidate pool ran out).
// Creation and candidate ranking happen upstream and are not modeled here.

type Booking struct {
	ID                  string `json:"booking_id" db:"id"`
	PickupLocation      string `json:"pickup_location" db:"pickup_location"`
	DestinationFacility string `json:"destination_facility" db:"destination_facility"`
	ContactPhone        string `json:"contact_phone" db:"contact_phone"`
	Remarks             string `json:"remarks,omitempty" db:"remarks"`

	Status BookingStatus `json:"status" db:"status"`

	// AssignedDriverID and AssignedDistanceKm are set together when a driver accepts.
	AssignedDriverID   *string  `json:"assigned_driver_id,omitempty" db:"assigned_driver_id"`
	AssignedDistanceKm *float64 `json:"assigned_distance_km,omitempty" db:"assigned_distance_km"`
}

type BookingStatus string

const (
	BookingStatusPending            BookingStatus = "pending"
	BookingStatusAssigned           BookingStatus = "assigned"
	BookingStatusNoDriversAvailable BookingStatus = "no_drivers_available"
)

// Driver is the read-only slice of the driver record the dispatch flow needs:
// a display name for the voice script and a phone number to dial.
type Driver struct {
	ID    string `json:"driver_id" db:"id"`
	Name  string `json:"name" db:"name"`
	Phone string `json:"phone" db:"phone"`
}

// QueueEntry is one attempt record linking a booking to one candidate driver.
//
// Lifecycle: pending → calling → {accepted | rejected | no_answer | failed},
// plus pending → cancelled when a sibling entry is accepted. Terminal states
// are final; an entry never re-enters pending or calling.
//
// Ordering invariant: for a booking, candidates are attempted strictly by
// ascending Position; CreatedAt breaks ties.
type QueueEntry struct {
	ID        string `json:"entry_id" db:"id"`
	BookingID string `json:"booking_id" db:"booking_id"`
	DriverID  string `json:"driver_id" db:"driver_id"`

	// Position is the candidate's rank; lower positions are tried first.
	Position int `json:"position" db:"position"`

	Status EntryStatus `json:"status" db:"status"`

	// CallID is the provider's correlation id, set once a call is placed.
	CallID *string `json:"call_id,omitempty" db:"call_id"`

	// Response is the raw driver response text, when one was recovered.
	Response *string `json:"response,omitempty" db:"response"`

	DistanceKm float64 `json:"distance_km" db:"distance_km"`

	CalledAt    *time.Time `json:"called_at,omitempty" db:"called_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty" db:"responded_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCalling   EntryStatus = "calling"
	EntryStatusAccepted  EntryStatus = "accepted"
	EntryStatusRejected  EntryStatus = "rejected"
	EntryStatusNoAnswer  EntryStatus = "no_answer"
	EntryStatusCancelled EntryStatus = "cancelled"
	EntryStatusFailed    EntryStatus = "failed"
)

// Terminal reports whether no further transition can occur from s.
func (s EntryStatus) Terminal() bool {
	switch s {
	case EntryStatusAccepted, EntryStatusRejected, EntryStatusNoAnswer, EntryStatusCancelled, EntryStatusFailed:
		return true
	default:
		return false
	}
}

// Outcome is the classified result of one call attempt.
type Outcome string

const (
	OutcomeAccept   Outcome = "accept"
	OutcomeDecline  Outcome = "decline"
	OutcomeNoAnswer Outcome = "no_answer"
)

// Action describes what the engine decided after processing an outcome.
type Action string

const (
	ActionAssigned   Action = "assigned"
	ActionCalledNext Action = "called_next"
	ActionExhausted  Action = "exhausted"
	ActionCallFailed Action = "call_failed"
)

// AssignmentResult is the engine's answer for one processed callback.
type AssignmentResult struct {
	Action Action `json:"action"`

	Booking *Booking `json:"booking,omitempty"`
	Driver  *Driver  `json:"driver,omitempty"`

	// Err carries the gateway failure when Action == call_failed.
	Err error `json:"-"`
}

// EntryDetail is a queue entry joined with its booking and driver rows.
// The store returns it so the engine can build the voice-script context
// without a second round trip.
type EntryDetail struct {
	Entry   QueueEntry
	Booking Booking
	Driver  Driver
}
