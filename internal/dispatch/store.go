package dispatch

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEntryNotFound means no queue entry in status calling matched the call id.
	// A duplicate or stale callback lands here; callers treat it as already
	// processed, not as a failure.
	ErrEntryNotFound = errors.New("dispatch: queue entry not found")

	ErrBookingNotFound = errors.New("dispatch: booking not found")

	ErrInvalidArgument = errors.New("dispatch: invalid argument")
)

// Store is the persistence contract for bookings and their candidate queue.
//
// Concurrency rules:
//   - ResolveCallingEntry, AcceptEntry, and MarkEntryCalling are guarded by a
//     conditional update on the entry's calling/pending status; the guard
//     admits exactly one caller when callbacks race and is the only
//     concurrency mechanism in the system.
//   - AcceptEntry applies its three mutations in one transaction so a crash
//     mid-sequence leaves the entry in calling and a retry converges. No
//     store method holds locks across a provider call; the engine only
//     dials after every write has returned.
type Store interface {
	// EntryForCall fetches the entry with the given provider call id, joined
	// with its booking and driver rows, restricted to status calling.
	// Returns ErrEntryNotFound when no such row exists.
	EntryForCall(ctx context.Context, callID string) (EntryDetail, error)

	// ResolveCallingEntry moves an entry from calling to the given terminal
	// status, recording the raw response and response time. It reports false
	// when the entry was not in calling anymore (lost race, already resolved).
	ResolveCallingEntry(ctx context.Context, entryID string, status EntryStatus, response *string, respondedAt time.Time) (bool, error)

	// AcceptEntry atomically moves an entry from calling to accepted, marks
	// the booking assigned to the entry's driver, and cancels the remaining
	// pending siblings. All three mutations commit together or not at all.
	// Reports false when the entry was not in calling anymore.
	AcceptEntry(ctx context.Context, entryID, bookingID, driverID string, distanceKm float64, response *string, respondedAt time.Time) (bool, error)

	// NextPendingEntry returns the pending entry with the lowest position for
	// the booking, with joins. ok is false when the pool is exhausted.
	NextPendingEntry(ctx context.Context, bookingID string) (detail EntryDetail, ok bool, err error)

	// MarkEntryCalling moves an entry from pending to calling with the
	// call-placed timestamp. Reports false if the entry was not pending.
	MarkEntryCalling(ctx context.Context, entryID string, calledAt time.Time) (bool, error)

	// SetEntryCallID stores the provider correlation id after a call is placed.
	SetEntryCallID(ctx context.Context, entryID, callID string) error

	// MarkEntryFailed moves an entry from calling to failed after the outbound
	// call to the provider itself failed. Terminal; the entry is not retried.
	MarkEntryFailed(ctx context.Context, entryID string) error

	// MarkBookingExhausted sets the booking to no_drivers_available and
	// appends a diagnostic note to its remarks.
	MarkBookingExhausted(ctx context.Context, bookingID, note string) error

	// GetBooking fetches a booking by id. Returns ErrBookingNotFound.
	GetBooking(ctx context.Context, bookingID string) (Booking, error)

	// ListEntries returns all queue entries for a booking ordered by position
	// then creation time.
	ListEntries(ctx context.Context, bookingID string) ([]QueueEntry, error)
}
