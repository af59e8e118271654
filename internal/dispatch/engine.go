package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch-platform/pkg/logger"
	"dispatch-platform/pkg/metrics"
)

// CallRequest is the context the voice provider needs to run its script for
// one candidate driver.
type CallRequest struct {
	BookingID string `json:"booking_id"`
	EntryID   string `json:"entry_id"`

	DriverName  string `json:"driver_name"`
	DriverPhone string `json:"driver_phone"`

	PickupLocation      string  `json:"pickup_location"`
	DestinationFacility string  `json:"destination_facility"`
	ContactPhone        string  `json:"contact_phone"`
	DistanceKm          float64 `json:"distance_km"`
}

// CallGateway places one outbound call and returns the provider's correlation
// id. Implementations live in internal/voice.
type CallGateway interface {
	PlaceCall(ctx context.Context, req CallRequest) (callID string, err error)
}

// EventRecorder receives best-effort dispatch events for the internal audit
// trail. A nil recorder is allowed; failures never block a transition.
type EventRecorder interface {
	RecordDispatchEvent(ctx context.Context, event DispatchEvent)
}

// DispatchEvent names what happened to one queue entry.
type DispatchEvent struct {
	Type      string
	BookingID string
	EntryID   string
	DriverID  string
	CallID    string
	Detail    string
}

const (
	EventCallPlaced     = "call_placed"
	EventDriverAccepted = "driver_accepted"
	EventDriverDeclined = "driver_declined"
	EventDriverNoAnswer = "driver_no_answer"
	EventCallFailed     = "call_failed"
	EventPoolExhausted  = "pool_exhausted"
)

// ErrCallFailed wraps a gateway failure while dialing the next candidate.
var ErrCallFailed = errors.New("dispatch: outbound call failed")

// ErrAlreadyDispatched means StartDispatch was asked to begin a chain that is
// already underway or resolved.
var ErrAlreadyDispatched = errors.New("dispatch: booking already dispatched")

// Engine is the assignment state machine. It is stateless between
// invocations; all state lives in the Store, and the Store's conditional
// calling→terminal update is the only concurrency guard.
type Engine struct {
	store    Store
	gateway  CallGateway
	recorder EventRecorder
	clock    func() time.Time
}

func NewEngine(store Store, gateway CallGateway, recorder EventRecorder) *Engine {
	return &Engine{store: store, gateway: gateway, recorder: recorder, clock: time.Now}
}

// HandleOutcome processes one classified callback for a placed call.
//
// The entry must still be in status calling; a duplicate or stale callback
// fails with ErrEntryNotFound and changes nothing. The accept transition
// (resolve entry, assign booking, cancel siblings) commits atomically in the
// store, so a failure mid-accept leaves the entry in calling and the
// provider's retry converges to the same final state.
func (e *Engine) HandleOutcome(ctx context.Context, callID string, outcome Outcome, response string) (AssignmentResult, error) {
	if callID == "" {
		return AssignmentResult{}, ErrInvalidArgument
	}

	detail, err := e.store.EntryForCall(ctx, callID)
	if err != nil {
		return AssignmentResult{}, err
	}

	now := e.clock().UTC()
	var resp *string
	if response != "" {
		resp = &response
	}

	switch outcome {
	case OutcomeAccept:
		return e.accept(ctx, detail, resp, now)
	case OutcomeDecline:
		return e.advance(ctx, detail, EntryStatusRejected, EventDriverDeclined, resp, now)
	case OutcomeNoAnswer:
		return e.advance(ctx, detail, EntryStatusNoAnswer, EventDriverNoAnswer, resp, now)
	default:
		return AssignmentResult{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidArgument, outcome)
	}
}

// StartDispatch places the first call for a booking whose queue has not been
// attempted yet. It is the same advance step the decline path uses, exposed
// for the operator API.
func (e *Engine) StartDispatch(ctx context.Context, bookingID string) (AssignmentResult, error) {
	if bookingID == "" {
		return AssignmentResult{}, ErrInvalidArgument
	}
	booking, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return AssignmentResult{}, err
	}
	if booking.Status != BookingStatusPending {
		return AssignmentResult{}, ErrAlreadyDispatched
	}
	entries, err := e.store.ListEntries(ctx, bookingID)
	if err != nil {
		return AssignmentResult{}, err
	}
	for _, entry := range entries {
		if entry.Status != EntryStatusPending {
			return AssignmentResult{}, ErrAlreadyDispatched
		}
	}
	return e.callNext(ctx, bookingID)
}

func (e *Engine) accept(ctx context.Context, detail EntryDetail, response *string, now time.Time) (AssignmentResult, error) {
	won, err := e.store.AcceptEntry(ctx, detail.Entry.ID, detail.Entry.BookingID, detail.Entry.DriverID, detail.Entry.DistanceKm, response, now)
	if err != nil {
		// Rolled back whole; the entry is still in calling for the retry.
		return AssignmentResult{}, fmt.Errorf("accept entry: %w", err)
	}
	if !won {
		// A concurrent callback got there first.
		return AssignmentResult{}, ErrEntryNotFound
	}

	e.record(ctx, DispatchEvent{
		Type:      EventDriverAccepted,
		BookingID: detail.Entry.BookingID,
		EntryID:   detail.Entry.ID,
		DriverID:  detail.Entry.DriverID,
		CallID:    stringOrEmpty(detail.Entry.CallID),
	})
	metrics.AssignmentsTotal.WithLabelValues(string(ActionAssigned)).Inc()

	booking := detail.Booking
	booking.Status = BookingStatusAssigned
	booking.AssignedDriverID = &detail.Entry.DriverID
	booking.AssignedDistanceKm = &detail.Entry.DistanceKm
	driver := detail.Driver

	logger.From(ctx).Info("driver assigned",
		"booking_id", booking.ID, "driver_id", driver.ID, "position", detail.Entry.Position)

	return AssignmentResult{Action: ActionAssigned, Booking: &booking, Driver: &driver}, nil
}

func (e *Engine) advance(ctx context.Context, detail EntryDetail, status EntryStatus, eventType string, response *string, now time.Time) (AssignmentResult, error) {
	won, err := e.store.ResolveCallingEntry(ctx, detail.Entry.ID, status, response, now)
	if err != nil {
		return AssignmentResult{}, fmt.Errorf("resolve entry: %w", err)
	}
	if !won {
		return AssignmentResult{}, ErrEntryNotFound
	}

	e.record(ctx, DispatchEvent{
		Type:      eventType,
		BookingID: detail.Entry.BookingID,
		EntryID:   detail.Entry.ID,
		DriverID:  detail.Entry.DriverID,
		CallID:    stringOrEmpty(detail.Entry.CallID),
	})

	return e.callNext(ctx, detail.Entry.BookingID)
}

// callNext dials the lowest-position pending candidate, or declares the pool
// exhausted. A gateway failure leaves the attempted entry failed and does not
// cascade to the candidate after it.
func (e *Engine) callNext(ctx context.Context, bookingID string) (AssignmentResult, error) {
	log := logger.From(ctx)

	next, ok, err := e.store.NextPendingEntry(ctx, bookingID)
	if err != nil {
		return AssignmentResult{}, fmt.Errorf("next pending: %w", err)
	}
	if !ok {
		note := fmt.Sprintf("no drivers available: candidate pool exhausted at %s", e.clock().UTC().Format(time.RFC3339))
		if err := e.store.MarkBookingExhausted(ctx, bookingID, note); err != nil {
			return AssignmentResult{}, fmt.Errorf("mark exhausted: %w", err)
		}
		e.record(ctx, DispatchEvent{Type: EventPoolExhausted, BookingID: bookingID, Detail: note})
		metrics.AssignmentsTotal.WithLabelValues(string(ActionExhausted)).Inc()
		log.Info("candidate pool exhausted", "booking_id", bookingID)
		return AssignmentResult{Action: ActionExhausted}, nil
	}

	now := e.clock().UTC()
	won, err := e.store.MarkEntryCalling(ctx, next.Entry.ID, now)
	if err != nil {
		return AssignmentResult{}, fmt.Errorf("mark calling: %w", err)
	}
	if !won {
		// Someone else already took this entry out of pending.
		return AssignmentResult{}, ErrEntryNotFound
	}

	callID, err := e.gateway.PlaceCall(ctx, CallRequest{
		BookingID:           next.Booking.ID,
		EntryID:             next.Entry.ID,
		DriverName:          next.Driver.Name,
		DriverPhone:         next.Driver.Phone,
		PickupLocation:      next.Booking.PickupLocation,
		DestinationFacility: next.Booking.DestinationFacility,
		ContactPhone:        next.Booking.ContactPhone,
		DistanceKm:          next.Entry.DistanceKm,
	})
	if err != nil {
		if ferr := e.store.MarkEntryFailed(ctx, next.Entry.ID); ferr != nil {
			log.Error("mark entry failed after gateway error", "entry_id", next.Entry.ID, "err", ferr)
		}
		e.record(ctx, DispatchEvent{
			Type:      EventCallFailed,
			BookingID: bookingID,
			EntryID:   next.Entry.ID,
			DriverID:  next.Entry.DriverID,
			Detail:    err.Error(),
		})
		metrics.OutboundCallsTotal.WithLabelValues("failed").Inc()
		log.Error("outbound call failed", "booking_id", bookingID, "driver_id", next.Entry.DriverID, "err", err)
		return AssignmentResult{Action: ActionCallFailed, Err: fmt.Errorf("%w: %v", ErrCallFailed, err)}, nil
	}

	if err := e.store.SetEntryCallID(ctx, next.Entry.ID, callID); err != nil {
		return AssignmentResult{}, fmt.Errorf("store call id: %w", err)
	}

	e.record(ctx, DispatchEvent{
		Type:      EventCallPlaced,
		BookingID: bookingID,
		EntryID:   next.Entry.ID,
		DriverID:  next.Entry.DriverID,
		CallID:    callID,
	})
	metrics.OutboundCallsTotal.WithLabelValues("placed").Inc()
	log.Info("calling next candidate",
		"booking_id", bookingID, "driver_id", next.Entry.DriverID, "position", next.Entry.Position, "call_id", callID)

	driver := next.Driver
	return AssignmentResult{Action: ActionCalledNext, Driver: &driver}, nil
}

func (e *Engine) record(ctx context.Context, ev DispatchEvent) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordDispatchEvent(ctx, ev)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
