package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// It mirrors the conditional-update semantics of the Postgres store: every
// status-guarded transition succeeds for at most one caller.

type MemoryStore struct {
	mu       sync.Mutex
	bookings map[string]*Booking
	drivers  map[string]*Driver
	entries  map[string]*QueueEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: map[string]*Booking{},
		drivers:  map[string]*Driver{},
		entries:  map[string]*QueueEntry{},
	}
}

// Seed helpers for tests.

func (s *MemoryStore) PutBooking(b Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := b
	s.bookings[b.ID] = &cp
}

func (s *MemoryStore) PutDriver(d Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := d
	s.drivers[d.ID] = &cp
}

func (s *MemoryStore) PutEntry(e QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e
	s.entries[e.ID] = &cp
}

func (s *MemoryStore) Entry(id string) (QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return QueueEntry{}, false
	}
	return *e, true
}

func (s *MemoryStore) Booking(id string) (Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return Booking{}, false
	}
	return *b, true
}

func (s *MemoryStore) EntryForCall(ctx context.Context, callID string) (EntryDetail, error) {
	if callID == "" {
		return EntryDetail{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.CallID != nil && *e.CallID == callID && e.Status == EntryStatusCalling {
			return s.detailLocked(e)
		}
	}
	return EntryDetail{}, ErrEntryNotFound
}

func (s *MemoryStore) ResolveCallingEntry(ctx context.Context, entryID string, status EntryStatus, response *string, respondedAt time.Time) (bool, error) {
	if entryID == "" || !status.Terminal() {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok || e.Status != EntryStatusCalling {
		return false, nil
	}
	e.Status = status
	e.Response = response
	t := respondedAt
	e.RespondedAt = &t
	return true, nil
}

func (s *MemoryStore) NextPendingEntry(ctx context.Context, bookingID string) (EntryDetail, bool, error) {
	if bookingID == "" {
		return EntryDetail{}, false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*QueueEntry
	for _, e := range s.entries {
		if e.BookingID == bookingID && e.Status == EntryStatusPending {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return EntryDetail{}, false, nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Position != pending[j].Position {
			return pending[i].Position < pending[j].Position
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	d, err := s.detailLocked(pending[0])
	if err != nil {
		return EntryDetail{}, false, err
	}
	return d, true, nil
}

func (s *MemoryStore) MarkEntryCalling(ctx context.Context, entryID string, calledAt time.Time) (bool, error) {
	if entryID == "" {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok || e.Status != EntryStatusPending {
		return false, nil
	}
	e.Status = EntryStatusCalling
	t := calledAt
	e.CalledAt = &t
	return true, nil
}

func (s *MemoryStore) SetEntryCallID(ctx context.Context, entryID, callID string) error {
	if entryID == "" || callID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	e.CallID = &callID
	return nil
}

func (s *MemoryStore) MarkEntryFailed(ctx context.Context, entryID string) error {
	if entryID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	if e.Status == EntryStatusCalling {
		e.Status = EntryStatusFailed
	}
	return nil
}

// AcceptEntry applies the whole accept transition under one lock hold, the
// in-memory analogue of the Postgres transaction.
func (s *MemoryStore) AcceptEntry(ctx context.Context, entryID, bookingID, driverID string, distanceKm float64, response *string, respondedAt time.Time) (bool, error) {
	if entryID == "" || bookingID == "" || driverID == "" {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok || e.Status != EntryStatusCalling {
		return false, nil
	}
	b, ok := s.bookings[bookingID]
	if !ok {
		return false, ErrBookingNotFound
	}

	e.Status = EntryStatusAccepted
	e.Response = response
	t := respondedAt
	e.RespondedAt = &t

	b.Status = BookingStatusAssigned
	d := driverID
	b.AssignedDriverID = &d
	km := distanceKm
	b.AssignedDistanceKm = &km

	for _, sib := range s.entries {
		if sib.BookingID == bookingID && sib.Status == EntryStatusPending {
			sib.Status = EntryStatusCancelled
		}
	}
	return true, nil
}

func (s *MemoryStore) MarkBookingExhausted(ctx context.Context, bookingID, note string) error {
	if bookingID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return ErrBookingNotFound
	}
	b.Status = BookingStatusNoDriversAvailable
	if b.Remarks == "" {
		b.Remarks = note
	} else {
		b.Remarks = b.Remarks + "\n" + note
	}
	return nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	if bookingID == "" {
		return Booking{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return *b, nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, bookingID string) ([]QueueEntry, error) {
	if bookingID == "" {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []QueueEntry
	for _, e := range s.entries {
		if e.BookingID == bookingID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) detailLocked(e *QueueEntry) (EntryDetail, error) {
	b, ok := s.bookings[e.BookingID]
	if !ok {
		return EntryDetail{}, ErrBookingNotFound
	}
	d, ok := s.drivers[e.DriverID]
	if !ok {
		return EntryDetail{}, ErrEntryNotFound
	}
	return EntryDetail{Entry: *e, Booking: *b, Driver: *d}, nil
}
