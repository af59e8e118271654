package audit

import (
	"context"
	"errors"
	"time"

	"dispatch-platform/internal/dispatch"
	"dispatch-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for dispatch events.
//
// It MUST be append-only. No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records the internal dispatch trail: who was called for which
// booking, and how each attempt ended.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.BookingID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// RecordDispatchEvent implements dispatch.EventRecorder. Failures are logged
// and swallowed; the assignment flow never blocks on audit.
func (s *Service) RecordDispatchEvent(ctx context.Context, ev dispatch.DispatchEvent) {
	err := s.Append(ctx, Event{
		Type:      EventType(ev.Type),
		BookingID: ev.BookingID,
		EntryID:   ev.EntryID,
		DriverID:  ev.DriverID,
		CallID:    ev.CallID,
		Detail:    ev.Detail,
	})
	if err != nil {
		logger.From(ctx).Warn("dispatch audit append failed", "type", ev.Type, "booking_id", ev.BookingID, "err", err)
	}
}
