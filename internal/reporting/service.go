package reporting

import (
	"context"
	"errors"
	"time"

	"dispatch-platform/internal/dispatch"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations should read the queue_entries rows only; entries are never
// rewritten after reaching a terminal state, which makes them a stable
// aggregation source.

type Repository interface {
	// ListAttempts returns entries whose call was placed inside [from, to).
	ListAttempts(ctx context.Context, from, to time.Time) ([]dispatch.QueueEntry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (DispatchSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return DispatchSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return DispatchSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListAttempts(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return DispatchSummary{}, err
	}

	var out DispatchSummary
	var positionSum int
	var distanceSum float64
	for _, e := range rows {
		out.TotalAttempts++
		switch e.Status {
		case dispatch.EntryStatusAccepted:
			out.Accepted++
			positionSum += e.Position
			distanceSum += e.DistanceKm
		case dispatch.EntryStatusRejected:
			out.Rejected++
		case dispatch.EntryStatusNoAnswer:
			out.NoAnswer++
		case dispatch.EntryStatusFailed:
			out.Failed++
		case dispatch.EntryStatusCalling:
			out.StillCalling++
		}
	}
	if out.TotalAttempts > 0 {
		out.AcceptRate = float64(out.Accepted) / float64(out.TotalAttempts)
	}
	if out.Accepted > 0 {
		out.AveragePositionAccepted = float64(positionSum) / float64(out.Accepted)
		out.AverageDistanceKmAccepted = distanceSum / float64(out.Accepted)
	}
	return out, nil
}
