package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dispatch-platform/pkg/utils"
)

// PostgresStore implements Store over the following tables:
// - bookings
// - drivers
// - queue_entries
//
// All status-guarded transitions use conditional UPDATE ... WHERE status = ...
// so that concurrent callbacks for the same call id resolve to exactly one
// winner. The accept transition bundles its writes in one short transaction;
// no transaction or lock is ever held across a call to the voice provider.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EntryForCall(ctx context.Context, callID string) (EntryDetail, error) {
	if callID == "" {
		return EntryDetail{}, ErrInvalidArgument
	}
	const q = `
SELECT
  e.id, e.booking_id, e.driver_id, e.position, e.status, e.call_id, e.response,
  e.distance_km, e.called_at, e.responded_at, e.created_at,
  b.id, b.pickup_location, b.destination_facility, b.contact_phone, b.remarks,
  b.status, b.assigned_driver_id, b.assigned_distance_km,
  d.id, d.name, d.phone
FROM queue_entries e
JOIN bookings b ON b.id = e.booking_id
JOIN drivers d ON d.id = e.driver_id
WHERE e.call_id = $1 AND e.status = $2
`
	return s.scanDetail(s.db.QueryRowContext(ctx, q, callID, EntryStatusCalling))
}

func (s *PostgresStore) ResolveCallingEntry(ctx context.Context, entryID string, status EntryStatus, response *string, respondedAt time.Time) (bool, error) {
	if entryID == "" || !status.Terminal() {
		return false, ErrInvalidArgument
	}
	const q = `
UPDATE queue_entries
SET status = $1, response = $2, responded_at = $3
WHERE id = $4 AND status = $5
`
	res, err := s.db.ExecContext(ctx, q, status, response, respondedAt, entryID, EntryStatusCalling)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) NextPendingEntry(ctx context.Context, bookingID string) (EntryDetail, bool, error) {
	if bookingID == "" {
		return EntryDetail{}, false, ErrInvalidArgument
	}
	const q = `
SELECT
  e.id, e.booking_id, e.driver_id, e.position, e.status, e.call_id, e.response,
  e.distance_km, e.called_at, e.responded_at, e.created_at,
  b.id, b.pickup_location, b.destination_facility, b.contact_phone, b.remarks,
  b.status, b.assigned_driver_id, b.assigned_distance_km,
  d.id, d.name, d.phone
FROM queue_entries e
JOIN bookings b ON b.id = e.booking_id
JOIN drivers d ON d.id = e.driver_id
WHERE e.booking_id = $1 AND e.status = $2
ORDER BY e.position ASC, e.created_at ASC
LIMIT 1
`
	detail, err := s.scanDetail(s.db.QueryRowContext(ctx, q, bookingID, EntryStatusPending))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return EntryDetail{}, false, nil
		}
		return EntryDetail{}, false, err
	}
	return detail, true, nil
}

func (s *PostgresStore) MarkEntryCalling(ctx context.Context, entryID string, calledAt time.Time) (bool, error) {
	if entryID == "" {
		return false, ErrInvalidArgument
	}
	const q = `
UPDATE queue_entries
SET status = $1, called_at = $2
WHERE id = $3 AND status = $4
`
	res, err := s.db.ExecContext(ctx, q, EntryStatusCalling, calledAt, entryID, EntryStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) SetEntryCallID(ctx context.Context, entryID, callID string) error {
	if entryID == "" || callID == "" {
		return ErrInvalidArgument
	}
	const q = `UPDATE queue_entries SET call_id = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, q, callID, entryID)
	return err
}

func (s *PostgresStore) MarkEntryFailed(ctx context.Context, entryID string) error {
	if entryID == "" {
		return ErrInvalidArgument
	}
	const q = `UPDATE queue_entries SET status = $1 WHERE id = $2 AND status = $3`
	_, err := s.db.ExecContext(ctx, q, EntryStatusFailed, entryID, EntryStatusCalling)
	return err
}

// AcceptEntry runs the accept transition in one transaction: resolve the
// entry, assign the booking, cancel pending siblings. The transaction holds
// no external call, so a crash anywhere before commit rolls everything back
// and the provider's retry finds the entry still in calling.
func (s *PostgresStore) AcceptEntry(ctx context.Context, entryID, bookingID, driverID string, distanceKm float64, response *string, respondedAt time.Time) (bool, error) {
	if entryID == "" || bookingID == "" || driverID == "" {
		return false, ErrInvalidArgument
	}

	won := false
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE queue_entries
SET status = $1, response = $2, responded_at = $3
WHERE id = $4 AND status = $5
`, EntryStatusAccepted, response, respondedAt, entryID, EntryStatusCalling)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			// Lost the race; nothing was written, nothing to undo.
			return nil
		}
		won = true

		res, err = tx.ExecContext(ctx, `
UPDATE bookings
SET status = $1, assigned_driver_id = $2, assigned_distance_km = $3
WHERE id = $4
`, BookingStatusAssigned, driverID, distanceKm, bookingID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBookingNotFound
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE queue_entries SET status = $1 WHERE booking_id = $2 AND status = $3`,
			EntryStatusCancelled, bookingID, EntryStatusPending)
		return err
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (s *PostgresStore) MarkBookingExhausted(ctx context.Context, bookingID, note string) error {
	if bookingID == "" {
		return ErrInvalidArgument
	}
	// Remarks are append-only here: the diagnostic note must not clobber
	// operator-entered text.
	const q = `
UPDATE bookings
SET status = $1,
    remarks = CASE WHEN remarks = '' THEN $2 ELSE remarks || E'\n' || $2 END
WHERE id = $3
`
	res, err := s.db.ExecContext(ctx, q, BookingStatusNoDriversAvailable, note, bookingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (s *PostgresStore) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	if bookingID == "" {
		return Booking{}, ErrInvalidArgument
	}
	const q = `
SELECT id, pickup_location, destination_facility, contact_phone, remarks,
       status, assigned_driver_id, assigned_distance_km
FROM bookings
WHERE id = $1
`
	var b Booking
	err := s.db.QueryRowContext(ctx, q, bookingID).Scan(
		&b.ID,
		&b.PickupLocation,
		&b.DestinationFacility,
		&b.ContactPhone,
		&b.Remarks,
		&b.Status,
		&b.AssignedDriverID,
		&b.AssignedDistanceKm,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Booking{}, ErrBookingNotFound
		}
		return Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, bookingID string) ([]QueueEntry, error) {
	if bookingID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT id, booking_id, driver_id, position, status, call_id, response,
       distance_km, called_at, responded_at, created_at
FROM queue_entries
WHERE booking_id = $1
ORDER BY position ASC, created_at ASC
`
	rows, err := s.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(
			&e.ID,
			&e.BookingID,
			&e.DriverID,
			&e.Position,
			&e.Status,
			&e.CallID,
			&e.Response,
			&e.DistanceKm,
			&e.CalledAt,
			&e.RespondedAt,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) scanDetail(row *sql.Row) (EntryDetail, error) {
	var d EntryDetail
	err := row.Scan(
		&d.Entry.ID,
		&d.Entry.BookingID,
		&d.Entry.DriverID,
		&d.Entry.Position,
		&d.Entry.Status,
		&d.Entry.CallID,
		&d.Entry.Response,
		&d.Entry.DistanceKm,
		&d.Entry.CalledAt,
		&d.Entry.RespondedAt,
		&d.Entry.CreatedAt,
		&d.Booking.ID,
		&d.Booking.PickupLocation,
		&d.Booking.DestinationFacility,
		&d.Booking.ContactPhone,
		&d.Booking.Remarks,
		&d.Booking.Status,
		&d.Booking.AssignedDriverID,
		&d.Booking.AssignedDistanceKm,
		&d.Driver.ID,
		&d.Driver.Name,
		&d.Driver.Phone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EntryDetail{}, ErrEntryNotFound
		}
		return EntryDetail{}, err
	}
	return d, nil
}
