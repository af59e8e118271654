package reporting

import (
	"context"
	"database/sql"
	"time"

	"dispatch-platform/internal/dispatch"
)

// PostgresRepo reads attempt rows for aggregation.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListAttempts(ctx context.Context, from, to time.Time) ([]dispatch.QueueEntry, error) {
	const q = `
SELECT id, booking_id, driver_id, position, status, call_id, response,
       distance_km, called_at, responded_at, created_at
FROM queue_entries
WHERE called_at >= $1 AND called_at < $2
ORDER BY called_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dispatch.QueueEntry
	for rows.Next() {
		var e dispatch.QueueEntry
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
