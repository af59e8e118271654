package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends events to the dispatch_events table.
// The table should carry an INSERT-only policy; this repo exposes no reads.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO dispatch_events (
  id, type, booking_id, entry_id, driver_id, call_id, detail, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		e.BookingID,
		e.EntryID,
		e.DriverID,
		e.CallID,
		e.Detail,
		e.CreatedAt,
	)
	return err
}
