package database

import (
	"context"
	"time"

	"rentacar/internal/bizdate"
	"rentacar/internal/models"
)

// ListConfirmedHandovers returns confirmed reservations that start or end on a
// business day within [from, to].
func (db *DB) ListConfirmedHandovers(ctx context.Context, from, to bizdate.Day) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE confirmed = 1
		  AND ((business_start_day BETWEEN ? AND ?) OR (business_end_day BETWEEN ? AND ?))
		ORDER BY start_at, id`,
		from.String(), to.String(), from.String(), to.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ReminderSent reports whether the reminder for this reservation, kind and due
// instant was already delivered.
func (db *DB) ReminderSent(ctx context.Context, reservationID, kind string, dueAt time.Time) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM handover_reminders WHERE reservation_id = ? AND kind = ? AND due_at = ?`,
		reservationID, kind, reminderKey(dueAt),
	).Scan(&n)
	return n > 0, err
}

// MarkReminderSent records a delivered reminder. Marking twice is a no-op.
func (db *DB) MarkReminderSent(ctx context.Context, reservationID, kind string, dueAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO handover_reminders (reservation_id, kind, due_at, sent_at) VALUES (?, ?, ?, ?)`,
		reservationID, kind, reminderKey(dueAt), time.Now().UTC(),
	)
	return err
}

func reminderKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
