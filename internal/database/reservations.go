package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentacar/internal/bizdate"
	"rentacar/internal/models"
)

const reservationColumns = `id, order_number, vehicle_id, start_at, end_at,
	business_start_day, business_end_day, days, confirmed, ownership, created_by_role,
	insurance_tier, child_seats, second_driver, pickup_place, return_place, franchise,
	total_price, override_price, client_name, client_phone, client_email, client_messaging,
	created_at, updated_at, version`

// GetReservation returns a reservation with its conflict set.
func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	conflicts, err := db.conflictsFor(ctx, `SELECT reservation_id, conflicting_id FROM reservation_conflicts
		WHERE reservation_id = ? ORDER BY conflicting_id`, id)
	if err != nil {
		return nil, err
	}
	r.Conflicts = conflicts[r.ID]
	return r, nil
}

// ListVehicleReservations returns every reservation of a vehicle, ordered by start.
func (db *DB) ListVehicleReservations(ctx context.Context, vehicleID int64) ([]models.Reservation, error) {
	return db.listReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE vehicle_id = ? ORDER BY start_at, id`,
		`SELECT c.reservation_id, c.conflicting_id FROM reservation_conflicts c
		JOIN reservations r ON r.id = c.reservation_id
		WHERE r.vehicle_id = ? ORDER BY c.conflicting_id`,
		vehicleID,
	)
}

// ListReservationsInRange returns a vehicle's reservations whose business days
// intersect [from, to].
func (db *DB) ListReservationsInRange(ctx context.Context, vehicleID int64, from, to bizdate.Day) ([]models.Reservation, error) {
	return db.listReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		WHERE vehicle_id = ? AND business_start_day <= ? AND business_end_day >= ?
		ORDER BY start_at, id`,
		`SELECT c.reservation_id, c.conflicting_id FROM reservation_conflicts c
		JOIN reservations r ON r.id = c.reservation_id
		WHERE r.vehicle_id = ? AND r.business_start_day <= ? AND r.business_end_day >= ?
		ORDER BY c.conflicting_id`,
		vehicleID, to.String(), from.String(),
	)
}

func (db *DB) listReservations(ctx context.Context, query, conflictsQuery string, args ...any) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conflicts, err := db.conflictsFor(ctx, conflictsQuery, args...)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Conflicts = conflicts[out[i].ID]
	}
	return out, nil
}

func (db *DB) conflictsFor(ctx context.Context, query string, args ...any) (map[string][]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var id, other string
		if err := rows.Scan(&id, &other); err != nil {
			return nil, err
		}
		out[id] = append(out[id], other)
	}
	return out, rows.Err()
}

// ApplyChanges writes reservations, their conflict edges and deletions in one
// transaction, so a conflict set never lags behind the interval that produced it.
func (db *DB) ApplyChanges(ctx context.Context, cs models.ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()

	for _, id := range cs.Deletes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM reservation_conflicts WHERE reservation_id = ? OR conflicting_id = ?`, id, id); err != nil {
			return fmt.Errorf("detach %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}

	for i := range cs.Upserts {
		r := &cs.Upserts[i]
		if err := upsertReservation(ctx, tx, r, now); err != nil {
			if isUniqueViolation(err, "order_number") {
				return ErrDuplicateOrderNumber
			}
			return fmt.Errorf("save %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM reservation_conflicts WHERE reservation_id = ?`, r.ID); err != nil {
			return fmt.Errorf("reset conflicts of %s: %w", r.ID, err)
		}
		for _, other := range r.Conflicts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO reservation_conflicts (reservation_id, conflicting_id, created_at) VALUES (?, ?, ?)`,
				r.ID, other, now); err != nil {
				return fmt.Errorf("link %s -> %s: %w", r.ID, other, err)
			}
		}
	}

	return tx.Commit()
}

func upsertReservation(ctx context.Context, tx *sql.Tx, r *models.Reservation, now time.Time) error {
	// business days are always re-derived from the instants on write
	r.Sync()

	var override sql.NullInt64
	if r.OverridePrice != nil {
		override = sql.NullInt64{Int64: *r.OverridePrice, Valid: true}
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			vehicle_id = excluded.vehicle_id,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			business_start_day = excluded.business_start_day,
			business_end_day = excluded.business_end_day,
			days = excluded.days,
			confirmed = excluded.confirmed,
			insurance_tier = excluded.insurance_tier,
			child_seats = excluded.child_seats,
			second_driver = excluded.second_driver,
			pickup_place = excluded.pickup_place,
			return_place = excluded.return_place,
			franchise = excluded.franchise,
			total_price = excluded.total_price,
			override_price = excluded.override_price,
			client_name = excluded.client_name,
			client_phone = excluded.client_phone,
			client_email = excluded.client_email,
			client_messaging = excluded.client_messaging,
			updated_at = excluded.updated_at,
			version = reservations.version + 1`,
		r.ID, r.OrderNumber, r.VehicleID, r.Start.UTC(), r.End.UTC(),
		r.StartDay, r.EndDay, r.Days, r.Confirmed, string(r.Ownership), string(r.CreatedByRole),
		r.AddOns.InsuranceTier, r.AddOns.ChildSeats, r.AddOns.SecondDriver, r.PickupPlace, r.ReturnPlace, r.Franchise,
		r.TotalPrice, override, r.Client.Name, r.Client.Phone, r.Client.Email, r.Client.Messaging,
		createdAt, now,
	)
	return err
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var ownership, role string
	var override sql.NullInt64
	err := row.Scan(
		&r.ID, &r.OrderNumber, &r.VehicleID, &r.Start, &r.End,
		&r.StartDay, &r.EndDay, &r.Days, &r.Confirmed, &ownership, &role,
		&r.AddOns.InsuranceTier, &r.AddOns.ChildSeats, &r.AddOns.SecondDriver, &r.PickupPlace, &r.ReturnPlace, &r.Franchise,
		&r.TotalPrice, &override, &r.Client.Name, &r.Client.Phone, &r.Client.Email, &r.Client.Messaging,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.Ownership = models.Ownership(ownership)
	r.CreatedByRole = models.Role(strings.TrimSpace(role))
	if override.Valid {
		v := override.Int64
		r.OverridePrice = &v
	}
	return &r, nil
}
