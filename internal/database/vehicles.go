package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentacar/internal/models"
)

// CreateVehicle inserts a vehicle and fills in its ID.
func (db *DB) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	pricing, err := json.Marshal(v.Pricing)
	if err != nil {
		return fmt.Errorf("encode pricing: %w", err)
	}
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`INSERT INTO vehicles (name, plate, is_active, pricing, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.Name, v.Plate, v.IsActive, string(pricing), now, now,
	)
	if err != nil {
		if isUniqueViolation(err, "vehicles.name") {
			return ErrDuplicateVehicle
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = id
	v.CreatedAt, v.UpdatedAt = now, now
	return nil
}

// GetVehicle returns a vehicle by ID.
func (db *DB) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, name, plate, is_active, pricing, created_at, updated_at FROM vehicles WHERE id = ?`, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// ListVehicles returns all vehicles ordered by name.
func (db *DB) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, plate, is_active, pricing, created_at, updated_at FROM vehicles ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

// UpdateVehiclePricing replaces a vehicle's price table.
func (db *DB) UpdateVehiclePricing(ctx context.Context, id int64, pricing models.PriceTable) error {
	data, err := json.Marshal(pricing)
	if err != nil {
		return fmt.Errorf("encode pricing: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`UPDATE vehicles SET pricing = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// DeleteVehicle removes a vehicle. Its reservations are kept.
func (db *DB) DeleteVehicle(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (*models.Vehicle, error) {
	var v models.Vehicle
	var pricing string
	if err := row.Scan(&v.ID, &v.Name, &v.Plate, &v.IsActive, &pricing, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if pricing != "" {
		if err := json.Unmarshal([]byte(pricing), &v.Pricing); err != nil {
			return nil, fmt.Errorf("decode pricing of vehicle %d: %w", v.ID, err)
		}
	}
	return &v, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
