package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rentacar/internal/models"
)

// ActiveDiscount returns the active discount window, or nil when none is active.
// It always reads the table; staff may change the window between requests.
func (db *DB) ActiveDiscount(ctx context.Context) (*models.DiscountWindow, error) {
	var w models.DiscountWindow
	err := db.QueryRowContext(ctx,
		`SELECT id, start_day, end_day, percentage, is_active, created_at
		FROM discount_windows WHERE is_active = 1 ORDER BY id DESC LIMIT 1`,
	).Scan(&w.ID, &w.StartDay, &w.EndDay, &w.Percentage, &w.IsActive, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// SetDiscount deactivates any current window and activates w.
func (db *DB) SetDiscount(ctx context.Context, w *models.DiscountWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE discount_windows SET is_active = 0 WHERE is_active = 1`); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO discount_windows (start_day, end_day, percentage, is_active, created_at) VALUES (?, ?, ?, 1, ?)`,
		w.StartDay, w.EndDay, w.Percentage, now,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	w.ID, w.IsActive, w.CreatedAt = id, true, now
	if db.logger != nil {
		db.logger.Info().
			Str("start_day", w.StartDay.String()).
			Str("end_day", w.EndDay.String()).
			Float64("percentage", w.Percentage).
			Msg("Discount window activated")
	}
	return nil
}

// ClearDiscount deactivates the current window, if any.
func (db *DB) ClearDiscount(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `UPDATE discount_windows SET is_active = 0 WHERE is_active = 1`)
	return err
}
