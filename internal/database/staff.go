package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rentacar/internal/models"
)

// GetStaff returns a staff member, or nil when the user is not staff.
func (db *DB) GetStaff(ctx context.Context, userID int64) (*models.Staff, error) {
	var s models.Staff
	var role string
	err := db.QueryRowContext(ctx,
		"SELECT user_id, name, role, added_by, added_at FROM staff WHERE user_id = ?",
		userID,
	).Scan(&s.UserID, &s.Name, &role, &s.AddedBy, &s.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Role = models.Role(role)
	return &s, nil
}

// AddStaff adds or updates a staff member.
func (db *DB) AddStaff(ctx context.Context, s *models.Staff) error {
	if s.AddedAt.IsZero() {
		s.AddedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO staff (user_id, name, role, added_by, added_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.UserID, s.Name, string(s.Role), s.AddedBy, s.AddedAt,
	)
	return err
}

// RemoveStaff removes a staff member.
func (db *DB) RemoveStaff(ctx context.Context, userID int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM staff WHERE user_id = ?", userID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ListStaff returns all staff members.
func (db *DB) ListStaff(ctx context.Context) ([]models.Staff, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT user_id, name, role, added_by, added_at FROM staff ORDER BY added_at, user_id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []models.Staff
	for rows.Next() {
		var s models.Staff
		var role string
		if err := rows.Scan(&s.UserID, &s.Name, &role, &s.AddedBy, &s.AddedAt); err != nil {
			return nil, err
		}
		s.Role = models.Role(role)
		staff = append(staff, s)
	}
	return staff, rows.Err()
}
