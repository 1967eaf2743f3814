package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB represents the database connection.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrDuplicateVehicle     = errors.New("vehicle name already exists")
)

// NewDB initializes a new database connection and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode plus busy timeout so readers never block the single writer
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		path:   path,
		logger: logger,
	}

	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS vehicles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			plate TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			pricing TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// vehicle_id has no foreign key: deleting a vehicle leaves its
		// reservations in place with a dangling reference
		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			order_number TEXT NOT NULL,
			vehicle_id INTEGER NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			business_start_day TEXT NOT NULL,
			business_end_day TEXT NOT NULL,
			days INTEGER NOT NULL,
			confirmed BOOLEAN NOT NULL DEFAULT 0,
			ownership TEXT NOT NULL,
			created_by_role TEXT NOT NULL DEFAULT '',
			insurance_tier TEXT NOT NULL DEFAULT '',
			child_seats INTEGER NOT NULL DEFAULT 0,
			second_driver BOOLEAN NOT NULL DEFAULT 0,
			pickup_place TEXT NOT NULL DEFAULT '',
			return_place TEXT NOT NULL DEFAULT '',
			franchise INTEGER NOT NULL DEFAULT 0,
			total_price INTEGER NOT NULL DEFAULT 0,
			override_price INTEGER,
			client_name TEXT NOT NULL DEFAULT '',
			client_phone TEXT NOT NULL DEFAULT '',
			client_email TEXT NOT NULL DEFAULT '',
			client_messaging TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_order_number ON reservations(order_number)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_vehicle_days ON reservations(vehicle_id, business_start_day, business_end_day)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_confirmed ON reservations(confirmed)`,

		// Directed soft-conflict edges; each pending pair is stored in both directions.
		`CREATE TABLE IF NOT EXISTS reservation_conflicts (
			reservation_id TEXT NOT NULL,
			conflicting_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (reservation_id, conflicting_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reservation_conflicts_other ON reservation_conflicts(conflicting_id)`,

		`CREATE TABLE IF NOT EXISTS discount_windows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_day TEXT NOT NULL,
			end_day TEXT NOT NULL,
			percentage REAL NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discount_windows_active ON discount_windows(is_active)`,

		// one row per delivered pickup/return reminder; due_at is part of the
		// key so a moved reservation is reminded again
		`CREATE TABLE IF NOT EXISTS handover_reminders (
			reservation_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			due_at TEXT NOT NULL,
			sent_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (reservation_id, kind, due_at)
		)`,

		`CREATE TABLE IF NOT EXISTS staff (
			user_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			added_by INTEGER NOT NULL DEFAULT 0,
			added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ready pings the database for the readiness check.
func (db *DB) Ready(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
