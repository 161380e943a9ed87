package store

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS doctors (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS medications (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
		unit_price NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (unit_price >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS examinations (
		id BIGSERIAL PRIMARY KEY,
		patient_id BIGINT NOT NULL REFERENCES patients(id),
		doctor_id BIGINT NOT NULL REFERENCES doctors(id),
		examined_at TIMESTAMPTZ NOT NULL,
		complaint TEXT NOT NULL DEFAULT '',
		diagnosis TEXT NOT NULL DEFAULT '',
		recommendation TEXT NOT NULL DEFAULT '',
		prescription_status TEXT NOT NULL DEFAULT 'Waiting'
			CHECK (prescription_status IN ('Waiting', 'Completed', 'Cancelled')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS examinations_status_idx ON examinations (prescription_status)`,
	`CREATE TABLE IF NOT EXISTS prescription_items (
		id BIGSERIAL PRIMARY KEY,
		examination_id BIGINT NOT NULL REFERENCES examinations(id) ON DELETE CASCADE,
		medication_id BIGINT NOT NULL REFERENCES medications(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		directions TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS prescription_items_examination_idx ON prescription_items (examination_id)`,
	`CREATE TABLE IF NOT EXISTS payment_methods (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL CHECK (category IN ('Cash', 'NonCash', 'Guarantee')),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		examination_id BIGINT NOT NULL REFERENCES examinations(id),
		payment_method_id BIGINT REFERENCES payment_methods(id),
		amount_billed NUMERIC(14,2) NOT NULL CHECK (amount_billed >= 0),
		amount_tendered NUMERIC(14,2) NOT NULL CHECK (amount_tendered >= 0),
		change_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('Unpaid', 'Paid', 'Deferred')),
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_one_paid_per_examination
		ON payments (examination_id) WHERE status = 'Paid'`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS doctors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS medications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
		unit_price NUMERIC NOT NULL DEFAULT 0 CHECK (unit_price >= 0),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS examinations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL REFERENCES patients(id),
		doctor_id INTEGER NOT NULL REFERENCES doctors(id),
		examined_at DATETIME NOT NULL,
		complaint TEXT NOT NULL DEFAULT '',
		diagnosis TEXT NOT NULL DEFAULT '',
		recommendation TEXT NOT NULL DEFAULT '',
		prescription_status TEXT NOT NULL DEFAULT 'Waiting'
			CHECK (prescription_status IN ('Waiting', 'Completed', 'Cancelled')),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS examinations_status_idx ON examinations (prescription_status)`,
	`CREATE TABLE IF NOT EXISTS prescription_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		examination_id INTEGER NOT NULL REFERENCES examinations(id) ON DELETE CASCADE,
		medication_id INTEGER NOT NULL REFERENCES medications(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		directions TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS prescription_items_examination_idx ON prescription_items (examination_id)`,
	`CREATE TABLE IF NOT EXISTS payment_methods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL CHECK (category IN ('Cash', 'NonCash', 'Guarantee')),
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		examination_id INTEGER NOT NULL REFERENCES examinations(id),
		payment_method_id INTEGER REFERENCES payment_methods(id),
		amount_billed NUMERIC NOT NULL CHECK (amount_billed >= 0),
		amount_tendered NUMERIC NOT NULL CHECK (amount_tendered >= 0),
		change_amount NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('Unpaid', 'Paid', 'Deferred')),
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_one_paid_per_examination
		ON payments (examination_id) WHERE status = 'Paid'`,
}

// Migrate creates the tables the settlement pipeline needs if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.driver == DriverSQLite {
		schema = sqliteSchema
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
