package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// EnsureSchema creates tables and indexes if they do not exist yet. The
// partial unique index on attendance_records is the authoritative
// enforcement of the one-open-session-per-child rule; the service layer
// only mirrors it defensively.
func (d *DB) EnsureSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS staff (
		id UUID PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'staff',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS parents (
		id UUID PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		qr_secret TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS children (
		id UUID PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		date_of_birth DATE,
		allergies TEXT,
		medical_notes TEXT,
		photo_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS parent_children (
		parent_id UUID NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
		child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		PRIMARY KEY (parent_id, child_id)
	);
	CREATE TABLE IF NOT EXISTS attendance_records (
		id UUID PRIMARY KEY,
		child_id UUID NOT NULL,
		parent_id UUID NOT NULL,
		check_in_time TIMESTAMPTZ NOT NULL,
		check_out_time TIMESTAMPTZ,
		check_in_staff_id UUID NOT NULL,
		check_out_staff_id UUID,
		notes TEXT,
		date DATE NOT NULL,
		CHECK (check_out_time IS NULL OR check_out_time >= check_in_time)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS attendance_one_open_per_child
		ON attendance_records (child_id) WHERE check_out_time IS NULL;
	CREATE INDEX IF NOT EXISTS attendance_by_date
		ON attendance_records (date);
	`
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}
