package repositories

import (
	"context"

	"github.com/pkg/errors"
)

// schema holds the tables this service reads and writes. students is owned by
// the user-management service; only existence checks happen here.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS counselors (
		id UUID PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		busy_session_id UUID NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT counselors_busy_consistent CHECK (is_available = (busy_session_id IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		student_id UUID NOT NULL,
		counselor_id UUID NOT NULL REFERENCES counselors(id),
		room_name TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'active', 'completed', 'dismissed')),
		issue_details TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		accepted_at TIMESTAMPTZ NULL,
		ended_at TIMESTAMPTZ NULL,
		notes TEXT NULL,
		feedback TEXT NULL,
		rating SMALLINT NULL CHECK (rating BETWEEN 1 AND 5),
		CONSTRAINT sessions_room_name_key UNIQUE (room_name),
		CONSTRAINT sessions_ended_consistent CHECK ((ended_at IS NOT NULL) = (status IN ('completed', 'dismissed')))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS sessions_live_student_idx
		ON sessions (student_id) WHERE status IN ('pending', 'active')`,
	`CREATE INDEX IF NOT EXISTS sessions_status_created_idx ON sessions (status, created_at)`,
}

// Migrate creates the tables if they do not exist.
func (r *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}
