package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			event_id UUID PRIMARY KEY,
			published_at TIMESTAMP NOT NULL,
			event_name VARCHAR(255) NOT NULL,
			event_payload JSONB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id UUID PRIMARY KEY,
			kind VARCHAR(32) NOT NULL,
			success BOOLEAN NOT NULL,
			payload JSONB NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS workflow_runs_kind_finished_at_idx
			ON workflow_runs (kind, finished_at DESC);

		CREATE TABLE IF NOT EXISTS workflow_step_history (
			event_id UUID PRIMARY KEY,
			run_id UUID NOT NULL,
			kind VARCHAR(32) NOT NULL,
			step_index INT NOT NULL,
			step_id VARCHAR(64) NOT NULL,
			status VARCHAR(32) NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			changed_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS workflow_step_history_run_id_idx
			ON workflow_step_history (run_id);
	`)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}

	return nil
}
