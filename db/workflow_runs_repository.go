package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ticketchain/entity"
	"ticketchain/pubsub/bus"
	"ticketchain/pubsub/outbox"
)

type WorkflowRunsPostgresRepository struct {
	db *sqlx.DB
}

func NewWorkflowRunsPostgresRepository(db *sqlx.DB) WorkflowRunsPostgresRepository {
	if db == nil {
		panic("db must be set")
	}

	return WorkflowRunsPostgresRepository{db: db}
}

// Record stores a finished run and publishes WorkflowFinished_v1 in the same transaction.
// Recording the same run twice is a no-op.
func (r WorkflowRunsPostgresRepository) Record(ctx context.Context, run entity.WorkflowRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("could not marshal workflow run: %w", err)
	}

	return UpdateInTx(
		ctx,
		r.db,
		sql.LevelRepeatableRead,
		func(ctx context.Context, tx *sqlx.Tx) error {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO workflow_runs (run_id, kind, success, payload, started_at, finished_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (run_id) DO NOTHING
			`, run.RunID, run.Kind, run.Result.Success, payload, run.StartedAt, run.FinishedAt)
			if err != nil {
				return fmt.Errorf("could not insert workflow run: %w", err)
			}

			inserted, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("could not get affected rows: %w", err)
			}
			if inserted == 0 {
				return nil
			}

			outboxPublisher, err := outbox.NewPublisherForDb(ctx, tx)
			if err != nil {
				return fmt.Errorf("could not create outbox publisher: %w", err)
			}

			eventBus, err := bus.NewEventBus(outboxPublisher)
			if err != nil {
				return fmt.Errorf("could not create event bus: %w", err)
			}

			err = eventBus.Publish(ctx, entity.WorkflowFinished_v1{
				Header: entity.NewEventHeaderWithIdempotencyKey(run.RunID),
				RunID:  run.RunID,
				Kind:   run.Kind,
				Result: run.Result,
			})
			if err != nil {
				return fmt.Errorf("could not publish event: %w", err)
			}

			return nil
		},
	)
}

func (r WorkflowRunsPostgresRepository) Get(ctx context.Context, runID string) (entity.WorkflowRun, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM workflow_runs WHERE run_id = $1
	`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.WorkflowRun{}, entity.ErrNotFound
		}
		return entity.WorkflowRun{}, fmt.Errorf("could not get workflow run: %w", err)
	}

	var run entity.WorkflowRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return entity.WorkflowRun{}, fmt.Errorf("could not unmarshal workflow run: %w", err)
	}

	return run, nil
}

// FindRecent returns up to limit runs of kind, newest first.
func (r WorkflowRunsPostgresRepository) FindRecent(
	ctx context.Context,
	kind entity.WorkflowKind,
	limit int,
) ([]entity.WorkflowRun, error) {
	var payloads [][]byte
	err := r.db.SelectContext(ctx, &payloads, `
		SELECT payload FROM workflow_runs
		WHERE kind = $1
		ORDER BY finished_at DESC
		LIMIT $2
	`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("could not find workflow runs: %w", err)
	}

	runs := make([]entity.WorkflowRun, 0, len(payloads))
	for _, payload := range payloads {
		var run entity.WorkflowRun
		if err := json.Unmarshal(payload, &run); err != nil {
			return nil, fmt.Errorf("could not unmarshal workflow run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, nil
}
