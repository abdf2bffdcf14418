package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ticketchain/entity"
)

// WorkflowStepHistory is a read model of every step transition seen on the event stream.
type WorkflowStepHistory struct {
	db *sqlx.DB
}

func NewWorkflowStepHistory(db *sqlx.DB) WorkflowStepHistory {
	if db == nil {
		panic("db is nil")
	}

	return WorkflowStepHistory{db: db}
}

func (h WorkflowStepHistory) OnStepChanged(ctx context.Context, event *entity.WorkflowStepChanged_v1) error {
	_, err := h.db.NamedExecContext(ctx, `
		INSERT INTO workflow_step_history
			(event_id, run_id, kind, step_index, step_id, status, message, changed_at)
		VALUES
			(:event_id, :run_id, :kind, :step_index, :step_id, :status, :message, :changed_at)
		ON CONFLICT (event_id) DO NOTHING
	`, entity.WorkflowStepChange{
		EventID:   event.Header.ID,
		RunID:     event.RunID,
		Kind:      event.Kind,
		StepIndex: event.Index,
		StepID:    event.Step.ID,
		Status:    event.Step.Status,
		Message:   event.Step.Message,
		ChangedAt: event.Header.PublishedAt,
	})
	if err != nil {
		return fmt.Errorf("could not store step change of run %s: %w", event.RunID, err)
	}

	return nil
}

// History returns the transitions of a run in the order they happened.
// Transitions published in the same microsecond are ordered by step and then by status lifecycle.
func (h WorkflowStepHistory) History(ctx context.Context, runID string) ([]entity.WorkflowStepChange, error) {
	changes := []entity.WorkflowStepChange{}
	err := h.db.SelectContext(ctx, &changes, `
		SELECT event_id, run_id, kind, step_index, step_id, status, message, changed_at
		FROM workflow_step_history
		WHERE run_id = $1
		ORDER BY changed_at ASC, step_index ASC,
			CASE status
				WHEN 'pending' THEN 0
				WHEN 'in-progress' THEN 1
				ELSE 2
			END ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("could not get step history of run %s: %w", runID, err)
	}

	return changes, nil
}
