package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketchain/entity"
)

func TestWorkflowStepHistory(t *testing.T) {
	ctx := context.Background()
	history := NewWorkflowStepHistory(GetDb(t))

	runID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	started := &entity.WorkflowStepChanged_v1{
		Header: entity.EventHeader{ID: uuid.NewString(), PublishedAt: now},
		RunID:  runID,
		Kind:   entity.WorkflowKindIssuance,
		Index:  0,
		Step:   entity.WorkflowStep{ID: "validate", Title: "Validate", Status: entity.StepStatusInProgress},
	}
	failed := &entity.WorkflowStepChanged_v1{
		Header: entity.EventHeader{ID: uuid.NewString(), PublishedAt: now.Add(time.Millisecond)},
		RunID:  runID,
		Kind:   entity.WorkflowKindIssuance,
		Index:  0,
		Step: entity.WorkflowStep{
			ID:      "validate",
			Title:   "Validate",
			Status:  entity.StepStatusError,
			Message: "missing required field: seat",
		},
	}

	require.NoError(t, history.OnStepChanged(ctx, failed))
	require.NoError(t, history.OnStepChanged(ctx, started))
	// re-delivery
	require.NoError(t, history.OnStepChanged(ctx, failed))

	changes, err := history.History(ctx, runID)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, entity.StepStatusInProgress, changes[0].Status)
	assert.Equal(t, entity.StepStatusError, changes[1].Status)
	assert.Equal(t, "missing required field: seat", changes[1].Message)
	assert.Equal(t, "validate", changes[1].StepID)

	empty, err := history.History(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWorkflowStepHistory_same_timestamp(t *testing.T) {
	ctx := context.Background()
	history := NewWorkflowStepHistory(GetDb(t))

	runID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	change := func(index int, id string, status entity.StepStatus) *entity.WorkflowStepChanged_v1 {
		return &entity.WorkflowStepChanged_v1{
			Header: entity.EventHeader{ID: uuid.NewString(), PublishedAt: now},
			RunID:  runID,
			Kind:   entity.WorkflowKindIssuance,
			Index:  index,
			Step:   entity.WorkflowStep{ID: id, Status: status},
		}
	}

	// inserted in reverse so insertion order cannot decide
	require.NoError(t, history.OnStepChanged(ctx, change(1, "generate-artifact", entity.StepStatusInProgress)))
	require.NoError(t, history.OnStepChanged(ctx, change(0, "validate", entity.StepStatusCompleted)))
	require.NoError(t, history.OnStepChanged(ctx, change(0, "validate", entity.StepStatusInProgress)))

	changes, err := history.History(ctx, runID)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, []entity.StepStatus{
		entity.StepStatusInProgress,
		entity.StepStatusCompleted,
		entity.StepStatusInProgress,
	}, []entity.StepStatus{changes[0].Status, changes[1].Status, changes[2].Status})
	assert.Equal(t, []int{0, 0, 1}, []int{changes[0].StepIndex, changes[1].StepIndex, changes[2].StepIndex})
}
