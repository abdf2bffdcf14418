package pubsub

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"ticketchain/entity"
)

// StepPublisher streams workflow step transitions as WorkflowStepChanged_v1 events.
type StepPublisher struct {
	eventBus *cqrs.EventBus
}

func NewStepPublisher(eventBus *cqrs.EventBus) StepPublisher {
	if eventBus == nil {
		panic("eventBus is nil")
	}

	return StepPublisher{eventBus: eventBus}
}

func (p StepPublisher) StepChanged(
	ctx context.Context,
	runID string,
	kind entity.WorkflowKind,
	index int,
	step entity.WorkflowStep,
) error {
	event := entity.WorkflowStepChanged_v1{
		Header: entity.NewEventHeaderWithIdempotencyKey(fmt.Sprintf("%s-%d-%s", runID, index, step.Status)),
		RunID:  runID,
		Kind:   kind,
		Index:  index,
		Step:   step,
	}

	if err := p.eventBus.Publish(ctx, event); err != nil {
		return fmt.Errorf("could not publish step change of run %s: %w", runID, err)
	}

	return nil
}
