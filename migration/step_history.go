package migrations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"

	"ticketchain/entity"
)

const stepChangedEventName = "WorkflowStepChanged_v1"

type DataLake interface {
	GetEventsByName(ctx context.Context, eventName string) ([]entity.DataLakeEvent, error)
}

type StepHistoryReadModel interface {
	OnStepChanged(ctx context.Context, event *entity.WorkflowStepChanged_v1) error
}

// RebuildStepHistory replays every step change kept in the data lake into the read model.
// The read model ignores events it has already stored, so replaying is safe at every start.
func RebuildStepHistory(ctx context.Context, dl DataLake, rm StepHistoryReadModel) error {
	logger := log.FromContext(ctx)
	logger.Info("Rebuilding workflow step history")

	events, err := dl.GetEventsByName(ctx, stepChangedEventName)
	if err != nil {
		return fmt.Errorf("could not get events from data lake: %w", err)
	}

	logger.WithField("events_count", len(events)).Info("Has events to replay")

	for _, event := range events {
		start := time.Now()

		stepChanged, err := unmarshalDataLakeEvent[entity.WorkflowStepChanged_v1](event)
		if err != nil {
			return err
		}

		if err := rm.OnStepChanged(ctx, stepChanged); err != nil {
			return fmt.Errorf("could not replay event %s (%s): %w", event.ID, event.Name, err)
		}

		logger.WithFields(logrus.Fields{
			"event_id": event.ID,
			"run_id":   stepChanged.RunID,
			"duration": time.Since(start),
		}).Debug("Event replayed")
	}

	return nil
}

func unmarshalDataLakeEvent[T any](event entity.DataLakeEvent) (*T, error) {
	eventInstance := new(T)

	err := json.Unmarshal(event.Payload, eventInstance)
	if err != nil {
		return nil, fmt.Errorf("could not unmarshal event %s: %w", event.Name, err)
	}

	return eventInstance, nil
}
