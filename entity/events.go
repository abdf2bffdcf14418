package entity

import (
	"time"

	"github.com/google/uuid"
)

type Event interface {
	IsInternal() bool
}

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type WorkflowStepChanged_v1 struct {
	Header EventHeader `json:"header"`

	RunID string       `json:"run_id"`
	Kind  WorkflowKind `json:"kind"`
	Index int          `json:"index"`
	Step  WorkflowStep `json:"step"`
}

func (e WorkflowStepChanged_v1) IsInternal() bool {
	return false
}

type WorkflowFinished_v1 struct {
	Header EventHeader `json:"header"`

	RunID  string         `json:"run_id"`
	Kind   WorkflowKind   `json:"kind"`
	Result WorkflowResult `json:"result"`
}

func (e WorkflowFinished_v1) IsInternal() bool {
	return false
}
