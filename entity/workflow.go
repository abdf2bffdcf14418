package entity

import (
	"math/big"
	"time"
)

type WorkflowKind string

const (
	WorkflowKindIssuance WorkflowKind = "issuance"
	WorkflowKindTransfer WorkflowKind = "transfer"
)

type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in-progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusError      StepStatus = "error"
)

type WorkflowStep struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Status  StepStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

type WorkflowResult struct {
	RunID           string   `json:"run_id,omitempty"`
	Success         bool     `json:"success"`
	TokenID         *big.Int `json:"token_id,omitempty"`
	TransactionHash string   `json:"transaction_hash,omitempty"`
	MetadataLocator string   `json:"metadata_locator,omitempty"`
	ImageLocator    string   `json:"image_locator,omitempty"`
	FailedStep      string   `json:"failed_step,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// WorkflowRun is the record kept for a finished workflow.
type WorkflowRun struct {
	RunID      string         `json:"run_id"`
	Kind       WorkflowKind   `json:"kind"`
	Steps      []WorkflowStep `json:"steps"`
	Result     WorkflowResult `json:"result"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// WorkflowStepChange is one observed step transition of a run.
type WorkflowStepChange struct {
	EventID   string       `json:"event_id" db:"event_id"`
	RunID     string       `json:"run_id" db:"run_id"`
	Kind      WorkflowKind `json:"kind" db:"kind"`
	StepIndex int          `json:"step_index" db:"step_index"`
	StepID    string       `json:"step_id" db:"step_id"`
	Status    StepStatus   `json:"status" db:"status"`
	Message   string       `json:"message,omitempty" db:"message"`
	ChangedAt time.Time    `json:"changed_at" db:"changed_at"`
}
