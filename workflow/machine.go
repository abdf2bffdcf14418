package workflow

import (
	"errors"
	"fmt"
	"sync"

	"ticketchain/entity"
)

var ErrIllegalTransition = errors.New("illegal step transition")

type stepDefinition struct {
	ID    string
	Title string
}

// machine is a linear state machine over an ordered step list.
// Steps run strictly in order and at most one step is in progress.
type machine struct {
	mu      sync.Mutex
	steps   []entity.WorkflowStep
	current int
}

func newMachine(definitions []stepDefinition) *machine {
	steps := make([]entity.WorkflowStep, len(definitions))
	for i, d := range definitions {
		steps[i] = entity.WorkflowStep{ID: d.ID, Title: d.Title, Status: entity.StepStatusPending}
	}

	return &machine{steps: steps, current: -1}
}

func (m *machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.steps {
		m.steps[i].Status = entity.StepStatusPending
		m.steps[i].Message = ""
	}
	m.current = -1
}

// start moves step i to in-progress. Every earlier step must be completed.
func (m *machine) start(i int) (entity.WorkflowStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i < 0 || i >= len(m.steps) {
		return entity.WorkflowStep{}, fmt.Errorf("%w: no step at index %d", ErrIllegalTransition, i)
	}
	if m.current != -1 {
		return entity.WorkflowStep{}, fmt.Errorf("%w: step %s is still in progress", ErrIllegalTransition, m.steps[m.current].ID)
	}
	if m.steps[i].Status != entity.StepStatusPending {
		return entity.WorkflowStep{}, fmt.Errorf("%w: step %s is %s", ErrIllegalTransition, m.steps[i].ID, m.steps[i].Status)
	}
	for j := 0; j < i; j++ {
		if m.steps[j].Status != entity.StepStatusCompleted {
			return entity.WorkflowStep{}, fmt.Errorf("%w: step %s is not completed", ErrIllegalTransition, m.steps[j].ID)
		}
	}

	m.current = i
	m.steps[i].Status = entity.StepStatusInProgress
	m.steps[i].Message = ""

	return m.steps[i], nil
}

func (m *machine) complete(i int, message string) (entity.WorkflowStep, error) {
	return m.finish(i, entity.StepStatusCompleted, message)
}

func (m *machine) fail(i int, message string) (entity.WorkflowStep, error) {
	return m.finish(i, entity.StepStatusError, message)
}

func (m *machine) finish(i int, status entity.StepStatus, message string) (entity.WorkflowStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != i {
		return entity.WorkflowStep{}, fmt.Errorf("%w: step at index %d is not in progress", ErrIllegalTransition, i)
	}

	m.current = -1
	m.steps[i].Status = status
	m.steps[i].Message = message

	return m.steps[i], nil
}

func (m *machine) snapshot() []entity.WorkflowStep {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]entity.WorkflowStep(nil), m.steps...)
}
