package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ticketchain/entity"
	"ticketchain/metrics"
)

const (
	StepValidate          = "validate"
	StepGenerateArtifact  = "generate-artifact"
	StepPublishToStore    = "publish-to-store"
	StepSubmitTransaction = "submit-transaction"
	StepAwaitConfirmation = "await-confirmation"
)

const (
	DefaultSubmitTimeout       = 2 * time.Minute
	DefaultConfirmationTimeout = 5 * time.Minute
)

type LedgerWriter interface {
	Sender() string
	Mint(ctx context.Context, req entity.MintRequest) (entity.TransactionHandle, error)
	Transfer(ctx context.Context, from, to string, tokenID *big.Int) (entity.TransactionHandle, error)
	AwaitConfirmation(ctx context.Context, tx entity.TransactionHandle) (entity.Receipt, error)
}

type OwnerReader interface {
	OwnerOf(ctx context.Context, tokenID *big.Int) (string, error)
}

type ContentPublisher interface {
	PublishBinary(ctx context.Context, content []byte, name string) (entity.PublishResult, error)
	PublishJSON(ctx context.Context, doc any, name string) (entity.PublishResult, error)
}

type ArtifactRenderer interface {
	Render(ctx context.Context, fields entity.TicketFields) (entity.Artifact, error)
}

// StepObserver receives every step transition of a run, in order.
type StepObserver interface {
	StepChanged(ctx context.Context, runID string, kind entity.WorkflowKind, index int, step entity.WorkflowStep) error
}

type RunRecorder interface {
	Record(ctx context.Context, run entity.WorkflowRun) error
}

type Timeouts struct {
	Submit       time.Duration
	Confirmation time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Submit <= 0 {
		t.Submit = DefaultSubmitTimeout
	}
	if t.Confirmation <= 0 {
		t.Confirmation = DefaultConfirmationTimeout
	}
	return t
}

// StepError reports which step terminated a workflow.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %s", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type stepFunc func(ctx context.Context) (message string, err error)

// runner owns the step state of one workflow instance and allows a single run at a time.
type runner struct {
	kind        entity.WorkflowKind
	definitions []stepDefinition
	machine     *machine
	running     atomic.Bool
	observer    StepObserver
	recorder    RunRecorder
}

func newRunner(kind entity.WorkflowKind, definitions []stepDefinition, observer StepObserver, recorder RunRecorder) *runner {
	return &runner{
		kind:        kind,
		definitions: definitions,
		machine:     newMachine(definitions),
		observer:    observer,
		recorder:    recorder,
	}
}

func (r *runner) Steps() []entity.WorkflowStep {
	return r.machine.snapshot()
}

func (r *runner) Reset() error {
	if !r.running.CompareAndSwap(false, true) {
		return entity.ErrWorkflowInProgress
	}
	defer r.running.Store(false)

	r.machine.reset()
	return nil
}

// run executes funcs, one per step definition, strictly in order.
func (r *runner) run(ctx context.Context, funcs []stepFunc, result func() entity.WorkflowResult) (entity.WorkflowResult, error) {
	if len(funcs) != len(r.definitions) {
		panic(fmt.Sprintf("%s workflow has %d steps but %d step funcs", r.kind, len(r.definitions), len(funcs)))
	}
	if !r.running.CompareAndSwap(false, true) {
		return entity.WorkflowResult{}, entity.ErrWorkflowInProgress
	}
	defer r.running.Store(false)

	run := entity.WorkflowRun{
		RunID:     uuid.NewString(),
		Kind:      r.kind,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := otel.Tracer("").Start(ctx, "workflow."+string(r.kind))
	span.SetAttributes(attribute.String("run_id", run.RunID))
	defer span.End()

	logger := log.FromContext(ctx).WithFields(logrus.Fields{
		"workflow": r.kind,
		"run_id":   run.RunID,
	})
	ctx = log.ToContext(ctx, logger)

	r.machine.reset()

	var stepErr *StepError
	for i, fn := range funcs {
		if err := r.executeStep(ctx, run.RunID, i, fn); err != nil {
			stepErr = err
			break
		}
	}

	run.FinishedAt = time.Now().UTC()
	run.Steps = r.machine.snapshot()

	if stepErr != nil {
		span.RecordError(stepErr)
		span.SetStatus(codes.Error, stepErr.Error())
		metrics.WorkflowRuns.WithLabelValues(string(r.kind), "failure").Inc()

		run.Result = entity.WorkflowResult{
			RunID:      run.RunID,
			Success:    false,
			FailedStep: stepErr.Step,
			Error:      stepErr.Err.Error(),
		}
		r.record(ctx, run)

		return run.Result, stepErr
	}

	metrics.WorkflowRuns.WithLabelValues(string(r.kind), "success").Inc()
	run.Result = result()
	run.Result.RunID = run.RunID
	run.Result.Success = true
	r.record(ctx, run)

	logger.Info("Workflow completed")

	return run.Result, nil
}

func (r *runner) executeStep(ctx context.Context, runID string, index int, fn stepFunc) *StepError {
	id := r.definitions[index].ID
	logger := log.FromContext(ctx).WithField("step", id)

	step, err := r.machine.start(index)
	if err != nil {
		return &StepError{Step: id, Err: err}
	}
	r.notify(ctx, runID, index, step)

	ctx, span := otel.Tracer("").Start(ctx, "workflow.step."+id)
	defer span.End()

	start := time.Now()
	message, err := callStep(ctx, fn)
	metrics.WorkflowStepDuration.WithLabelValues(string(r.kind), id).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WithError(err).Error("Workflow step failed")

		if step, failErr := r.machine.fail(index, err.Error()); failErr == nil {
			r.notify(ctx, runID, index, step)
		}
		return &StepError{Step: id, Err: err}
	}

	step, err = r.machine.complete(index, message)
	if err != nil {
		return &StepError{Step: id, Err: err}
	}
	r.notify(ctx, runID, index, step)

	logger.WithField("message", message).Info("Workflow step completed")

	return nil
}

// callStep converts a panic inside the step into an error so the step ends in the error state.
func callStep(ctx context.Context, fn stepFunc) (message string, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.FromContext(ctx).WithField("stack", string(debug.Stack())).Error("Workflow step panicked")
			err = fmt.Errorf("step panicked: %v", p)
		}
	}()

	return fn(ctx)
}

func (r *runner) notify(ctx context.Context, runID string, index int, step entity.WorkflowStep) {
	if r.observer == nil {
		return
	}
	if err := r.observer.StepChanged(ctx, runID, r.kind, index, step); err != nil {
		log.FromContext(ctx).WithError(err).Warn("Could not publish step change")
	}
}

func (r *runner) record(ctx context.Context, run entity.WorkflowRun) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, run); err != nil {
		log.FromContext(ctx).WithError(err).Warn("Could not record workflow run")
	}
}

// withTimeout runs fn with a deadline and maps an expired deadline to timeoutErr.
func withTimeout[T any](ctx context.Context, timeout time.Duration, timeoutErr error, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return v, fmt.Errorf("%w after %s: %w", timeoutErr, timeout, err)
	}

	return v, err
}
