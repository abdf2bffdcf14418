package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketchain/entity"
	"ticketchain/gateway"
	"ticketchain/metadata"
	"ticketchain/workflow"
)

const (
	organizer = "0x00000000000000000000000000000000000000a1"
	holder    = "0x00000000000000000000000000000000000000b2"
)

type stepRecorder struct {
	lock  sync.Mutex
	steps []entity.WorkflowStep
	runs  []entity.WorkflowRun
}

func (r *stepRecorder) StepChanged(_ context.Context, _ string, _ entity.WorkflowKind, _ int, step entity.WorkflowStep) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.steps = append(r.steps, step)
	return nil
}

func (r *stepRecorder) Record(_ context.Context, run entity.WorkflowRun) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, entity.TicketFields) (entity.Artifact, error) {
	return entity.Artifact{}, errors.New("canvas unavailable")
}

// panickingRenderer writes to a nil map.
type panickingRenderer struct {
	cache map[string]entity.Artifact
}

func (r panickingRenderer) Render(_ context.Context, fields entity.TicketFields) (entity.Artifact, error) {
	r.cache[fields.Seat] = entity.Artifact{}
	return entity.Artifact{}, nil
}

// blockingRenderer blocks until release is closed.
type blockingRenderer struct {
	started chan struct{}
	release chan struct{}
}

func (r blockingRenderer) Render(ctx context.Context, fields entity.TicketFields) (entity.Artifact, error) {
	close(r.started)
	<-r.release
	return gateway.TicketRenderer{}.Render(ctx, fields)
}

func issuanceRequest() workflow.IssuanceRequest {
	return workflow.IssuanceRequest{
		Recipient: holder,
		Fields: entity.TicketFields{
			EventName: "Rock Festival",
			Seat:      "A-42",
			Section:   "Pista Premium",
			Date:      "2025-12-31",
		},
	}
}

func statuses(steps []entity.WorkflowStep) []entity.StepStatus {
	out := make([]entity.StepStatus, len(steps))
	for i, s := range steps {
		out[i] = s.Status
	}
	return out
}

func TestIssuance_success(t *testing.T) {
	ledger := &gateway.LedgerMock{SenderAddress: organizer}
	store := &gateway.ContentStoreMock{}
	recorder := &stepRecorder{}

	w := workflow.NewIssuance(ledger, store, gateway.TicketRenderer{}, workflow.Timeouts{}, recorder, recorder)

	result, err := w.Run(context.Background(), issuanceRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "1", result.TokenID.String())
	assert.NotEmpty(t, result.TransactionHash)
	assert.True(t, strings.HasPrefix(result.ImageLocator, "ipfs://b"))
	assert.True(t, strings.HasPrefix(result.MetadataLocator, "ipfs://b"))

	for _, s := range w.Steps() {
		assert.Equal(t, entity.StepStatusCompleted, s.Status, s.ID)
		assert.NotEmpty(t, s.Message, s.ID)
	}

	// the published document points at the published image
	raw, ok := store.Get(strings.TrimPrefix(result.MetadataLocator, "ipfs://"))
	require.True(t, ok)
	doc, err := metadata.FromJSON(string(raw))
	require.NoError(t, err)
	assert.Equal(t, result.ImageLocator, doc.Image)
	assert.Equal(t, "NFT Ticket - Rock Festival - Seat A-42", doc.Name)
	assert.True(t, metadata.ValidateDocument(doc).Valid)

	minted := ledger.MintedRequests()
	require.Len(t, minted, 1)
	assert.Equal(t, holder, minted[0].Recipient)
	assert.Equal(t, "Pista Premium", minted[0].Sector)
	assert.Equal(t, result.MetadataLocator, minted[0].ContentLocator)
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC).Unix(), minted[0].EventDate)
	assert.NotNil(t, minted[0].EventID)

	// every transition is observed: 5 x (in-progress, completed)
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	assert.Len(t, recorder.steps, 10)
	require.Len(t, recorder.runs, 1)
	assert.Equal(t, result.RunID, recorder.runs[0].RunID)
	assert.True(t, recorder.runs[0].Result.Success)
}

func TestIssuance_failure_in_second_step(t *testing.T) {
	ledger := &gateway.LedgerMock{SenderAddress: organizer}
	recorder := &stepRecorder{}
	w := workflow.NewIssuance(ledger, &gateway.ContentStoreMock{}, failingRenderer{}, workflow.Timeouts{}, nil, recorder)

	result, err := w.Run(context.Background(), issuanceRequest())
	require.Error(t, err)

	var stepErr *workflow.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, workflow.StepGenerateArtifact, stepErr.Step)

	assert.False(t, result.Success)
	assert.Equal(t, workflow.StepGenerateArtifact, result.FailedStep)
	assert.Contains(t, result.Error, "canvas unavailable")

	steps := w.Steps()
	assert.Equal(t, []entity.StepStatus{
		entity.StepStatusCompleted,
		entity.StepStatusError,
		entity.StepStatusPending,
		entity.StepStatusPending,
		entity.StepStatusPending,
	}, statuses(steps))
	assert.Contains(t, steps[1].Message, "canvas unavailable")
	assert.Empty(t, ledger.MintedRequests())

	require.Len(t, recorder.runs, 1)
	assert.False(t, recorder.runs[0].Result.Success)
}

func TestIssuance_step_panic_fails_the_step(t *testing.T) {
	ledger := &gateway.LedgerMock{SenderAddress: organizer}
	recorder := &stepRecorder{}
	w := workflow.NewIssuance(ledger, &gateway.ContentStoreMock{}, panickingRenderer{}, workflow.Timeouts{}, recorder, recorder)

	result, err := w.Run(context.Background(), issuanceRequest())
	require.Error(t, err)

	var stepErr *workflow.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, workflow.StepGenerateArtifact, stepErr.Step)

	assert.False(t, result.Success)
	assert.Equal(t, workflow.StepGenerateArtifact, result.FailedStep)
	assert.Contains(t, result.Error, "panicked")

	assert.Equal(t, []entity.StepStatus{
		entity.StepStatusCompleted,
		entity.StepStatusError,
		entity.StepStatusPending,
		entity.StepStatusPending,
		entity.StepStatusPending,
	}, statuses(w.Steps()))
	assert.Empty(t, ledger.MintedRequests())

	recorder.lock.Lock()
	require.Len(t, recorder.runs, 1)
	assert.False(t, recorder.runs[0].Result.Success)
	require.NotEmpty(t, recorder.steps)
	assert.Equal(t, entity.StepStatusError, recorder.steps[len(recorder.steps)-1].Status)
	recorder.lock.Unlock()

	_, err = w.Run(context.Background(), issuanceRequest())
	assert.NotErrorIs(t, err, entity.ErrWorkflowInProgress)
}

func TestIssuance_validation_errors(t *testing.T) {
	testCases := []struct {
		Name     string
		Mutate   func(r *workflow.IssuanceRequest)
		Expected error
	}{
		{
			Name:     "malformed_recipient",
			Mutate:   func(r *workflow.IssuanceRequest) { r.Recipient = "0x123" },
			Expected: entity.ErrInvalidAddress,
		},
		{
			Name:     "zero_recipient",
			Mutate:   func(r *workflow.IssuanceRequest) { r.Recipient = "0x0000000000000000000000000000000000000000" },
			Expected: entity.ErrInvalidAddress,
		},
		{
			Name:     "missing_seat",
			Mutate:   func(r *workflow.IssuanceRequest) { r.Fields.Seat = "" },
			Expected: entity.ErrMissingRequiredField,
		},
		{
			Name:     "bad_date",
			Mutate:   func(r *workflow.IssuanceRequest) { r.Fields.Date = "soon" },
			Expected: entity.ErrInvalidEventDate,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			w := workflow.NewIssuance(&gateway.LedgerMock{}, &gateway.ContentStoreMock{}, gateway.TicketRenderer{}, workflow.Timeouts{}, nil, nil)

			req := issuanceRequest()
			tc.Mutate(&req)

			result, err := w.Run(context.Background(), req)
			require.ErrorIs(t, err, tc.Expected)
			assert.Equal(t, workflow.StepValidate, result.FailedStep)
			assert.Equal(t, entity.StepStatusError, w.Steps()[0].Status)
		})
	}
}

func TestIssuance_publish_failure(t *testing.T) {
	store := &gateway.ContentStoreMock{PublishJSONErr: errors.New("quota exceeded")}
	w := workflow.NewIssuance(&gateway.LedgerMock{}, store, gateway.TicketRenderer{}, workflow.Timeouts{}, nil, nil)

	result, err := w.Run(context.Background(), issuanceRequest())
	require.ErrorIs(t, err, entity.ErrPublishFailed)
	assert.Equal(t, workflow.StepPublishToStore, result.FailedStep)
	assert.Equal(t, []entity.StepStatus{
		entity.StepStatusCompleted,
		entity.StepStatusCompleted,
		entity.StepStatusError,
		entity.StepStatusPending,
		entity.StepStatusPending,
	}, statuses(w.Steps()))
}

func TestIssuance_rejected_transaction(t *testing.T) {
	ledger := &gateway.LedgerMock{RejectNext: true}
	w := workflow.NewIssuance(ledger, &gateway.ContentStoreMock{}, gateway.TicketRenderer{}, workflow.Timeouts{}, nil, nil)

	result, err := w.Run(context.Background(), issuanceRequest())
	require.ErrorIs(t, err, entity.ErrTransactionRejected)
	assert.Equal(t, workflow.StepAwaitConfirmation, result.FailedStep)
}

func TestIssuance_confirmation_timeout(t *testing.T) {
	ledger := &gateway.LedgerMock{ConfirmDelay: time.Second}
	w := workflow.NewIssuance(
		ledger,
		&gateway.ContentStoreMock{},
		gateway.TicketRenderer{},
		workflow.Timeouts{Confirmation: 20 * time.Millisecond},
		nil,
		nil,
	)

	result, err := w.Run(context.Background(), issuanceRequest())
	require.ErrorIs(t, err, entity.ErrConfirmationTimeout)
	assert.Equal(t, workflow.StepAwaitConfirmation, result.FailedStep)
}

func TestIssuance_single_flight(t *testing.T) {
	renderer := blockingRenderer{started: make(chan struct{}), release: make(chan struct{})}
	w := workflow.NewIssuance(&gateway.LedgerMock{}, &gateway.ContentStoreMock{}, renderer, workflow.Timeouts{}, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := w.Run(context.Background(), issuanceRequest())
		done <- err
	}()

	<-renderer.started

	_, err := w.Run(context.Background(), issuanceRequest())
	require.ErrorIs(t, err, entity.ErrWorkflowInProgress)
	require.ErrorIs(t, w.Reset(), entity.ErrWorkflowInProgress)

	// the rejected call does not disturb the running instance
	assert.Equal(t, entity.StepStatusInProgress, w.Steps()[1].Status)

	close(renderer.release)
	require.NoError(t, <-done)

	require.NoError(t, w.Reset())
	for _, s := range w.Steps() {
		assert.Equal(t, entity.StepStatusPending, s.Status)
		assert.Empty(t, s.Message)
	}
}

func TestIssuance_rerun_starts_from_first_step(t *testing.T) {
	store := &gateway.ContentStoreMock{PublishBinaryErr: errors.New("down")}
	w := workflow.NewIssuance(&gateway.LedgerMock{}, store, gateway.TicketRenderer{}, workflow.Timeouts{}, nil, nil)

	_, err := w.Run(context.Background(), issuanceRequest())
	require.Error(t, err)

	store.PublishBinaryErr = nil
	result, err := w.Run(context.Background(), issuanceRequest())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestTransfer(t *testing.T) {
	ledger := &gateway.LedgerMock{SenderAddress: organizer}
	ledger.AddTicket(big.NewInt(7), entity.TicketRecord{Owner: organizer, ContentLocator: "ipfs://meta"})

	w := workflow.NewTransfer(ledger, workflow.Timeouts{}, nil, nil)

	result, err := w.Run(context.Background(), workflow.TransferRequest{TokenID: big.NewInt(7), Recipient: holder})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "7", result.TokenID.String())

	owner, err := ledger.OwnerOf(context.Background(), big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, holder, owner)

	assert.Equal(t, []entity.StepStatus{
		entity.StepStatusCompleted,
		entity.StepStatusCompleted,
		entity.StepStatusCompleted,
	}, statuses(w.Steps()))
}

func TestTransfer_validation(t *testing.T) {
	ledger := &gateway.LedgerMock{SenderAddress: organizer}
	ledger.AddTicket(big.NewInt(1), entity.TicketRecord{Owner: organizer})
	ledger.AddTicket(big.NewInt(2), entity.TicketRecord{Owner: holder})

	testCases := []struct {
		Name     string
		Request  workflow.TransferRequest
		Expected error
	}{
		{
			Name:     "self_transfer",
			Request:  workflow.TransferRequest{TokenID: big.NewInt(1), Recipient: strings.ToUpper(organizer[:2]) + organizer[2:]},
			Expected: entity.ErrInvalidAddress,
		},
		{
			Name:     "not_owned",
			Request:  workflow.TransferRequest{TokenID: big.NewInt(2), Recipient: "0x00000000000000000000000000000000000000c3"},
			Expected: entity.ErrConflict,
		},
		{
			Name:     "unknown_token",
			Request:  workflow.TransferRequest{TokenID: big.NewInt(99), Recipient: holder},
			Expected: entity.ErrLedgerRead,
		},
		{
			Name:     "missing_token",
			Request:  workflow.TransferRequest{Recipient: holder},
			Expected: entity.ErrMissingRequiredField,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			w := workflow.NewTransfer(ledger, workflow.Timeouts{}, nil, nil)

			result, err := w.Run(context.Background(), tc.Request)
			require.ErrorIs(t, err, tc.Expected)
			assert.Equal(t, workflow.StepValidate, result.FailedStep)
			assert.Equal(t, []entity.StepStatus{
				entity.StepStatusError,
				entity.StepStatusPending,
				entity.StepStatusPending,
			}, statuses(w.Steps()))
		})
	}
}

func TestTransfer_submit_failure(t *testing.T) {
	ledger := &gateway.LedgerMock{SenderAddress: organizer, TransferErr: errors.New("insufficient funds for gas")}
	ledger.AddTicket(big.NewInt(1), entity.TicketRecord{Owner: organizer})

	w := workflow.NewTransfer(ledger, workflow.Timeouts{}, nil, nil)
	result, err := w.Run(context.Background(), workflow.TransferRequest{TokenID: big.NewInt(1), Recipient: holder})
	require.Error(t, err)
	assert.Equal(t, workflow.StepSubmitTransaction, result.FailedStep)
	assert.Equal(t, "insufficient funds for gas", result.Error)
}

func TestWorkflowStep_json(t *testing.T) {
	w := workflow.NewTransfer(&gateway.LedgerMock{}, workflow.Timeouts{}, nil, nil)

	payload, err := json.Marshal(w.Steps())
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"id":"validate","title":"Validate transfer","status":"pending"},
		{"id":"submit-transaction","title":"Submit transfer transaction","status":"pending"},
		{"id":"await-confirmation","title":"Await confirmation","status":"pending"}
	]`, string(payload))
}
