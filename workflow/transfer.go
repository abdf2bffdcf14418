package workflow

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"ticketchain/entity"
)

var transferSteps = []stepDefinition{
	{ID: StepValidate, Title: "Validate transfer"},
	{ID: StepSubmitTransaction, Title: "Submit transfer transaction"},
	{ID: StepAwaitConfirmation, Title: "Await confirmation"},
}

type TransferLedger interface {
	LedgerWriter
	OwnerReader
}

type TransferRequest struct {
	TokenID   *big.Int `json:"token_id"`
	Recipient string   `json:"recipient"`
}

// Transfer moves a ticket owned by the ledger sender to another address.
type Transfer struct {
	*runner

	ledger   TransferLedger
	timeouts Timeouts
}

func NewTransfer(ledger TransferLedger, timeouts Timeouts, observer StepObserver, recorder RunRecorder) *Transfer {
	if ledger == nil {
		panic("ledger is nil")
	}

	return &Transfer{
		runner:   newRunner(entity.WorkflowKindTransfer, transferSteps, observer, recorder),
		ledger:   ledger,
		timeouts: timeouts.withDefaults(),
	}
}

type transferState struct {
	req     TransferRequest
	from    string
	tx      entity.TransactionHandle
	receipt entity.Receipt
}

func (w *Transfer) Run(ctx context.Context, req TransferRequest) (entity.WorkflowResult, error) {
	s := &transferState{req: req}

	return w.run(
		ctx,
		[]stepFunc{
			func(ctx context.Context) (string, error) { return w.validate(ctx, s) },
			func(ctx context.Context) (string, error) { return w.submit(ctx, s) },
			func(ctx context.Context) (string, error) { return w.await(ctx, s) },
		},
		func() entity.WorkflowResult {
			return entity.WorkflowResult{
				TokenID:         s.req.TokenID,
				TransactionHash: s.tx.Hash,
			}
		},
	)
}

func (w *Transfer) validate(ctx context.Context, s *transferState) (string, error) {
	if s.req.TokenID == nil || s.req.TokenID.Sign() < 0 {
		return "", fmt.Errorf("%w: tokenId", entity.ErrMissingRequiredField)
	}
	if err := validateRecipient(s.req.Recipient); err != nil {
		return "", err
	}

	s.from = w.ledger.Sender()
	if strings.EqualFold(s.from, s.req.Recipient) {
		return "", fmt.Errorf("%w: cannot transfer a ticket to its current owner", entity.ErrInvalidAddress)
	}

	owner, err := w.ledger.OwnerOf(ctx, s.req.TokenID)
	if err != nil {
		return "", fmt.Errorf("%w: could not read owner of token %s: %w", entity.ErrLedgerRead, s.req.TokenID, err)
	}
	if !strings.EqualFold(owner, s.from) {
		return "", fmt.Errorf("%w: token %s is not owned by %s", entity.ErrConflict, s.req.TokenID, s.from)
	}

	return fmt.Sprintf("Token #%s can be transferred", s.req.TokenID), nil
}

func (w *Transfer) submit(ctx context.Context, s *transferState) (string, error) {
	tx, err := withTimeout(ctx, w.timeouts.Submit, entity.ErrSubmitTimeout, func(ctx context.Context) (entity.TransactionHandle, error) {
		return w.ledger.Transfer(ctx, s.from, s.req.Recipient, s.req.TokenID)
	})
	if err != nil {
		return "", err
	}
	s.tx = tx

	return fmt.Sprintf("Transaction submitted: %s", tx.Hash), nil
}

func (w *Transfer) await(ctx context.Context, s *transferState) (string, error) {
	receipt, err := awaitReceipt(ctx, w.ledger, s.tx, w.timeouts.Confirmation)
	if err != nil {
		return "", err
	}
	s.receipt = receipt

	return fmt.Sprintf("Transfer confirmed in block %d", receipt.BlockNumber), nil
}
