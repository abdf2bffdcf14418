package workflow

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"ticketchain/entity"
	"ticketchain/metadata"
)

var issuanceSteps = []stepDefinition{
	{ID: StepValidate, Title: "Validate ticket data"},
	{ID: StepGenerateArtifact, Title: "Generate ticket image"},
	{ID: StepPublishToStore, Title: "Publish to content store"},
	{ID: StepSubmitTransaction, Title: "Submit mint transaction"},
	{ID: StepAwaitConfirmation, Title: "Await confirmation"},
}

type IssuanceRequest struct {
	Recipient string              `json:"recipient"`
	Fields    entity.TicketFields `json:"fields"`
	// EventID is derived from a fresh UUID when nil.
	EventID *big.Int `json:"event_id,omitempty"`
}

// Issuance mints a new ticket: it renders the ticket image, publishes the image and
// its metadata document, then submits and confirms the mint transaction.
type Issuance struct {
	*runner

	ledger    LedgerWriter
	publisher ContentPublisher
	renderer  ArtifactRenderer
	timeouts  Timeouts
}

func NewIssuance(
	ledger LedgerWriter,
	publisher ContentPublisher,
	renderer ArtifactRenderer,
	timeouts Timeouts,
	observer StepObserver,
	recorder RunRecorder,
) *Issuance {
	if ledger == nil {
		panic("ledger is nil")
	}
	if publisher == nil {
		panic("publisher is nil")
	}
	if renderer == nil {
		panic("renderer is nil")
	}

	return &Issuance{
		runner:    newRunner(entity.WorkflowKindIssuance, issuanceSteps, observer, recorder),
		ledger:    ledger,
		publisher: publisher,
		renderer:  renderer,
		timeouts:  timeouts.withDefaults(),
	}
}

type issuanceState struct {
	req       IssuanceRequest
	eventID   *big.Int
	eventDate int64
	artifact  entity.Artifact
	image     entity.PublishResult
	document  entity.PublishResult
	tx        entity.TransactionHandle
	receipt   entity.Receipt
}

// Run executes the issuance steps in order. A second call while one is running
// fails with entity.ErrWorkflowInProgress; a failed step is returned as *StepError.
func (w *Issuance) Run(ctx context.Context, req IssuanceRequest) (entity.WorkflowResult, error) {
	s := &issuanceState{req: req}

	return w.run(
		ctx,
		[]stepFunc{
			func(ctx context.Context) (string, error) { return w.validate(s) },
			func(ctx context.Context) (string, error) { return w.generateArtifact(ctx, s) },
			func(ctx context.Context) (string, error) { return w.publish(ctx, s) },
			func(ctx context.Context) (string, error) { return w.submit(ctx, s) },
			func(ctx context.Context) (string, error) { return w.await(ctx, s) },
		},
		func() entity.WorkflowResult {
			return entity.WorkflowResult{
				TokenID:         s.receipt.TokenID,
				TransactionHash: s.tx.Hash,
				MetadataLocator: s.document.Locator,
				ImageLocator:    s.image.Locator,
			}
		},
	)
}

func (w *Issuance) validate(s *issuanceState) (string, error) {
	if err := validateRecipient(s.req.Recipient); err != nil {
		return "", err
	}
	date, err := metadata.CheckTicketFields(s.req.Fields)
	if err != nil {
		return "", err
	}
	s.eventDate = date.Unix()

	s.eventID = s.req.EventID
	if s.eventID == nil {
		s.eventID = NewEventID()
	}

	return "Ticket data validated", nil
}

func (w *Issuance) generateArtifact(ctx context.Context, s *issuanceState) (string, error) {
	artifact, err := w.renderer.Render(ctx, s.req.Fields)
	if err != nil {
		return "", fmt.Errorf("could not render ticket image: %w", err)
	}
	if len(artifact.Content) == 0 {
		return "", fmt.Errorf("renderer produced an empty image")
	}
	s.artifact = artifact

	return fmt.Sprintf("Ticket image generated (%d bytes)", len(artifact.Content)), nil
}

func (w *Issuance) publish(ctx context.Context, s *issuanceState) (string, error) {
	image, err := w.publisher.PublishBinary(ctx, s.artifact.Content, s.artifact.Name)
	if err != nil {
		return "", fmt.Errorf("%w: image: %w", entity.ErrPublishFailed, err)
	}
	s.image = image

	fields := s.req.Fields
	fields.ContentLocator = image.Locator

	doc, err := metadata.Generate(fields)
	if err != nil {
		return "", err
	}

	if result := metadata.ValidateDocument(doc); !result.Valid {
		return "", fmt.Errorf("%w: %s", entity.ErrSchemaViolation, strings.Join(result.Errors, "; "))
	}

	document, err := w.publisher.PublishJSON(ctx, doc, fmt.Sprintf("ticket-%s", s.eventID))
	if err != nil {
		return "", fmt.Errorf("%w: metadata: %w", entity.ErrPublishFailed, err)
	}
	s.document = document

	return fmt.Sprintf("Metadata published: %s", document.CID), nil
}

func (w *Issuance) submit(ctx context.Context, s *issuanceState) (string, error) {
	tx, err := withTimeout(ctx, w.timeouts.Submit, entity.ErrSubmitTimeout, func(ctx context.Context) (entity.TransactionHandle, error) {
		return w.ledger.Mint(ctx, entity.MintRequest{
			Recipient:      s.req.Recipient,
			EventID:        s.eventID,
			Seat:           s.req.Fields.Seat,
			Sector:         s.req.Fields.Section,
			EventDate:      s.eventDate,
			ContentLocator: s.document.Locator,
		})
	})
	if err != nil {
		return "", err
	}
	s.tx = tx

	return fmt.Sprintf("Transaction submitted: %s", tx.Hash), nil
}

func (w *Issuance) await(ctx context.Context, s *issuanceState) (string, error) {
	receipt, err := awaitReceipt(ctx, w.ledger, s.tx, w.timeouts.Confirmation)
	if err != nil {
		return "", err
	}
	s.receipt = receipt

	if receipt.TokenID == nil {
		return fmt.Sprintf("Ticket minted in block %d", receipt.BlockNumber), nil
	}
	return fmt.Sprintf("Ticket #%s minted in block %d", receipt.TokenID, receipt.BlockNumber), nil
}

func awaitReceipt(ctx context.Context, ledger LedgerWriter, tx entity.TransactionHandle, timeout time.Duration) (entity.Receipt, error) {
	receipt, err := withTimeout(ctx, timeout, entity.ErrConfirmationTimeout, func(ctx context.Context) (entity.Receipt, error) {
		return ledger.AwaitConfirmation(ctx, tx)
	})
	if err != nil {
		return entity.Receipt{}, err
	}
	if !receipt.Success {
		return entity.Receipt{}, fmt.Errorf("%w: %s", entity.ErrTransactionRejected, tx.Hash)
	}

	return receipt, nil
}

// NewEventID derives a numeric event id from the first 64 bits of a random UUID.
func NewEventID() *big.Int {
	id := uuid.New()
	return new(big.Int).SetBytes(id[:8])
}

func validateRecipient(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: recipient %q", entity.ErrInvalidAddress, address)
	}
	if common.HexToAddress(address) == (common.Address{}) {
		return fmt.Errorf("%w: recipient is the zero address", entity.ErrInvalidAddress)
	}
	return nil
}
