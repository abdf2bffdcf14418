package entity

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidEventDate     = errors.New("invalid event date")
	ErrMalformedJSON        = errors.New("malformed JSON")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrSchemaViolation      = errors.New("metadata schema violation")

	// ErrInvalidAttributeValue marks well-formed JSON whose attribute value is not a string or a number.
	ErrInvalidAttributeValue = errors.New("attribute value must be a string or a number")

	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrResolutionFailed   = errors.New("failed to fetch metadata from all gateways")
	ErrLedgerRead         = errors.New("ledger read failed")

	ErrPublishFailed       = errors.New("content publish failed")
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrSubmitTimeout       = errors.New("transaction submission timed out")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	ErrReadOnlyLedger      = errors.New("ledger client has no signer configured")

	ErrWorkflowInProgress = errors.New("workflow already in progress")
)
