package entity

import "math/big"

// TransferLog is a single Transfer event read from the ledger. TokenID is nil when the log
// entry could not be decoded into an id.
type TransferLog struct {
	TokenID     *big.Int
	From        string
	To          string
	BlockNumber uint64
	TxHash      string
}

type TicketRecord struct {
	EventID        *big.Int
	Seat           string
	Sector         string
	EventDate      int64
	CheckedIn      bool
	ContentLocator string
	Owner          string
}

type MintRequest struct {
	Recipient      string
	EventID        *big.Int
	Seat           string
	Sector         string
	EventDate      int64
	ContentLocator string
}

type TransactionHandle struct {
	Hash string `json:"hash"`
}

type Receipt struct {
	TxHash      string   `json:"tx_hash"`
	BlockNumber uint64   `json:"block_number"`
	Success     bool     `json:"success"`
	TokenID     *big.Int `json:"token_id,omitempty"`
}

type PublishResult struct {
	CID     string `json:"cid"`
	Locator string `json:"locator"`
}

// Artifact is a rendered binary asset, e.g. the ticket image.
type Artifact struct {
	Name        string
	ContentType string
	Content     []byte
}
