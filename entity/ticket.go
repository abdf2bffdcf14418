package entity

import (
	"math/big"
	"time"
)

type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "valid"
	TicketStatusCheckedIn TicketStatus = "checked-in"
	TicketStatusExpired   TicketStatus = "expired"
)

// Ticket is rebuilt from the ledger on every reconciliation pass and is never stored locally.
type Ticket struct {
	TokenID        *big.Int          `json:"token_id"`
	Owner          string            `json:"owner"`
	ContentLocator string            `json:"content_locator"`
	EventID        *big.Int          `json:"event_id"`
	Seat           string            `json:"seat"`
	Sector         string            `json:"sector"`
	EventDate      int64             `json:"event_date"`
	CheckedIn      bool              `json:"checked_in"`
	Metadata       *MetadataDocument `json:"metadata,omitempty"`
}

// Status is checked-in > expired > valid.
func (t Ticket) Status(now time.Time) TicketStatus {
	if t.CheckedIn {
		return TicketStatusCheckedIn
	}
	if t.EventDate < now.Unix() {
		return TicketStatusExpired
	}

	return TicketStatusValid
}

// TicketFields is the input of metadata generation and of the issuance workflow.
type TicketFields struct {
	EventName      string `json:"event_name"`
	Seat           string `json:"seat"`
	Section        string `json:"section"`
	Date           string `json:"date"`
	ContentLocator string `json:"content_locator"`

	Description  string `json:"description,omitempty"`
	TicketNumber *int   `json:"ticket_number,omitempty"`
	Category     string `json:"category,omitempty"`
	Status       string `json:"status,omitempty"`
	Venue        string `json:"venue,omitempty"`
	ExternalURL  string `json:"external_url,omitempty"`
}
