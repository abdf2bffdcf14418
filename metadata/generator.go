package metadata

import (
	"fmt"
	"strings"
	"time"

	"ticketchain/entity"
)

const (
	TraitEvent        = "Event"
	TraitSeat         = "Seat"
	TraitSection      = "Section"
	TraitDate         = "Date"
	TraitStatus       = "Status"
	TraitTicketNumber = "Ticket Number"
	TraitCategory     = "Category"
	TraitVenue        = "Venue"

	DefaultStatus = "Valid"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseEventDate accepts a calendar date or an ISO timestamp. Dates without a zone are UTC.
func ParseEventDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", entity.ErrInvalidEventDate, value)
}

// Generate builds a standardized metadata document for a ticket.
func Generate(fields entity.TicketFields) (entity.MetadataDocument, error) {
	if err := requireFields(fields, true); err != nil {
		return entity.MetadataDocument{}, err
	}

	date, err := ParseEventDate(fields.Date)
	if err != nil {
		return entity.MetadataDocument{}, err
	}

	description := fields.Description
	if description == "" {
		description = fmt.Sprintf(
			"Blockchain-verified NFT ticket for %s. Seat %s, Section %s. Event date: %s.",
			fields.EventName,
			fields.Seat,
			fields.Section,
			date.Format("02/01/2006"),
		)
	}

	return entity.MetadataDocument{
		Name:        fmt.Sprintf("NFT Ticket - %s - Seat %s", fields.EventName, fields.Seat),
		Description: description,
		Image:       fields.ContentLocator,
		Attributes:  generateAttributes(fields, date),
		ExternalURL: fields.ExternalURL,
	}, nil
}

func generateAttributes(fields entity.TicketFields, date time.Time) []entity.Attribute {
	status := fields.Status
	if status == "" {
		status = DefaultStatus
	}

	attributes := []entity.Attribute{
		{TraitType: TraitEvent, Value: entity.StringValue(fields.EventName)},
		{TraitType: TraitSeat, Value: entity.StringValue(fields.Seat)},
		{TraitType: TraitSection, Value: entity.StringValue(fields.Section)},
		{
			TraitType:   TraitDate,
			Value:       entity.NumberValue(float64(date.Unix())),
			DisplayType: entity.DisplayTypeDate,
		},
		{TraitType: TraitStatus, Value: entity.StringValue(status)},
	}

	if fields.TicketNumber != nil {
		attributes = append(attributes, entity.Attribute{
			TraitType:   TraitTicketNumber,
			Value:       entity.NumberValue(float64(*fields.TicketNumber)),
			DisplayType: entity.DisplayTypeNumber,
		})
	}
	if fields.Category != "" {
		attributes = append(attributes, entity.Attribute{TraitType: TraitCategory, Value: entity.StringValue(fields.Category)})
	}
	if fields.Venue != "" {
		attributes = append(attributes, entity.Attribute{TraitType: TraitVenue, Value: entity.StringValue(fields.Venue)})
	}

	return attributes
}

// CheckTicketFields verifies everything Generate needs except the content locator,
// which is usually only known after the ticket image is published.
// It returns the parsed event date.
func CheckTicketFields(fields entity.TicketFields) (time.Time, error) {
	if err := requireFields(fields, false); err != nil {
		return time.Time{}, err
	}
	return ParseEventDate(fields.Date)
}

type requiredField struct {
	name  string
	value string
}

func requireFields(fields entity.TicketFields, withLocator bool) error {
	required := []requiredField{
		{"eventName", fields.EventName},
		{"seat", fields.Seat},
		{"section", fields.Section},
		{"date", fields.Date},
	}
	if withLocator {
		required = append(required, requiredField{"contentLocator", fields.ContentLocator})
	}

	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", entity.ErrMissingRequiredField, strings.Join(missing, ", "))
	}

	return nil
}
