package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type DisplayType string

const (
	DisplayTypeNumber          DisplayType = "number"
	DisplayTypeBoostNumber     DisplayType = "boost_number"
	DisplayTypeBoostPercentage DisplayType = "boost_percentage"
	DisplayTypeDate            DisplayType = "date"
)

var DisplayTypes = []DisplayType{
	DisplayTypeNumber,
	DisplayTypeBoostNumber,
	DisplayTypeBoostPercentage,
	DisplayTypeDate,
}

// MetadataDocument is the off-ledger JSON document a ticket's content locator points at.
type MetadataDocument struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Image           string      `json:"image"`
	Attributes      []Attribute `json:"attributes"`
	ExternalURL     string      `json:"external_url,omitempty"`
	AnimationURL    string      `json:"animation_url,omitempty"`
	BackgroundColor string      `json:"background_color,omitempty"`
}

// Attribute order is presentation order. TraitType is not required to be unique.
type Attribute struct {
	TraitType   string         `json:"trait_type"`
	Value       AttributeValue `json:"value"`
	DisplayType DisplayType    `json:"display_type,omitempty"`
	MaxValue    *float64       `json:"max_value,omitempty"`
}

// AttributeValue holds either a string or a number.
type AttributeValue struct {
	text    string
	number  float64
	numeric bool
}

func StringValue(s string) AttributeValue {
	return AttributeValue{text: s}
}

func NumberValue(n float64) AttributeValue {
	return AttributeValue{number: n, numeric: true}
}

func (v AttributeValue) IsNumber() bool {
	return v.numeric
}

func (v AttributeValue) Number() float64 {
	return v.number
}

func (v AttributeValue) String() string {
	if v.numeric {
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	}
	return v.text
}

func (v AttributeValue) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return json.Marshal(v.number)
	}
	return json.Marshal(v.text)
}

func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty attribute value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
		return nil
	default:
		return fmt.Errorf("%w, got %s", ErrInvalidAttributeValue, data)
	}
}

type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
