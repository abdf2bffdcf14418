package metadata_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketchain/entity"
	"ticketchain/metadata"
)

func validCandidate() map[string]any {
	return map[string]any{
		"name":        "NFT Ticket - Rock Festival - Seat A-42",
		"description": "Ticket",
		"image":       "ipfs://bafyimage",
		"attributes": []any{
			map[string]any{"trait_type": "Event", "value": "Rock Festival"},
			map[string]any{"trait_type": "Date", "value": float64(1752537600), "display_type": "date"},
		},
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		Name             string
		Mutate           func(m map[string]any)
		ExpectedValid    bool
		ExpectedErrors   []string
		ExpectedWarnings []string
	}{
		{
			Name:          "valid",
			Mutate:        func(m map[string]any) {},
			ExpectedValid: true,
		},
		{
			Name:           "missing_name",
			Mutate:         func(m map[string]any) { delete(m, "name") },
			ExpectedErrors: []string{"Field 'name' is required and must be a string"},
		},
		{
			Name:           "empty_description",
			Mutate:         func(m map[string]any) { m["description"] = "" },
			ExpectedErrors: []string{"Field 'description' is required and must be a string"},
		},
		{
			Name:           "numeric_image",
			Mutate:         func(m map[string]any) { m["image"] = float64(3) },
			ExpectedErrors: []string{"Field 'image' is required and must be a string"},
		},
		{
			Name:             "http_image",
			Mutate:           func(m map[string]any) { m["image"] = "http://example.com/image.png" },
			ExpectedValid:    true,
			ExpectedWarnings: []string{"Image URL uses HTTP instead of HTTPS - not recommended for production"},
		},
		{
			Name:           "ftp_image",
			Mutate:         func(m map[string]any) { m["image"] = "ftp://example.com/image.png" },
			ExpectedErrors: []string{"Image URL must start with ipfs://, https://, or data:image/"},
		},
		{
			Name:             "gateway_image",
			Mutate:           func(m map[string]any) { m["image"] = "https://ipfs.io/ipfs/bafyimage" },
			ExpectedValid:    true,
			ExpectedWarnings: []string{"Consider using ipfs:// protocol instead of gateway URL for better decentralization"},
		},
		{
			Name:          "data_image",
			Mutate:        func(m map[string]any) { m["image"] = "data:image/svg+xml;base64,AAAA" },
			ExpectedValid: true,
		},
		{
			Name:           "missing_attributes",
			Mutate:         func(m map[string]any) { delete(m, "attributes") },
			ExpectedErrors: []string{"Field 'attributes' is required"},
		},
		{
			Name:           "attributes_not_array",
			Mutate:         func(m map[string]any) { m["attributes"] = "Event" },
			ExpectedErrors: []string{"Field 'attributes' must be an array"},
		},
		{
			Name:             "empty_attributes",
			Mutate:           func(m map[string]any) { m["attributes"] = []any{} },
			ExpectedValid:    true,
			ExpectedWarnings: []string{"Attributes array is empty - NFT will have no traits"},
		},
		{
			Name: "broken_attributes",
			Mutate: func(m map[string]any) {
				m["attributes"] = []any{
					"Event",
					map[string]any{"value": "x"},
					map[string]any{"trait_type": "Seat"},
					map[string]any{"trait_type": "Seat", "value": true},
					map[string]any{"trait_type": "Seat", "value": "A", "display_type": "stars"},
					map[string]any{"trait_type": "Level", "value": float64(3), "max_value": "10"},
				}
			},
			ExpectedErrors: []string{
				"Attribute at index 0 must be an object",
				"Attribute at index 1 must have a 'trait_type' string field",
				"Attribute at index 2 must have a 'value' field",
				"Attribute at index 3 has invalid value type (must be string or number)",
				"Attribute at index 4 has invalid display_type: stars",
				"Attribute at index 5 has invalid max_value (must be a number)",
			},
			ExpectedWarnings: []string{"Attribute at index 4 has display_type but value is not a number"},
		},
		{
			Name: "optional_fields",
			Mutate: func(m map[string]any) {
				m["animation_url"] = float64(1)
				m["external_url"] = []any{}
				m["background_color"] = "#ffffff"
			},
			ExpectedErrors: []string{
				"Field 'animation_url' must be a string if provided",
				"Field 'external_url' must be a string if provided",
				"Field 'background_color' must be a valid hex color (without #)",
			},
		},
		{
			Name:          "valid_background_color",
			Mutate:        func(m map[string]any) { m["background_color"] = "00FFaa" },
			ExpectedValid: true,
		},
		{
			Name: "long_texts",
			Mutate: func(m map[string]any) {
				m["name"] = strings.Repeat("n", 101)
				m["description"] = strings.Repeat("d", 1001)
			},
			ExpectedValid: true,
			ExpectedWarnings: []string{
				"Name is longer than 100 characters - may be truncated on some platforms",
				"Description is longer than 1000 characters - may be truncated on some platforms",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			candidate := validCandidate()
			tc.Mutate(candidate)

			result := metadata.Validate(candidate)

			assert.Equal(t, tc.ExpectedValid, result.Valid)
			if tc.ExpectedErrors == nil {
				assert.Empty(t, result.Errors)
			} else {
				assert.Equal(t, tc.ExpectedErrors, result.Errors)
			}
			if tc.ExpectedWarnings == nil {
				assert.Empty(t, result.Warnings)
			} else {
				assert.Equal(t, tc.ExpectedWarnings, result.Warnings)
			}
		})
	}
}

func TestValidate_not_an_object(t *testing.T) {
	for _, candidate := range []any{nil, "metadata", float64(1), []any{}, true} {
		result := metadata.Validate(candidate)
		assert.False(t, result.Valid)
		assert.Equal(t, []string{"Metadata must be a valid object"}, result.Errors)
	}
}

func TestValidate_is_pure(t *testing.T) {
	candidate := validCandidate()
	candidate["image"] = "http://example.com/image.png"

	first := metadata.Validate(candidate)
	second := metadata.Validate(candidate)
	assert.Equal(t, first, second)
}

func TestValidate_typed_document(t *testing.T) {
	doc := entity.MetadataDocument{
		Name:        "Ticket",
		Description: "Ticket",
		Image:       "https://example.com/ticket.png",
		Attributes: []entity.Attribute{
			{TraitType: "Seat", Value: entity.StringValue("A-1")},
		},
	}

	assert.True(t, metadata.IsValid(doc))
	assert.True(t, metadata.IsValid(&doc))

	doc.Name = ""
	result := metadata.ValidateDocument(doc)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"Field 'name' is required and must be a string"}, result.Errors)
}

func TestValidateJSON(t *testing.T) {
	result := metadata.ValidateJSON(`{"name":"x","description":"y","image":"ipfs://z","attributes":[{"trait_type":"a","value":1}]}`)
	assert.True(t, result.Valid)

	result = metadata.ValidateJSON("{broken")
	require.Len(t, result.Errors, 1)
	assert.False(t, result.Valid)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Invalid JSON: "))
}
