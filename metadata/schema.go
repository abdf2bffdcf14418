package metadata

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"ticketchain/entity"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
)

// PublicGatewayHosts are hosts whose URLs should be replaced by ipfs:// locators.
var PublicGatewayHosts = []string{
	"ipfs.io",
	"gateway.pinata.cloud",
	"cloudflare-ipfs.com",
	"dweb.link",
}

var hexColorPattern = regexp.MustCompile(`^[0-9A-Fa-f]{6}$`)

var documentSchema = objectRule{
	notObject: "Metadata must be a valid object",
	subject: func(key string, _ int) string {
		return fmt.Sprintf("Field '%s'", key)
	},
	fields: []fieldRule{
		{
			key:      "name",
			kind:     kindString,
			presence: presenceTruthy,
			missing:  "%s is required and must be a string",
			invalid:  "%s is required and must be a string",
		},
		{
			key:      "description",
			kind:     kindString,
			presence: presenceTruthy,
			missing:  "%s is required and must be a string",
			invalid:  "%s is required and must be a string",
		},
		{
			key:      "image",
			kind:     kindString,
			presence: presenceTruthy,
			missing:  "%s is required and must be a string",
			invalid:  "%s is required and must be a string",
			checks:   []valueCheck{checkImageLocator},
		},
		{
			key:      "attributes",
			kind:     kindArray,
			presence: presenceTruthy,
			missing:  "%s is required",
			invalid:  "%s must be an array",
			items:    &attributeSchema,
			checks:   []valueCheck{checkAttributeCount},
		},
		{
			key:     "animation_url",
			kind:    kindString,
			invalid: "%s must be a string if provided",
		},
		{
			key:     "external_url",
			kind:    kindString,
			invalid: "%s must be a string if provided",
		},
		{
			key:     "background_color",
			kind:    kindString,
			invalid: "%s must be a string if provided",
			checks:  []valueCheck{checkHexColor},
		},
	},
	checks: []objectCheck{checkTextLengths},
}

var attributeSchema = objectRule{
	notObject: "%s must be an object",
	subject: func(_ string, index int) string {
		return fmt.Sprintf("Attribute at index %d", index)
	},
	fields: []fieldRule{
		{
			key:      "trait_type",
			kind:     kindString,
			presence: presenceTruthy,
			missing:  "%s must have a 'trait_type' string field",
			invalid:  "%s must have a 'trait_type' string field",
		},
		{
			key:      "value",
			kind:     kindScalar,
			presence: presenceDefined,
			missing:  "%s must have a 'value' field",
			invalid:  "%s has invalid value type (must be string or number)",
		},
		{
			key:     "display_type",
			kind:    kindAny,
			enum:    displayTypeNames(),
			invalid: "%s has invalid display_type: %v",
		},
		{
			key:     "max_value",
			kind:    kindNumber,
			invalid: "%s has invalid max_value (must be a number)",
		},
	},
	checks: []objectCheck{checkDisplayTypeValue},
}

func displayTypeNames() []string {
	names := make([]string, 0, len(entity.DisplayTypes))
	for _, dt := range entity.DisplayTypes {
		names = append(names, string(dt))
	}
	return names
}

func checkImageLocator(value any, _ string, r *report) {
	locator := value.(string)

	switch {
	case strings.HasPrefix(locator, "ipfs://"),
		strings.HasPrefix(locator, "https://"),
		strings.HasPrefix(locator, "data:image/"):
	case strings.HasPrefix(locator, "http://"):
		r.warn("Image URL uses HTTP instead of HTTPS - not recommended for production")
	default:
		r.fail("Image URL must start with ipfs://, https://, or data:image/")
	}

	for _, host := range PublicGatewayHosts {
		if strings.Contains(locator, host) {
			r.warn("Consider using ipfs:// protocol instead of gateway URL for better decentralization")
			break
		}
	}
}

func checkAttributeCount(value any, _ string, r *report) {
	if len(value.([]any)) == 0 {
		r.warn("Attributes array is empty - NFT will have no traits")
	}
}

func checkHexColor(value any, subject string, r *report) {
	if !hexColorPattern.MatchString(value.(string)) {
		r.fail("%s must be a valid hex color (without #)", subject)
	}
}

func checkTextLengths(obj map[string]any, _ string, r *report) {
	if name, ok := obj["name"].(string); ok && utf8.RuneCountInString(name) > maxNameLength {
		r.warn("Name is longer than %d characters - may be truncated on some platforms", maxNameLength)
	}
	if description, ok := obj["description"].(string); ok && utf8.RuneCountInString(description) > maxDescriptionLength {
		r.warn("Description is longer than %d characters - may be truncated on some platforms", maxDescriptionLength)
	}
}

func checkDisplayTypeValue(obj map[string]any, subject string, r *report) {
	displayType, ok := obj["display_type"]
	if !ok || isFalsy(displayType) {
		return
	}
	if !isNumber(obj["value"]) {
		r.warn("%s has display_type but value is not a number", subject)
	}
}
