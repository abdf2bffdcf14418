package metadata

import (
	"encoding/json"
	"fmt"
	"reflect"

	"ticketchain/entity"
)

type valueKind int

const (
	kindAny valueKind = iota
	kindString
	kindNumber
	// kindScalar accepts strings and numbers.
	kindScalar
	kindArray
)

type presenceRule int

const (
	// presenceOptional fields are checked only when the key exists.
	presenceOptional presenceRule = iota
	// presenceTruthy fields are missing when absent, null, false, zero or empty.
	presenceTruthy
	// presenceDefined fields are missing when absent or null.
	presenceDefined
)

type valueCheck func(value any, subject string, r *report)

type objectCheck func(obj map[string]any, subject string, r *report)

type fieldRule struct {
	key      string
	kind     valueKind
	presence presenceRule
	// missing and invalid are format strings receiving the subject.
	// For enum violations invalid also receives the offending value.
	missing string
	invalid string
	enum    []string
	items   *objectRule
	checks  []valueCheck
}

type objectRule struct {
	notObject string
	subject   func(key string, index int) string
	fields    []fieldRule
	checks    []objectCheck
}

type report struct {
	errors   []string
	warnings []string
}

func (r *report) fail(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *report) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *report) result() entity.ValidationResult {
	return entity.ValidationResult{
		Valid:    len(r.errors) == 0,
		Errors:   r.errors,
		Warnings: r.warnings,
	}
}

// Validate checks an arbitrary candidate against the marketplace metadata schema.
// It never fails: every problem is reported in the result.
func Validate(candidate any) entity.ValidationResult {
	r := &report{errors: []string{}, warnings: []string{}}

	obj, ok := asObject(candidate)
	if !ok {
		r.errors = append(r.errors, documentSchema.notObject)
		return r.result()
	}

	documentSchema.validate(obj, -1, r)
	return r.result()
}

func ValidateDocument(doc entity.MetadataDocument) entity.ValidationResult {
	return Validate(doc)
}

// ValidateJSON parses text before validating it. Parse failures are reported
// as a single "Invalid JSON" error.
func ValidateJSON(text string) entity.ValidationResult {
	var candidate any
	if err := json.Unmarshal([]byte(text), &candidate); err != nil {
		return entity.ValidationResult{
			Valid:    false,
			Errors:   []string{fmt.Sprintf("Invalid JSON: %s", err)},
			Warnings: []string{},
		}
	}
	return Validate(candidate)
}

func IsValid(candidate any) bool {
	return Validate(candidate).Valid
}

func (o objectRule) validate(obj map[string]any, index int, r *report) {
	for _, field := range o.fields {
		subject := o.subject(field.key, index)
		value, present := obj[field.key]

		switch field.presence {
		case presenceOptional:
			if !present {
				continue
			}
		case presenceTruthy:
			if !present || isFalsy(value) {
				r.fail(field.missing, subject)
				continue
			}
		case presenceDefined:
			if !present || value == nil {
				r.fail(field.missing, subject)
				continue
			}
		}

		if !field.kind.matches(value) {
			r.fail(field.invalid, subject)
			continue
		}

		if len(field.enum) > 0 && !inEnum(field.enum, value) {
			r.fail(field.invalid, subject, value)
			continue
		}

		for _, check := range field.checks {
			check(value, subject, r)
		}

		if field.items != nil {
			for i, item := range value.([]any) {
				itemObj, ok := asObject(item)
				if !ok {
					r.fail(field.items.notObject, field.items.subject("", i))
					continue
				}
				field.items.validate(itemObj, i, r)
			}
		}
	}

	subject := o.subject("", index)
	for _, check := range o.checks {
		check(obj, subject, r)
	}
}

func (k valueKind) matches(value any) bool {
	switch k {
	case kindString:
		_, ok := value.(string)
		return ok
	case kindNumber:
		return isNumber(value)
	case kindScalar:
		_, ok := value.(string)
		return ok || isNumber(value)
	case kindArray:
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

func inEnum(enum []string, value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	for _, candidate := range enum {
		if candidate == s {
			return true
		}
	}
	return false
}

// asObject normalizes the candidate into a generic JSON object.
// Typed values go through a JSON round trip so that the same rules apply to
// documents built in code and documents received over the wire.
func asObject(candidate any) (map[string]any, bool) {
	switch v := candidate.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, true
	case string, bool, []any:
		return nil, false
	}

	if isNumber(candidate) {
		return nil, false
	}

	rv := reflect.ValueOf(candidate)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, false
	}

	raw, err := json.Marshal(candidate)
	if err != nil {
		return nil, false
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}

	obj, ok := generic.(map[string]any)
	return obj, ok
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		json.Number:
		return true
	default:
		return false
	}
}

func isFalsy(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	case float64:
		return v == 0
	case int:
		return v == 0
	case json.Number:
		return v.String() == "0"
	default:
		return false
	}
}
