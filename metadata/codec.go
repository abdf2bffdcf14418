package metadata

import (
	"encoding/json"
	"errors"
	"fmt"

	"ticketchain/entity"
)

func ToJSON(doc entity.MetadataDocument, pretty bool) (string, error) {
	var (
		out []byte
		err error
	)
	if pretty {
		out, err = json.MarshalIndent(doc, "", "  ")
	} else {
		out, err = json.Marshal(doc)
	}
	if err != nil {
		return "", fmt.Errorf("could not marshal metadata: %w", err)
	}

	return string(out), nil
}

func FromJSON(text string) (entity.MetadataDocument, error) {
	var doc entity.MetadataDocument
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		if errors.Is(err, entity.ErrInvalidAttributeValue) {
			return entity.MetadataDocument{}, err
		}
		return entity.MetadataDocument{}, fmt.Errorf("%w: %s", entity.ErrMalformedJSON, err)
	}

	return doc, nil
}
