package storage

import (
	"encoding/base64"

	"github.com/arthur-debert/noodm/types"
	"github.com/google/uuid"
)

// IDGenerator produces identifiers for new documents
type IDGenerator func(doc types.Document) (string, error)

// NewSlugID returns a random UUID encoded as URL-safe base64 without padding (22 chars)
func NewSlugID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(id[:]), nil
}

// SlugID is the default IDGenerator
func SlugID(types.Document) (string, error) {
	return NewSlugID()
}
