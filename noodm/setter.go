package noodm

import (
	"fmt"

	"github.com/arthur-debert/noodm/types"
)

// Setter computes the new version of a matched document. Apply receives a
// deep copy it may modify and return.
type Setter interface {
	Apply(doc types.Document) (types.Document, error)
}

// Set merges its fields into the document. An undefined value removes the field.
type Set types.Document

// Apply implements Setter
func (s Set) Apply(doc types.Document) (types.Document, error) {
	for k, v := range s {
		if v.IsUndefined() {
			delete(doc, k)
			continue
		}
		doc[k] = v.Clone()
	}
	return doc, nil
}

// SetValues builds a Set from plain Go values
func SetValues(fields map[string]interface{}) (Set, error) {
	doc, err := types.NewDocument(fields)
	if err != nil {
		return nil, fmt.Errorf("invalid set: %w", err)
	}
	return Set(doc), nil
}

// Transform computes the new document with a function
type Transform func(doc types.Document) (types.Document, error)

// Apply implements Setter
func (t Transform) Apply(doc types.Document) (types.Document, error) {
	return t(doc)
}
