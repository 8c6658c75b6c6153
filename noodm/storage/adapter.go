// Package storage provides the persistence layer for noodm.
// It defines the Adapter contract, the in-memory snapshot the database owns,
// and the file, SQLite and DynamoDB backends that serialize it.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/arthur-debert/noodm/types"
)

// Adapter defines the persistence contract of a database.
// A snapshot is always written and read as a single unit.
type Adapter interface {
	// Serialize writes the entire snapshot atomically
	Serialize(ctx context.Context, snap *Snapshot) error

	// Deserialize reads the last written snapshot. A missing or empty
	// destination returns nil, nil.
	Deserialize(ctx context.Context) (*Snapshot, error)

	// GenerateID returns a fresh identifier for doc
	GenerateID(doc types.Document) (string, error)

	// Transformers returns the value transformers keyed by type tag
	Transformers() Transformers

	// Constraints returns additional validators keyed by type tag
	Constraints() map[string][]types.Validator
}

// Transformer converts one type of value between its rich in-memory form and
// the durable form the backend can store
type Transformer struct {
	// Set converts a rich value into its durable form
	Set func(types.Value) (types.Value, error)

	// Get converts a durable value back into its rich form
	Get func(types.Value) (types.Value, error)

	// Detect recognizes a durable value written by Set when the field
	// carries no declared type
	Detect func(types.Value) bool
}

// Transformers maps type tags to transformers
type Transformers map[string]Transformer

// Encode converts v to its durable form. The transformer is picked by the
// declared type tag, or by the runtime tag when the field is undeclared.
func (t Transformers) Encode(declared string, v types.Value) (types.Value, error) {
	if v.IsNil() || len(t) == 0 {
		return v, nil
	}
	tag := declared
	if tag == "" {
		tag = v.Tag()
	}
	tr, ok := t[tag]
	if !ok || tr.Set == nil {
		return v, nil
	}
	return tr.Set(v)
}

// Decode converts a durable value back to its rich form
func (t Transformers) Decode(declared string, v types.Value) (types.Value, error) {
	if v.IsNil() || len(t) == 0 {
		return v, nil
	}
	if declared != "" {
		tr, ok := t[declared]
		if !ok || tr.Get == nil {
			return v, nil
		}
		return tr.Get(v)
	}
	for _, tag := range t.tags() {
		tr := t[tag]
		if tr.Detect != nil && tr.Get != nil && tr.Detect(v) {
			return tr.Get(v)
		}
	}
	return v, nil
}

// EncodeDocument returns a durable copy of doc
func (t Transformers) EncodeDocument(doc types.Document, fields map[string]types.FieldDescriptor) (types.Document, error) {
	out := make(types.Document, len(doc))
	for k, v := range doc {
		if v.IsUndefined() {
			continue
		}
		enc, err := t.Encode(fields[k].Type, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

// DecodeDocument returns a rich copy of a durable document
func (t Transformers) DecodeDocument(doc types.Document, fields map[string]types.FieldDescriptor) (types.Document, error) {
	out := make(types.Document, len(doc))
	for k, v := range doc {
		dec, err := t.Decode(fields[k].Type, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = dec.Clone()
	}
	return out, nil
}

func (t Transformers) tags() []string {
	tags := make([]string, 0, len(t))
	for tag := range t {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// String lists the transformer tags, for logs
func (t Transformers) String() string {
	return "[" + strings.Join(t.tags(), ",") + "]"
}
