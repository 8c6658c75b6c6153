package types

import (
	"fmt"
	"sort"
)

// IDField is the reserved field holding a document's identifier
const IDField = "_id"

// Document is a schema-optional record: field name to value.
// A stored document carries its identifier under IDField.
type Document map[string]Value

// NewDocument builds a Document from plain Go values
func NewDocument(fields map[string]interface{}) (Document, error) {
	doc := make(Document, len(fields))
	for k, raw := range fields {
		v, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		doc[k] = v
	}
	return doc, nil
}

// ID returns the document identifier, or "" when unset
func (d Document) ID() string {
	s, _ := d[IDField].Str()
	return s
}

// Get returns the value of a field; absent fields are undefined
func (d Document) Get(field string) Value {
	return d[field]
}

// Clone returns a deep copy of the document. Undefined entries are dropped.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	cp := make(Document, len(d))
	for k, v := range d {
		if v.IsUndefined() {
			continue
		}
		cp[k] = v.Clone()
	}
	return cp
}

// Equal reports whether both documents hold equal values for the same defined fields
func (d Document) Equal(o Document) bool {
	count := 0
	for k, v := range d {
		if v.IsUndefined() {
			continue
		}
		count++
		if !v.Equal(o[k]) {
			return false
		}
	}
	for _, v := range o {
		if !v.IsUndefined() {
			count--
		}
	}
	return count == 0
}

// Fields returns the defined field names in sorted order
func (d Document) Fields() []string {
	names := make([]string, 0, len(d))
	for k, v := range d {
		if !v.IsUndefined() {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Map returns the document as plain Go values
func (d Document) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(d))
	for k, v := range d {
		if v.IsUndefined() {
			continue
		}
		out[k] = v.Interface()
	}
	return out
}
