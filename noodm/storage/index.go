package storage

import (
	"fmt"
	"sort"

	"github.com/arthur-debert/noodm/types"
)

// ConflictError reports a unique bucket already held by another document
type ConflictError struct {
	Field  string
	Value  types.Value
	Holder string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("field %s value %s already held by %s", e.Field, e.Value, e.Holder)
}

// IndexSet keeps field -> key -> ids for every indexed field of a collection.
// Keys are computed from rich values. It is not safe for concurrent use;
// callers hold the collection lock.
type IndexSet struct {
	unique  map[string]bool
	buckets map[string]map[string]map[string]struct{}
}

// NewIndexSet creates empty indexes for the indexed fields of fields
func NewIndexSet(fields map[string]types.FieldDescriptor) *IndexSet {
	s := &IndexSet{
		unique:  make(map[string]bool),
		buckets: make(map[string]map[string]map[string]struct{}),
	}
	for name, f := range fields {
		if name == types.IDField || !f.HasIndex() {
			continue
		}
		s.unique[name] = f.Unique
		s.buckets[name] = make(map[string]map[string]struct{})
	}
	return s
}

// Fields returns the indexed field names in sorted order
func (s *IndexSet) Fields() []string {
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unique reports whether field carries a unique index
func (s *IndexSet) Unique(field string) bool {
	return s.unique[field]
}

// Bucket returns the ids stored under key for field. indexed is false when the
// field has no index.
func (s *IndexSet) Bucket(field, key string) (map[string]struct{}, bool) {
	buckets, indexed := s.buckets[field]
	if !indexed {
		return nil, false
	}
	return buckets[key], true
}

// Conflict returns the first unique field where doc would collide with a
// holder outside released. Callers release the ids whose entries are about to
// be replaced, including doc's own.
func (s *IndexSet) Conflict(doc types.Document, released map[string]struct{}) *ConflictError {
	for _, field := range s.Fields() {
		if !s.unique[field] {
			continue
		}
		v := doc[field]
		key, ok := v.IndexKey()
		if !ok {
			continue
		}
		for holder := range s.buckets[field][key] {
			if _, ok := released[holder]; !ok {
				return &ConflictError{Field: field, Value: v, Holder: holder}
			}
		}
	}
	return nil
}

// Add indexes doc under id. With enforce, a unique bucket held by another id
// fails with *ConflictError and the entries already added for doc are removed.
func (s *IndexSet) Add(id string, doc types.Document, enforce bool) error {
	var added []string
	for _, field := range s.Fields() {
		key, ok := doc[field].IndexKey()
		if !ok {
			continue
		}
		bucket := s.buckets[field][key]
		if enforce && s.unique[field] {
			for holder := range bucket {
				if holder != id {
					for _, f := range added {
						s.removeKey(f, mustKey(doc[f]), id)
					}
					return &ConflictError{Field: field, Value: doc[field], Holder: holder}
				}
			}
		}
		if bucket == nil {
			bucket = make(map[string]struct{})
			s.buckets[field][key] = bucket
		}
		bucket[id] = struct{}{}
		added = append(added, field)
	}
	return nil
}

// Remove drops id from every bucket doc places it in. Empty buckets are dropped.
func (s *IndexSet) Remove(id string, doc types.Document) {
	for field := range s.buckets {
		key, ok := doc[field].IndexKey()
		if !ok {
			continue
		}
		s.removeKey(field, key, id)
	}
}

func (s *IndexSet) removeKey(field, key, id string) {
	bucket := s.buckets[field][key]
	if bucket == nil {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(s.buckets[field], key)
	}
}

// Rebuild recomputes every index from table. decode turns a durable document
// into the rich form the keys are computed from.
func (s *IndexSet) Rebuild(table *Table, decode func(types.Document) (types.Document, error)) error {
	for field := range s.buckets {
		s.buckets[field] = make(map[string]map[string]struct{})
	}
	var err error
	table.Each(func(id string, doc types.Document) bool {
		rich, decodeErr := decode(doc)
		if decodeErr != nil {
			err = fmt.Errorf("document %s: %w", id, decodeErr)
			return false
		}
		_ = s.Add(id, rich, false)
		return true
	})
	return err
}

// Keys returns the number of distinct keys indexed for field
func (s *IndexSet) Keys(field string) int {
	return len(s.buckets[field])
}

// Entries returns the number of ids indexed for field
func (s *IndexSet) Entries(field string) int {
	n := 0
	for _, bucket := range s.buckets[field] {
		n += len(bucket)
	}
	return n
}

// Export returns a copy of the indexes with sorted ids, for persistence and
// inspection
func (s *IndexSet) Export() map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(s.buckets))
	for field, buckets := range s.buckets {
		keys := make(map[string][]string, len(buckets))
		for key, bucket := range buckets {
			ids := make([]string, 0, len(bucket))
			for id := range bucket {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			keys[key] = ids
		}
		out[field] = keys
	}
	return out
}

func mustKey(v types.Value) string {
	key, _ := v.IndexKey()
	return key
}
