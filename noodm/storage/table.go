package storage

import (
	"sort"

	"github.com/arthur-debert/noodm/types"
)

// Table holds durable documents by id and remembers insertion order.
// It is not safe for concurrent use; callers hold the collection lock.
type Table struct {
	order []string
	docs  map[string]types.Document
	seq   map[string]uint64
	next  uint64
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{docs: make(map[string]types.Document), seq: make(map[string]uint64)}
}

// Put stores doc under id. Replacing an existing id keeps its position.
func (t *Table) Put(id string, doc types.Document) {
	if _, exists := t.docs[id]; !exists {
		t.order = append(t.order, id)
		t.next++
		t.seq[id] = t.next
	}
	t.docs[id] = doc
}

// Get returns the stored document
func (t *Table) Get(id string) (types.Document, bool) {
	doc, ok := t.docs[id]
	return doc, ok
}

// Has reports whether id is stored
func (t *Table) Has(id string) bool {
	_, ok := t.docs[id]
	return ok
}

// Delete removes id and reports whether it was present
func (t *Table) Delete(id string) bool {
	if _, ok := t.docs[id]; !ok {
		return false
	}
	delete(t.docs, id)
	delete(t.seq, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of documents
func (t *Table) Len() int {
	return len(t.docs)
}

// IDs returns the ids in insertion order
func (t *Table) IDs() []string {
	ids := make([]string, len(t.order))
	copy(ids, t.order)
	return ids
}

// Each visits documents in insertion order until fn returns false
func (t *Table) Each(fn func(id string, doc types.Document) bool) {
	for _, id := range t.order {
		if !fn(id, t.docs[id]) {
			return
		}
	}
}

// Ordered returns the ids of the set that are stored, in insertion order
func (t *Table) Ordered(ids map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		if _, ok := t.docs[id]; ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.seq[out[i]] < t.seq[out[j]] })
	return out
}
