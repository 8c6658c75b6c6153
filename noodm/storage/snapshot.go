package storage

import (
	"sort"
	"time"

	"github.com/arthur-debert/noodm/types"
)

// SnapshotVersion is written into the metadata of every snapshot
const SnapshotVersion = "1.0"

// Metadata contains storage metadata
type Metadata struct {
	Version   string    `json:"version" bson:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// CollectionMeta describes a collection independently of its documents
type CollectionMeta struct {
	Name   string
	Fields map[string]types.FieldDescriptor
}

// CollectionData is the live state of one collection: its metadata, its
// durable documents and its indexes. A Collection and the Snapshot share the
// same pointer.
type CollectionData struct {
	Meta      CollectionMeta
	Documents *Table
	Indexes   *IndexSet

	lock *LockManager
}

// NewCollectionData creates an empty collection
func NewCollectionData(name string, fields map[string]types.FieldDescriptor) *CollectionData {
	normalized := make(map[string]types.FieldDescriptor, len(fields))
	for k, f := range fields {
		normalized[k] = f.Normalized()
	}
	return &CollectionData{
		Meta:      CollectionMeta{Name: name, Fields: normalized},
		Documents: NewTable(),
		Indexes:   NewIndexSet(normalized),
		lock:      NewLockManager(),
	}
}

// Lock returns the lock guarding the collection
func (c *CollectionData) Lock() *LockManager {
	return c.lock
}

// Snapshot is the complete state of a database
type Snapshot struct {
	Metadata Metadata

	collections map[string]*CollectionData
	lock        *LockManager
}

// NewSnapshot creates an empty snapshot
func NewSnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		Metadata: Metadata{
			Version:   SnapshotVersion,
			CreatedAt: now,
			UpdatedAt: now,
		},
		collections: make(map[string]*CollectionData),
		lock:        NewLockManager(),
	}
}

// Collection returns the named collection
func (s *Snapshot) Collection(name string) (*CollectionData, bool) {
	var cd *CollectionData
	var ok bool
	_ = s.lock.Execute(ReadOperation, func() error {
		cd, ok = s.collections[name]
		return nil
	})
	return cd, ok
}

// Put registers cd under its name, replacing any previous collection
func (s *Snapshot) Put(cd *CollectionData) {
	_ = s.lock.Execute(WriteOperation, func() error {
		s.collections[cd.Meta.Name] = cd
		return nil
	})
}

// Ensure returns the named collection, creating it with create when absent
func (s *Snapshot) Ensure(name string, create func() *CollectionData) (*CollectionData, bool) {
	var cd *CollectionData
	created := false
	_ = s.lock.Execute(WriteOperation, func() error {
		if existing, ok := s.collections[name]; ok {
			cd = existing
			return nil
		}
		cd = create()
		s.collections[name] = cd
		created = true
		return nil
	})
	return cd, created
}

// Remove drops the named collection and reports whether it existed
func (s *Snapshot) Remove(name string) bool {
	removed := false
	_ = s.lock.Execute(WriteOperation, func() error {
		_, removed = s.collections[name]
		delete(s.collections, name)
		return nil
	})
	return removed
}

// Rename moves a collection to a new name. It fails when from is missing or
// to is taken.
func (s *Snapshot) Rename(from, to string) (*CollectionData, bool) {
	var cd *CollectionData
	ok := false
	_ = s.lock.Execute(WriteOperation, func() error {
		existing, found := s.collections[from]
		if !found {
			return nil
		}
		if _, taken := s.collections[to]; taken {
			return nil
		}
		delete(s.collections, from)
		_ = existing.lock.Execute(WriteOperation, func() error {
			existing.Meta.Name = to
			return nil
		})
		s.collections[to] = existing
		cd, ok = existing, true
		return nil
	})
	return cd, ok
}

// Names returns the collection names in sorted order
func (s *Snapshot) Names() []string {
	var names []string
	_ = s.lock.Execute(ReadOperation, func() error {
		names = make([]string, 0, len(s.collections))
		for name := range s.collections {
			names = append(names, name)
		}
		return nil
	})
	sort.Strings(names)
	return names
}
