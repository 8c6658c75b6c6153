// Package testutil provides fixtures and assertions for tests that exercise
// a noodm database.
package testutil

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/arthur-debert/noodm/noodm"
	"github.com/arthur-debert/noodm/noodm/storage"
	"github.com/arthur-debert/noodm/types"
)

//go:embed testdata/universe.yaml
var universeSchemas []byte

//go:embed testdata/universe.json
var universeDocuments []byte

// FixedNow is the clock used by fixture databases
var FixedNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// FixedTime returns FixedNow
func FixedTime() time.Time { return FixedNow }

// NewDatabase opens a JSON database in a temp dir. It is closed on cleanup.
func NewDatabase(t *testing.T, opts ...noodm.Option) (*noodm.Database, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "noodm.json")
	adapter := storage.NewJSONAdapter(path, storage.WithTimeFunc(FixedTime))
	return OpenDatabase(t, adapter, opts...), path
}

// MockEnv bundles an in-memory file system and lock factory
type MockEnv struct {
	FS    *storage.MockFileSystem
	Locks *storage.MockFileLockFactory
	Path  string
}

// Adapter returns a JSON adapter over the mock file system
func (m *MockEnv) Adapter(opts ...storage.Option) *storage.JSONAdapter {
	opts = append([]storage.Option{
		storage.WithFileSystem(m.FS),
		storage.WithFileLockFactory(m.Locks),
		storage.WithTimeFunc(FixedTime),
	}, opts...)
	return storage.NewJSONAdapter(m.Path, opts...)
}

// NewMockDatabase opens a JSON database backed by an in-memory file system
func NewMockDatabase(t *testing.T, opts ...noodm.Option) (*noodm.Database, *MockEnv) {
	t.Helper()
	env := &MockEnv{
		FS:    storage.NewMockFileSystem(),
		Locks: storage.NewMockFileLockFactory(),
		Path:  "/mock/noodm.json",
	}
	return OpenDatabase(t, env.Adapter(), opts...), env
}

// OpenDatabase opens adapter and closes the database on cleanup
func OpenDatabase(t *testing.T, adapter storage.Adapter, opts ...noodm.Option) *noodm.Database {
	t.Helper()
	opts = append([]noodm.Option{noodm.WithTimeFunc(FixedTime)}, opts...)
	db, err := noodm.Open(context.Background(), adapter, opts...)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Universe gives named access to the seeded fixture
type Universe struct {
	Users *noodm.Collection
	Tasks *noodm.Collection

	// ByID holds every seeded document as stored, keyed by _id
	ByID map[string]types.Document
}

// Schemas returns the fixture schemas
func Schemas(t *testing.T) map[string]types.Schema {
	t.Helper()
	schemas, err := types.LoadSchemas(bytes.NewReader(universeSchemas))
	if err != nil {
		t.Fatalf("failed to parse fixture schemas: %v", err)
	}
	out := make(map[string]types.Schema, len(schemas))
	for _, s := range schemas {
		out[s.Name] = s
	}
	return out
}

// LoadUniverse declares the fixture schemas in db and inserts the fixture
// documents: four users and six tasks.
func LoadUniverse(t *testing.T, db *noodm.Database) *Universe {
	t.Helper()
	ctx := context.Background()
	schemas := Schemas(t)

	var raw map[string][]map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(universeDocuments))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		t.Fatalf("failed to parse fixture documents: %v", err)
	}

	u := &Universe{ByID: make(map[string]types.Document)}
	for _, name := range []string{"users", "tasks"} {
		c, err := db.CollectionFor(schemas[name])
		if err != nil {
			t.Fatalf("failed to declare %s: %v", name, err)
		}
		docs := make([]types.Document, 0, len(raw[name]))
		for _, fields := range raw[name] {
			doc, err := types.NewDocument(fields)
			if err != nil {
				t.Fatalf("invalid fixture document in %s: %v", name, err)
			}
			docs = append(docs, doc)
		}
		if _, err := c.InsertMany(ctx, docs); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
		stored, err := c.Find(ctx, nil)
		if err != nil {
			t.Fatalf("failed to read back %s: %v", name, err)
		}
		for _, doc := range stored {
			u.ByID[doc.ID()] = doc
		}
		switch name {
		case "users":
			u.Users = c
		case "tasks":
			u.Tasks = c
		}
	}
	return u
}

// IDs returns the sorted ids of docs
func IDs(docs []types.Document) []string {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID()
	}
	sort.Strings(ids)
	return ids
}
