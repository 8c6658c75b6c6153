package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arthur-debert/noodm/noodm/storage"
	"github.com/arthur-debert/noodm/types"
)

func openTestAdapter(t *testing.T, name string) (*Adapter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "noodm.db")
	a, err := Open(path, name)
	if err != nil {
		t.Fatalf("failed to open sqlite adapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, path
}

func TestSQLBuilder(t *testing.T) {
	b := newSQLBuilder(DefaultTable)

	query, args, err := b.upsert("main", 3, []byte("{}"), 42)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if !strings.HasPrefix(query, "INSERT INTO noodm_snapshots (name,ticket,body,updated_at) VALUES (?,?,?,?)") {
		t.Errorf("unexpected upsert: %s", query)
	}
	if !strings.Contains(query, "ON CONFLICT(name)") {
		t.Errorf("upsert must replace existing rows: %s", query)
	}
	if len(args) != 4 {
		t.Errorf("expected 4 args, got %v", args)
	}

	query, args, err = b.selectBody("main")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if query != "SELECT body FROM noodm_snapshots WHERE name = ?" || len(args) != 1 {
		t.Errorf("unexpected select: %s %v", query, args)
	}
}

func TestAdapterRoundTrip(t *testing.T) {
	a, path := openTestAdapter(t, "main")
	ctx := context.Background()

	snap, err := a.Deserialize(ctx)
	if err != nil || snap != nil {
		t.Fatalf("empty table should load nil, got %v %v", snap, err)
	}

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	snap = storage.NewSnapshot(at)
	cd := storage.NewCollectionData("events", map[string]types.FieldDescriptor{
		"at": {Type: types.TagDate},
	})
	durable, err := a.Transformers().EncodeDocument(types.Document{
		types.IDField: types.String("e1"),
		"at":          types.Date(at),
	}, cd.Meta.Fields)
	if err != nil {
		t.Fatal(err)
	}
	cd.Documents.Put("e1", durable)
	snap.Put(cd)

	if err := a.Serialize(ctx, snap); err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	// A second write replaces the row
	if err := a.Serialize(ctx, snap); err != nil {
		t.Fatalf("second serialize failed: %v", err)
	}

	// Reopen through a fresh connection
	b, err := Open(path, "main")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = b.Close() }()

	loaded, err := b.Deserialize(ctx)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	events, ok := loaded.Collection("events")
	if !ok {
		t.Fatal("events collection missing")
	}
	doc, ok := events.Documents.Get("e1")
	if !ok {
		t.Fatal("e1 missing")
	}
	rich, err := b.Transformers().DecodeDocument(doc, events.Meta.Fields)
	if err != nil {
		t.Fatal(err)
	}
	if !rich["at"].Equal(types.Date(at)) {
		t.Errorf("at = %s, want %s", rich["at"], at)
	}

	names, err := b.Names(ctx)
	if err != nil || len(names) != 1 || names[0] != "main" {
		t.Errorf("names = %v, %v", names, err)
	}

	if err := b.Drop(ctx); err != nil {
		t.Fatal(err)
	}
	if snap, err := b.Deserialize(ctx); err != nil || snap != nil {
		t.Errorf("dropped snapshot should load nil, got %v %v", snap, err)
	}
}

func TestAdaptersShareTableByName(t *testing.T) {
	a, path := openTestAdapter(t, "one")
	b, err := Open(path, "two")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = b.Close() }()

	ctx := context.Background()
	snap := storage.NewSnapshot(time.Now())
	snap.Put(storage.NewCollectionData("only-in-one", nil))
	if err := a.Serialize(ctx, snap); err != nil {
		t.Fatal(err)
	}

	loaded, err := b.Deserialize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != nil {
		t.Errorf("database two should be empty, got %v", loaded.Names())
	}
}
