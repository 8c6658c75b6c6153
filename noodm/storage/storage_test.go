package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arthur-debert/noodm/types"
	"github.com/google/go-cmp/cmp"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedTime() time.Time { return fixedNow }

// seedSnapshot builds a snapshot holding one "test" collection with durable documents
func seedSnapshot(t *testing.T, tr Transformers) *Snapshot {
	t.Helper()

	fields := map[string]types.FieldDescriptor{
		"email": {Type: types.TagString, Unique: true},
		"at":    {Type: types.TagDate, Default: types.Date(fixedNow)},
		"level": {Type: types.TagNumber, Rules: map[string]interface{}{"enum": []interface{}{1, 2}}},
	}
	snap := NewSnapshot(fixedNow)
	cd := NewCollectionData("test", fields)

	rich := []types.Document{
		{types.IDField: types.String("a"), "email": types.String("a@x.io"), "at": types.Date(fixedNow), "level": types.Int(1)},
		{types.IDField: types.String("b"), "email": types.String("b@x.io"), "blob": types.Blob([]byte{0, 1, 2}), "when": types.Date(fixedNow.Add(time.Hour))},
	}
	for _, doc := range rich {
		durable, err := tr.EncodeDocument(doc, fields)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		cd.Documents.Put(doc.ID(), durable)
		if err := cd.Indexes.Add(doc.ID(), doc, true); err != nil {
			t.Fatalf("index add failed: %v", err)
		}
	}
	snap.Put(cd)
	return snap
}

func decodeAll(t *testing.T, snap *Snapshot, tr Transformers, name string) []types.Document {
	t.Helper()
	cd, ok := snap.Collection(name)
	if !ok {
		t.Fatalf("collection %s missing", name)
	}
	var out []types.Document
	cd.Documents.Each(func(_ string, doc types.Document) bool {
		rich, err := tr.DecodeDocument(doc, cd.Meta.Fields)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		out = append(out, rich)
		return true
	})
	return out
}

func docComparer() cmp.Option {
	return cmp.Comparer(func(a, b types.Value) bool { return a.Equal(b) })
}

func TestJSONAdapterRoundTrip(t *testing.T) {
	mockFS := NewMockFileSystem()
	adapter := NewJSONAdapter("db.json",
		WithFileSystem(mockFS),
		WithFileLockFactory(NewMockFileLockFactory()),
		WithTimeFunc(fixedTime),
	)
	tr := adapter.Transformers()

	snap := seedSnapshot(t, tr)
	if err := adapter.Serialize(context.Background(), snap); err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	content, ok := mockFS.GetFileContent("db.json")
	if !ok {
		t.Fatal("expected db.json to exist")
	}
	if !strings.Contains(string(content), `\"$type\":\"date\"`) {
		t.Errorf("expected date envelope in file, got:\n%s", content)
	}
	if mockFS.FileExists("db.json.1.tmp") {
		t.Error("temp file should have been renamed")
	}

	loaded, err := adapter.Deserialize(context.Background())
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	want := decodeAll(t, snap, tr, "test")
	got := decodeAll(t, loaded, tr, "test")
	if diff := cmp.Diff(want, got, docComparer()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	cd, _ := loaded.Collection("test")
	if !cd.Meta.Fields["email"].Indexed {
		t.Error("unique field should load as indexed")
	}
	if !cd.Meta.Fields["at"].Default.Equal(types.Date(fixedNow)) {
		t.Errorf("default = %s, want %s", cd.Meta.Fields["at"].Default, fixedNow)
	}
	if got := cd.Meta.Fields["level"].Rules["enum"]; got == nil {
		t.Error("rules should survive the round trip")
	}
	if ids, _ := cd.Indexes.Bucket("email", mustKey(types.String("b@x.io"))); len(ids) != 1 {
		t.Errorf("index should be rebuilt on load, got %v", ids)
	}
	if !loaded.Metadata.UpdatedAt.Equal(fixedNow) {
		t.Errorf("updated_at = %v, want %v", loaded.Metadata.UpdatedAt, fixedNow)
	}
}

func TestBSONAdapterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.bson")
	adapter := NewBSONAdapter(path, WithTimeFunc(fixedTime))
	if len(adapter.Transformers()) != 0 {
		t.Fatal("BSON stores dates and blobs natively")
	}

	snap := seedSnapshot(t, nil)
	if err := adapter.Serialize(context.Background(), snap); err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	loaded, err := adapter.Deserialize(context.Background())
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	want := decodeAll(t, snap, nil, "test")
	got := decodeAll(t, loaded, nil, "test")
	if diff := cmp.Diff(want, got, docComparer()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if got[1]["blob"].Kind() != types.KindBlob {
		t.Errorf("blob kind = %v", got[1]["blob"].Kind())
	}
	cd, _ := loaded.Collection("test")
	if _, ok := cd.Meta.Fields["level"].Rules["enum"].([]interface{}); !ok {
		t.Errorf("enum rule should decode to a plain list, got %T", cd.Meta.Fields["level"].Rules["enum"])
	}
}

func TestBSONDatesKeepMilliseconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.bson")
	adapter := NewBSONAdapter(path, WithTimeFunc(fixedTime))

	precise := fixedNow.Add(1500*time.Millisecond + 123456*time.Nanosecond)
	snap := NewSnapshot(fixedNow)
	cd := NewCollectionData("dates", nil)
	cd.Documents.Put("a", types.Document{types.IDField: types.String("a"), "at": types.Date(precise)})
	snap.Put(cd)

	if err := adapter.Serialize(context.Background(), snap); err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	loaded, err := adapter.Deserialize(context.Background())
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	got := decodeAll(t, loaded, nil, "dates")[0]["at"]
	want := types.Date(precise.Truncate(time.Millisecond))
	if !got.Equal(want) {
		t.Errorf("at = %s, want %s", got, want)
	}
	if got.Equal(types.Date(precise)) {
		t.Error("sub-millisecond precision should not survive BSON")
	}
}

func TestDeserializeMissingOrEmpty(t *testing.T) {
	mockFS := NewMockFileSystem()
	adapter := NewJSONAdapter("db.json", WithFileSystem(mockFS), WithFileLockFactory(NewMockFileLockFactory()))

	snap, err := adapter.Deserialize(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("missing file: got %v, %v", snap, err)
	}

	if err := mockFS.WriteFile("db.json", nil, 0644); err != nil {
		t.Fatal(err)
	}
	snap, err = adapter.Deserialize(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("empty file: got %v, %v", snap, err)
	}

	if err := mockFS.WriteFile("db.json", []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := adapter.Deserialize(context.Background()); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestSerializeFailures(t *testing.T) {
	t.Run("write error leaves no file", func(t *testing.T) {
		mockFS := NewMockFileSystem()
		mockFS.WriteFileError = errors.New("disk full")
		adapter := NewJSONAdapter("db.json", WithFileSystem(mockFS), WithFileLockFactory(NewMockFileLockFactory()))

		err := adapter.Serialize(context.Background(), NewSnapshot(fixedNow))
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Fatalf("expected disk full error, got %v", err)
		}
		if mockFS.FileExists("db.json") {
			t.Error("no file should be published")
		}
	})

	t.Run("rename error removes temp file", func(t *testing.T) {
		mockFS := NewMockFileSystem()
		mockFS.RenameError = errors.New("cross device")
		adapter := NewJSONAdapter("db.json", WithFileSystem(mockFS), WithFileLockFactory(NewMockFileLockFactory()))

		if err := adapter.Serialize(context.Background(), NewSnapshot(fixedNow)); err == nil {
			t.Fatal("expected rename error")
		}
		if files := mockFS.Files(); len(files) != 0 {
			t.Errorf("expected no files left, got %v", files)
		}
	})

	t.Run("held lock times out", func(t *testing.T) {
		mockFS := NewMockFileSystem()
		locks := NewMockFileLockFactory()
		locks.GetLock("db.json.lock").Hold()
		adapter := NewJSONAdapter("db.json", WithFileSystem(mockFS), WithFileLockFactory(locks))

		err := adapter.Serialize(context.Background(), NewSnapshot(fixedNow))
		if err == nil || !strings.Contains(err.Error(), "failed to acquire lock") {
			t.Fatalf("expected lock error, got %v", err)
		}
		if got := locks.GetLock("db.json.lock").Attempts(); got != lockMaxRetries {
			t.Errorf("lock attempts = %d, want %d", got, lockMaxRetries)
		}
	})

	t.Run("cancelled context writes nothing", func(t *testing.T) {
		mockFS := NewMockFileSystem()
		adapter := NewJSONAdapter("db.json", WithFileSystem(mockFS), WithFileLockFactory(NewMockFileLockFactory()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := adapter.Serialize(ctx, NewSnapshot(fixedNow)); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if mockFS.Writes() != 0 {
			t.Errorf("expected no writes, got %d", mockFS.Writes())
		}
	})
}

func TestJSONTransformers(t *testing.T) {
	tr := JSONTransformers()
	at := time.Date(2023, 7, 4, 10, 30, 0, 123456789, time.UTC)

	durable, err := tr.Encode("", types.Date(at))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if durable.Kind() != types.KindString {
		t.Fatalf("durable date should be text, got %v", durable.Kind())
	}

	// Undeclared fields are recognized through Detect
	rich, err := tr.Decode("", durable)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !rich.Equal(types.Date(at)) {
		t.Errorf("decoded %s, want %s", rich, at)
	}

	// Plain strings are left alone
	plain, err := tr.Decode("", types.String("hello"))
	if err != nil || !plain.Equal(types.String("hello")) {
		t.Errorf("plain string changed: %s, %v", plain, err)
	}

	// A declared date accepts RFC 3339 text written by hand
	hand, err := tr.Decode(types.TagDate, types.String("2023-07-04T10:30:00Z"))
	if err != nil || hand.Kind() != types.KindDate {
		t.Errorf("declared date decode = %s, %v", hand, err)
	}

	blob, err := tr.Encode(types.TagBlob, types.Blob([]byte("raw")))
	if err != nil {
		t.Fatalf("blob encode failed: %v", err)
	}
	back, err := tr.Decode("", blob)
	if err != nil || !back.Equal(types.Blob([]byte("raw"))) {
		t.Errorf("blob round trip = %s, %v", back, err)
	}

	if _, err := tr.Encode(types.TagDate, types.Int(1)); err == nil {
		t.Error("encoding a number as a declared date should fail")
	}
}

func TestTable(t *testing.T) {
	table := NewTable()
	for _, id := range []string{"c", "a", "b"} {
		table.Put(id, types.Document{types.IDField: types.String(id)})
	}
	table.Put("a", types.Document{types.IDField: types.String("a"), "v": types.Int(1)})

	if diff := cmp.Diff([]string{"c", "a", "b"}, table.IDs()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if doc, _ := table.Get("a"); !doc["v"].Equal(types.Int(1)) {
		t.Error("replace should keep the new document")
	}
	if !table.Delete("a") || table.Delete("a") {
		t.Error("delete should report presence once")
	}
	if diff := cmp.Diff([]string{"c", "b"}, table.IDs()); diff != "" {
		t.Errorf("order after delete (-want +got):\n%s", diff)
	}

	visited := 0
	table.Each(func(string, types.Document) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("Each should stop early, visited %d", visited)
	}
}

func TestIndexSet(t *testing.T) {
	fields := map[string]types.FieldDescriptor{
		"email": {Unique: true},
		"tag":   {Indexed: true},
		"note":  {},
	}
	idx := NewIndexSet(fields)
	if diff := cmp.Diff([]string{"email", "tag"}, idx.Fields()); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}

	a := types.Document{"email": types.String("a"), "tag": types.String("t")}
	b := types.Document{"email": types.String("a"), "tag": types.String("t")}
	if err := idx.Add("1", a, true); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	var conflict *ConflictError
	if err := idx.Add("2", b, true); !errors.As(err, &conflict) || conflict.Holder != "1" {
		t.Fatalf("expected conflict with 1, got %v", err)
	}
	if ids, _ := idx.Bucket("tag", mustKey(types.String("t"))); len(ids) != 1 {
		t.Errorf("failed add must roll back, tag bucket = %v", ids)
	}
	if c := idx.Conflict(a, map[string]struct{}{"1": {}}); c != nil {
		t.Errorf("a document never conflicts with itself: %v", c)
	}
	if c := idx.Conflict(b, map[string]struct{}{"2": {}}); c == nil || c.Field != "email" {
		t.Errorf("expected email conflict, got %v", c)
	}
	if c := idx.Conflict(b, map[string]struct{}{"1": {}, "2": {}}); c != nil {
		t.Errorf("released holders should not conflict: %v", c)
	}

	if err := idx.Add("2", b, false); err != nil {
		t.Fatalf("unenforced add failed: %v", err)
	}
	if got := idx.Entries("email"); got != 2 {
		t.Errorf("email entries = %d, want 2", got)
	}

	idx.Remove("1", a)
	idx.Remove("2", b)
	if idx.Keys("email") != 0 || idx.Keys("tag") != 0 {
		t.Errorf("empty buckets should be dropped: %v", idx.Export())
	}

	if _, indexed := idx.Bucket("note", "s:x"); indexed {
		t.Error("note is not indexed")
	}
	if ids, indexed := idx.Bucket("email", "s:missing"); !indexed || len(ids) != 0 {
		t.Error("missing key of an indexed field is an empty bucket")
	}
}

func TestSequencerSkipsStaleTickets(t *testing.T) {
	var seq Sequencer
	first := seq.Reserve()
	second := seq.Reserve()

	var written []uint64
	write := func(ticket uint64) func() error {
		return func() error {
			written = append(written, ticket)
			return nil
		}
	}

	if skipped, err := seq.Write(second, write(second)); err != nil || skipped {
		t.Fatalf("newest ticket must be written: skipped=%v err=%v", skipped, err)
	}
	if skipped, _ := seq.Write(first, write(first)); !skipped {
		t.Error("older ticket must be skipped")
	}
	if diff := cmp.Diff([]uint64{second}, written); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentSerializeKeepsNewestSnapshot(t *testing.T) {
	mockFS := NewMockFileSystem()
	adapter := NewJSONAdapter("db.json", WithFileSystem(mockFS), WithFileLockFactory(NewMockFileLockFactory()))
	snap := NewSnapshot(fixedNow)
	cd := NewCollectionData("items", nil)
	snap.Put(cd)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_ = cd.Lock().Execute(WriteOperation, func() error {
				cd.Documents.Put(id, types.Document{types.IDField: types.String(id)})
				return nil
			})
			if err := adapter.Serialize(context.Background(), snap); err != nil {
				t.Errorf("serialize failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	loaded, err := adapter.Deserialize(context.Background())
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	got, _ := loaded.Collection("items")
	if got.Documents.Len() != 20 {
		t.Errorf("final snapshot holds %d documents, want 20", got.Documents.Len())
	}
}

func TestSlugID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSlugID()
		if err != nil {
			t.Fatal(err)
		}
		if len(id) != 22 {
			t.Fatalf("slug %q has length %d", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate slug %q", id)
		}
		seen[id] = true
	}
}

func TestSnapshotRegistry(t *testing.T) {
	snap := NewSnapshot(fixedNow)
	snap.Put(NewCollectionData("b", nil))
	cd, created := snap.Ensure("a", func() *CollectionData { return NewCollectionData("a", nil) })
	if !created || cd.Meta.Name != "a" {
		t.Fatalf("ensure should create a")
	}
	if _, created := snap.Ensure("a", nil); created {
		t.Fatal("ensure should reuse a")
	}
	if _, ok := snap.Rename("a", "b"); ok {
		t.Fatal("rename onto an existing name must fail")
	}
	if renamed, ok := snap.Rename("a", "c"); !ok || renamed.Meta.Name != "c" {
		t.Fatal("rename a -> c failed")
	}
	if diff := cmp.Diff([]string{"b", "c"}, snap.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if !snap.Remove("b") || snap.Remove("b") {
		t.Error("remove should report presence once")
	}
}

func TestTableOrdered(t *testing.T) {
	table := NewTable()
	for _, id := range []string{"z", "y", "x"} {
		table.Put(id, types.Document{types.IDField: types.String(id)})
	}
	got := table.Ordered(map[string]struct{}{"x": {}, "z": {}, "missing": {}})
	if diff := cmp.Diff([]string{"z", "x"}, got); diff != "" {
		t.Errorf("ordered mismatch (-want +got):\n%s", diff)
	}
}
