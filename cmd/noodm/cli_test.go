package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arthur-debert/noodm/formats"
	"github.com/arthur-debert/noodm/noodm"
	"github.com/arthur-debert/noodm/types"
	"github.com/google/go-cmp/cmp"
)

const usersSchema = `schemas:
  - name: users
    fields:
      email:
        type: string
        unique: true
        rules:
          pattern: "^[^@]+@[^@]+$"
      name:
        type: string
        nullable: true
      joined:
        type: date
        nullable: true
`

// isolate points the config and log locations at temporary directories
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("NOODM_CONFIG", "")
	t.Setenv("NOODM_DB", "")
	t.Setenv("NOODM_FORMAT", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := newCLI(&out, &errOut).execute(context.Background(), args)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("noodm %s failed: %v", strings.Join(args, " "), err)
	}
	return out
}

func parseOutput(t *testing.T, out string) []types.Document {
	t.Helper()
	docs, err := formats.JSON.Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	return docs
}

func ids(docs []types.Document) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.ID())
	}
	return out
}

func writeSchema(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "schema.yaml")
	if err := os.WriteFile(path, []byte(usersSchema), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInsertAndFind(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")

	out := mustRun(t, "--db", db, "insert", "tasks",
		`{"_id": "t1", "title": "parser", "owner": "ada", "points": 3}`,
		`[{"_id": "t2", "title": "tests", "owner": "ada", "points": 5}, {"_id": "t3", "title": "docs", "owner": "grace"}]`)
	if diff := cmp.Diff("t1\nt2\nt3\n", out); diff != "" {
		t.Errorf("inserted ids mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name  string
		where []string
		want  []string
	}{
		{"all", nil, []string{"t1", "t2", "t3"}},
		{"equality", []string{"owner=ada"}, []string{"t1", "t2"}},
		{"comparison", []string{"points>=4"}, []string{"t2"}},
		{"combined", []string{"owner=ada", "points<4"}, []string{"t1"}},
		{"not equal", []string{"owner!=ada"}, []string{"t3"}},
		{"by id", []string{"_id=t3"}, []string{"t3"}},
		{"no match", []string{"owner=linus"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"--db", db, "find", "tasks"}
			for _, w := range tt.where {
				args = append(args, "--where", w)
			}
			docs := parseOutput(t, mustRun(t, args...))
			if diff := cmp.Diff(tt.want, ids(docs)); diff != "" {
				t.Errorf("find mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("count", func(t *testing.T) {
		out := mustRun(t, "--db", db, "find", "tasks", "--where", "owner=ada", "--count")
		if out != "2\n" {
			t.Errorf("expected 2, got %q", out)
		}
	})
}

func TestInsertFromFile(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")
	input := filepath.Join(dir, "people.yaml")
	content := "- _id: p1\n  name: Ada\n- _id: p2\n  name: Grace\n"
	if err := os.WriteFile(input, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	mustRun(t, "--db", db, "insert", "people", "--file", input)
	docs := parseOutput(t, mustRun(t, "--db", db, "find", "people"))
	if diff := cmp.Diff([]string{"p1", "p2"}, ids(docs)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	_, err := run(t, "--db", db, "insert", "people", "--file", filepath.Join(dir, "notes.md"))
	var cliErr *CLIError
	if !errors.As(err, &cliErr) {
		t.Errorf("expected a CLIError for an unparseable extension, got %v", err)
	}
}

func TestSchemaRules(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")
	schema := writeSchema(t, dir)

	mustRun(t, "--db", db, "--schema", schema, "insert", "users",
		`{"_id": "u1", "email": "ada@example.com", "joined": "2024-01-15T10:00:00Z"}`)

	t.Run("unique field", func(t *testing.T) {
		_, err := run(t, "--db", db, "--schema", schema, "insert", "users", `{"email": "ada@example.com"}`)
		if !errors.Is(err, noodm.ErrUniquenessViolation) {
			t.Fatalf("expected ErrUniquenessViolation, got %v", err)
		}
		var cliErr *CLIError
		if !errors.As(err, &cliErr) || cliErr.Operation != "insert documents" {
			t.Errorf("expected an insert CLIError, got %v", err)
		}
		if !strings.Contains(err.Error(), "field email") {
			t.Errorf("expected the field in the message, got %q", err.Error())
		}
	})

	t.Run("rules persist without schema flag", func(t *testing.T) {
		_, err := run(t, "--db", db, "insert", "users", `{"email": "not-an-email"}`)
		if !errors.Is(err, noodm.ErrConstraintViolation) {
			t.Errorf("expected ErrConstraintViolation, got %v", err)
		}
	})

	t.Run("declared date is typed", func(t *testing.T) {
		docs := parseOutput(t, mustRun(t, "--db", db, "find", "users", "--where", "joined<2024-02-01T00:00:00Z"))
		if diff := cmp.Diff([]string{"u1"}, ids(docs)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("declared string stays text", func(t *testing.T) {
		mustRun(t, "--db", db, "insert", "users", `{"_id": "u2", "email": "g@example.com", "name": "42"}`)
		docs := parseOutput(t, mustRun(t, "--db", db, "find", "users", "--where", "name=42"))
		if diff := cmp.Diff([]string{"u2"}, ids(docs)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestGet(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")
	mustRun(t, "--db", db, "insert", "notes", `{"_id": "n1", "text": "hello"}`)

	docs := parseOutput(t, mustRun(t, "--db", db, "get", "notes", "n1"))
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %v", docs)
	}
	if text, _ := docs[0]["text"].Str(); text != "hello" {
		t.Errorf("unexpected document %v", docs[0])
	}

	_, err := run(t, "--db", db, "get", "notes", "missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected a not found error, got %v", err)
	}

	_, err = run(t, "--db", db, "get", "ghosts", "n1")
	if err == nil || !strings.Contains(err.Error(), `collection "ghosts" not found`) {
		t.Errorf("expected a missing collection error, got %v", err)
	}
	if _, statErr := os.Stat(db); statErr != nil {
		t.Fatal(statErr)
	}
	names := parseOutput(t, mustRun(t, "--db", db, "collections"))
	if diff := cmp.Diff([]string{"notes"}, ids(names)); diff != "" {
		t.Errorf("reads must not create collections (-want +got):\n%s", diff)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")
	mustRun(t, "--db", db, "insert", "tasks",
		`[{"_id": "t1", "status": "todo", "tag": "x"}, {"_id": "t2", "status": "todo"}, {"_id": "t3", "status": "done"}]`)

	out := mustRun(t, "--db", db, "update", "tasks", "--where", "status=todo", "--set", "status=doing", "--unset", "tag")
	if out != "updated 2\n" {
		t.Errorf("unexpected output %q", out)
	}
	docs := parseOutput(t, mustRun(t, "--db", db, "find", "tasks", "--where", "status=doing"))
	if diff := cmp.Diff([]string{"t1", "t2"}, ids(docs)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if !docs[0]["tag"].IsUndefined() {
		t.Errorf("expected tag removed, got %s", docs[0]["tag"])
	}

	if _, err := run(t, "--db", db, "update", "tasks", "--where", "status=doing"); err == nil {
		t.Error("expected an error for an update without assignments")
	}
	if _, err := run(t, "--db", db, "delete", "tasks"); err == nil {
		t.Error("expected an error for a delete without conditions")
	}

	out = mustRun(t, "--db", db, "delete", "tasks", "--where", "status=done")
	if out != "deleted 1\n" {
		t.Errorf("unexpected output %q", out)
	}
	out = mustRun(t, "--db", db, "delete", "tasks", "--all")
	if out != "deleted 2\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCollectionCommands(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")
	mustRun(t, "--db", db, "insert", "a", `{"n": 1}`, `{"n": 2}`)
	mustRun(t, "--db", db, "insert", "b", `{"n": 3}`)

	rows := parseOutput(t, mustRun(t, "--db", db, "collections"))
	if diff := cmp.Diff([]string{"a", "b"}, ids(rows)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if n, _ := rows[0]["documents"].Num(); n != 2 {
		t.Errorf("expected 2 documents in a, got %s", rows[0]["documents"])
	}

	mustRun(t, "--db", db, "rename", "a", "c")
	if _, err := run(t, "--db", db, "rename", "b", "c"); err == nil {
		t.Error("expected renaming onto an existing collection to fail")
	}
	mustRun(t, "--db", db, "drop", "b")

	_, err := run(t, "--db", db, "drop", "b")
	if !errors.Is(err, noodm.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}

	rows = parseOutput(t, mustRun(t, "--db", db, "collections"))
	if diff := cmp.Diff([]string{"c"}, ids(rows)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestInspect(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")
	schema := writeSchema(t, dir)
	mustRun(t, "--db", db, "--schema", schema, "insert", "users",
		`{"email": "ada@example.com"}`, `{"email": "grace@example.com"}`)

	rows := parseOutput(t, mustRun(t, "--db", db, "inspect", "users"))
	byField := make(map[string]types.Document)
	for _, row := range rows {
		byField[row.ID()] = row
	}
	email, ok := byField["email"]
	if !ok {
		t.Fatalf("expected an email row, got %v", ids(rows))
	}
	if unique, _ := email["unique"].Boolean(); !unique {
		t.Errorf("expected email unique, got %v", email)
	}
	if keys, _ := email["keys"].Num(); keys != 2 {
		t.Errorf("expected 2 index keys, got %s", email["keys"])
	}
	if rules, _ := email["rules"].Str(); !strings.HasPrefix(rules, "pattern=") {
		t.Errorf("expected the pattern rule, got %q", rules)
	}
	if !byField["name"]["keys"].IsUndefined() {
		t.Errorf("unindexed field should have no key count, got %v", byField["name"])
	}
}

func TestMigrate(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")
	mustRun(t, "--db", db, "insert", "people",
		`[{"_id": "p1", "nick": "ada"}, {"_id": "p2", "nick": "grace"}, {"_id": "p3"}]`)

	out := mustRun(t, "--db", db, "migrate", "rename-field", "people", "nick", "handle", "--dry-run")
	if !strings.Contains(out, "Modified: 2/3 documents") || !strings.Contains(out, "DRY RUN") {
		t.Errorf("unexpected dry run output %q", out)
	}
	docs := parseOutput(t, mustRun(t, "--db", db, "find", "people", "--where", "nick=ada"))
	if len(docs) != 1 {
		t.Fatalf("dry run changed documents: %v", docs)
	}

	mustRun(t, "--db", db, "migrate", "rename-field", "people", "nick", "handle")
	docs = parseOutput(t, mustRun(t, "--db", db, "find", "people", "--where", "handle=ada"))
	if diff := cmp.Diff([]string{"p1"}, ids(docs)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	out = mustRun(t, "--db", db, "migrate", "add-field", "people", "handle", "--value", "anon")
	if !strings.Contains(out, "Modified: 1/3 documents") {
		t.Errorf("unexpected output %q", out)
	}
	docs = parseOutput(t, mustRun(t, "--db", db, "get", "people", "p3"))
	if handle, _ := docs[0]["handle"].Str(); handle != "anon" {
		t.Errorf("expected the added field, got %v", docs[0])
	}

	mustRun(t, "--db", db, "insert", "people", `{"_id": "p4", "nick": "linus", "handle": "torvalds"}`)
	if _, err := run(t, "--db", db, "migrate", "rename-field", "people", "nick", "handle"); err == nil {
		t.Error("expected a rename onto an existing field to fail")
	}

	mustRun(t, "--db", db, "migrate", "remove-field", "people", "handle")
	n := mustRun(t, "--db", db, "find", "people", "--where", "handle=anon", "--count")
	if n != "0\n" {
		t.Errorf("expected the field removed everywhere, got %q", n)
	}
}

func TestBackends(t *testing.T) {
	for _, ext := range []string{".json", ".bson", ".db"} {
		t.Run(ext, func(t *testing.T) {
			dir := isolate(t)
			db := filepath.Join(dir, "app"+ext)
			mustRun(t, "--db", db, "insert", "events",
				`{"_id": "e1", "at": "2024-03-01T09:00:00Z", "size": 2}`)
			docs := parseOutput(t, mustRun(t, "--db", db, "find", "events", "--where", "size=2"))
			if diff := cmp.Diff([]string{"e1"}, ids(docs)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnvironmentAndConfigFile(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "env.json")

	t.Setenv("NOODM_DB", db)
	mustRun(t, "insert", "c", `{"_id": "x"}`)
	if _, err := os.Stat(db); err != nil {
		t.Fatalf("expected NOODM_DB to select the database: %v", err)
	}

	config := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(config, []byte("db: "+db+"\nformat: table\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOODM_DB", "")
	t.Setenv("NOODM_CONFIG", config)
	out := mustRun(t, "find", "c")
	if !strings.HasPrefix(out, "ID") {
		t.Errorf("expected table output from the config file, got %q", out)
	}

	out = mustRun(t, "--format", "json", "find", "c")
	if diff := cmp.Diff([]string{"x"}, ids(parseOutput(t, out))); diff != "" {
		t.Errorf("flags should override the config file (-want +got):\n%s", diff)
	}
}

func TestLogFile(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")
	mustRun(t, "--db", db, "--log-level", "debug", "insert", "c", `{}`)

	data, err := os.ReadFile(filepath.Join(dir, "cache", "noodm", "noodm.log"))
	if err != nil {
		t.Fatalf("expected a log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"command started"`) {
		t.Errorf("expected JSON log lines, got %s", data)
	}

	if _, err := run(t, "--db", db, "--log-level", "loud", "collections"); err == nil {
		t.Error("expected an invalid log level to fail")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         cliConfig
		wantBackend string
		wantErr     bool
	}{
		{"json by default", cliConfig{DB: "x", Format: "json"}, backendJSON, false},
		{"bson extension", cliConfig{DB: "x.bson", Format: "json"}, backendBSON, false},
		{"sqlite extension", cliConfig{DB: "x.sqlite", Format: "json"}, backendSQLite, false},
		{"explicit backend wins", cliConfig{DB: "x.json", Backend: "BSON", Format: "json"}, backendBSON, false},
		{"missing db", cliConfig{Format: "json"}, backendJSON, true},
		{"unknown backend", cliConfig{DB: "x", Backend: "redis", Format: "json"}, "redis", true},
		{"dynamodb needs a table", cliConfig{DB: "x", Backend: "dynamodb", Format: "json"}, backendDynamo, true},
		{"dynamodb", cliConfig{DB: "x", Backend: "dynamodb", DynamoTable: "t", Format: "json"}, backendDynamo, false},
		{"unknown format", cliConfig{DB: "x", Format: "xml"}, backendJSON, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.backend(); got != tt.wantBackend {
				t.Errorf("backend() = %q, want %q", got, tt.wantBackend)
			}
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cliErr *CLIError
				if !errors.As(err, &cliErr) || len(cliErr.Suggestions) == 0 {
					t.Errorf("expected a CLIError with suggestions, got %v", err)
				}
			}
		})
	}
}

func TestSearchCommand(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "app.json")
	mustRun(t, "--db", db, "insert", "notes",
		`[{"_id": "n1", "title": "Weekly meeting", "kind": "work"}, {"_id": "n2", "title": "Meeting prep", "kind": "work"}, {"_id": "n3", "title": "Groceries", "kind": "home"}]`)

	docs := parseOutput(t, mustRun(t, "--db", db, "search", "notes", "meeting", "--highlight"))
	if diff := cmp.Diff([]string{"n2", "n1"}, ids(docs)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if title, _ := docs[0]["title"].Str(); title != "**Meeting** prep" {
		t.Errorf("expected a highlighted title, got %q", title)
	}
	if score, _ := docs[0]["_score"].Num(); score != 0.8 {
		t.Errorf("expected score 0.8, got %v", score)
	}

	docs = parseOutput(t, mustRun(t, "--db", db, "search", "notes", "o", "--where", "kind=home", "--limit", "1"))
	if diff := cmp.Diff([]string{"n3"}, ids(docs)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}
