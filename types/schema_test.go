package types

import (
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSchemaBuilder(t *testing.T) {
	schema := NewSchema("users").
		Field("email", NewField().Type(TagString).Unique()).
		Field("role", NewField().Type(TagString).Default(String("member")).Rule("enum", []interface{}{"member", "admin"})).
		Build()

	email := schema.Fields["email"]
	if !email.Indexed || !email.HasIndex() {
		t.Errorf("unique should imply indexed, got %+v", email)
	}
	if role := schema.Fields["role"]; !role.Default.Equal(String("member")) || role.Rules["enum"] == nil {
		t.Errorf("unexpected role descriptor %+v", role)
	}
	if err := schema.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr string
	}{
		{"empty name", Schema{}, "name cannot be empty"},
		{"empty field", Schema{Name: "c", Fields: map[string]FieldDescriptor{"": {}}}, "field name cannot be empty"},
		{"unique id", Schema{Name: "c", Fields: map[string]FieldDescriptor{IDField: {Unique: true}}}, "reserved"},
		{"unknown type", Schema{Name: "c", Fields: map[string]FieldDescriptor{"f": {Type: "uuid"}}}, "unknown type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want an error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSchemas(t *testing.T) {
	input := `schemas:
  - name: tasks
    fields:
      owner: {type: string, indexed: true}
      status:
        type: string
        default: todo
        rules:
          enum: [todo, done]
      touched: {type: date, nullable: true, onUpdate: "2024-01-01T00:00:00Z"}
      code: {type: string, unique: true}
`
	schemas, err := LoadSchemas(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadSchemas failed: %v", err)
	}
	if len(schemas) != 1 || schemas[0].Name != "tasks" {
		t.Fatalf("unexpected schemas %+v", schemas)
	}
	fields := schemas[0].Fields

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"code", "owner", "status", "touched"}, names); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if !fields["status"].Default.Equal(String("todo")) {
		t.Errorf("expected default todo, got %s", fields["status"].Default)
	}
	if !fields["code"].Indexed {
		t.Error("unique should imply indexed")
	}
	if !fields["touched"].Nullable || fields["touched"].OnUpdate.IsUndefined() {
		t.Errorf("unexpected touched descriptor %+v", fields["touched"])
	}

	empty, err := LoadSchemas(strings.NewReader(""))
	if err != nil || empty != nil {
		t.Errorf("empty input = %v, %v", empty, err)
	}
	if _, err := LoadSchemas(strings.NewReader("schemas:\n  - fields: {a: {type: string}}\n")); err == nil {
		t.Error("expected an error for a schema without a name")
	}
}

