package types

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Schema declares a collection and the descriptors of its known fields.
// Fields not listed are accepted without rules.
type Schema struct {
	Name   string
	Fields map[string]FieldDescriptor
}

// knownTags lists the accepted field type tags
var knownTags = map[string]bool{
	"":        true,
	TagString: true,
	TagNumber: true,
	TagBool:   true,
	TagDate:   true,
	TagBlob:   true,
}

// Validate checks the schema for consistency
func (s Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema name cannot be empty")
	}
	for name, f := range s.Fields {
		if name == "" {
			return fmt.Errorf("schema %s: field name cannot be empty", s.Name)
		}
		if name == IDField && (f.Unique || f.Indexed || f.Default.Kind() != KindUndefined) {
			return fmt.Errorf("schema %s: %s is reserved and cannot carry index or default rules", s.Name, IDField)
		}
		if !knownTags[f.Type] {
			return fmt.Errorf("schema %s: field %s has unknown type %q", s.Name, name, f.Type)
		}
	}
	return nil
}

// SchemaBuilder assembles a Schema field by field
type SchemaBuilder struct {
	schema Schema
}

// NewSchema starts a schema declaration for the named collection
func NewSchema(name string) *SchemaBuilder {
	return &SchemaBuilder{schema: Schema{Name: name, Fields: make(map[string]FieldDescriptor)}}
}

// Field adds or replaces a field declaration
func (b *SchemaBuilder) Field(name string, f *FieldBuilder) *SchemaBuilder {
	b.schema.Fields[name] = f.Build()
	return b
}

// Build returns the declared schema
func (b *SchemaBuilder) Build() Schema {
	fields := make(map[string]FieldDescriptor, len(b.schema.Fields))
	for k, v := range b.schema.Fields {
		fields[k] = v
	}
	return Schema{Name: b.schema.Name, Fields: fields}
}

// FieldBuilder assembles a FieldDescriptor
type FieldBuilder struct {
	desc FieldDescriptor
}

// NewField starts a field declaration. Fields are non-nullable unless Nullable is called.
func NewField() *FieldBuilder {
	return &FieldBuilder{}
}

// Type sets the declared type tag
func (b *FieldBuilder) Type(tag string) *FieldBuilder {
	b.desc.Type = tag
	return b
}

// Unique marks the field unique (and indexed)
func (b *FieldBuilder) Unique() *FieldBuilder {
	b.desc.Unique = true
	b.desc.Indexed = true
	return b
}

// Indexed maintains an index on the field
func (b *FieldBuilder) Indexed() *FieldBuilder {
	b.desc.Indexed = true
	return b
}

// Nullable allows null or absent values
func (b *FieldBuilder) Nullable() *FieldBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the value filled on insert
func (b *FieldBuilder) Default(v Value) *FieldBuilder {
	b.desc.Default = v
	return b
}

// OnUpdate sets the value filled on update
func (b *FieldBuilder) OnUpdate(v Value) *FieldBuilder {
	b.desc.OnUpdate = v
	return b
}

// Validate appends a custom validator
func (b *FieldBuilder) Validate(name string, fn func(Value) bool) *FieldBuilder {
	b.desc.Validators = append(b.desc.Validators, Check(name, fn))
	return b
}

// Rule attaches a named, serializable validator such as "enum" or "max"
func (b *FieldBuilder) Rule(name string, param interface{}) *FieldBuilder {
	if b.desc.Rules == nil {
		b.desc.Rules = make(map[string]interface{})
	}
	b.desc.Rules[name] = param
	return b
}

// Build returns the descriptor
func (b *FieldBuilder) Build() FieldDescriptor {
	d := b.desc
	d.Validators = append([]Validator(nil), b.desc.Validators...)
	if b.desc.Rules != nil {
		d.Rules = make(map[string]interface{}, len(b.desc.Rules))
		for k, v := range b.desc.Rules {
			d.Rules[k] = v
		}
	}
	return d.Normalized()
}

// schemaFile is the YAML layout accepted by LoadSchemas
type schemaFile struct {
	Schemas []struct {
		Name   string               `yaml:"name"`
		Fields map[string]fieldYAML `yaml:"fields"`
	} `yaml:"schemas"`
}

type fieldYAML struct {
	FieldDescriptor `yaml:",inline"`
	Default         interface{} `yaml:"default"`
	OnUpdate        interface{} `yaml:"onUpdate"`
}

// LoadSchemas parses a YAML schema file:
//
//	schemas:
//	  - name: users
//	    fields:
//	      email: {type: string, unique: true, rules: {pattern: "^.+@.+$"}}
//	      age:   {type: number, nullable: true, default: 18}
func LoadSchemas(r io.Reader) ([]Schema, error) {
	var file schemaFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	schemas := make([]Schema, 0, len(file.Schemas))
	for _, s := range file.Schemas {
		schema := Schema{Name: s.Name, Fields: make(map[string]FieldDescriptor, len(s.Fields))}
		for name, fy := range s.Fields {
			desc := fy.FieldDescriptor
			if fy.Default != nil {
				v, err := ValueOf(fy.Default)
				if err != nil {
					return nil, fmt.Errorf("schema %s: field %s default: %w", s.Name, name, err)
				}
				desc.Default = v
			}
			if fy.OnUpdate != nil {
				v, err := ValueOf(fy.OnUpdate)
				if err != nil {
					return nil, fmt.Errorf("schema %s: field %s onUpdate: %w", s.Name, name, err)
				}
				desc.OnUpdate = v
			}
			schema.Fields[name] = desc.Normalized()
		}
		if err := schema.Validate(); err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}
