package types

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Validator is a named predicate over a field value
type Validator struct {
	Name  string
	Check func(Value) bool
}

// Check builds a Validator
func Check(name string, fn func(Value) bool) Validator {
	return Validator{Name: name, Check: fn}
}

// FieldDescriptor defines the rules attached to one field of a collection
type FieldDescriptor struct {
	// Type is an optional type tag ("string", "number", "bool", "date", "blob").
	// Empty means any type is accepted and transformers use the runtime tag.
	Type string `yaml:"type,omitempty"`

	// Unique rejects two documents sharing a non-null value. Implies Indexed.
	Unique bool `yaml:"unique,omitempty"`

	// Indexed maintains a value -> ids index used to narrow equality queries
	Indexed bool `yaml:"indexed,omitempty"`

	// Nullable allows null or absent values
	Nullable bool `yaml:"nullable,omitempty"`

	// Default fills the field on insert when absent
	Default Value `yaml:"-"`

	// OnUpdate fills the field on update when still absent after the setter
	OnUpdate Value `yaml:"-"`

	// Validators are custom predicates; all must hold
	Validators []Validator `yaml:"-"`

	// Rules holds serializable named validators (enum, pattern, min, max, minLength, maxLength)
	Rules map[string]interface{} `yaml:"rules,omitempty"`
}

// Normalized returns a copy with Unique implying Indexed
func (f FieldDescriptor) Normalized() FieldDescriptor {
	if f.Unique {
		f.Indexed = true
	}
	return f
}

// HasIndex reports whether the field carries an index
func (f FieldDescriptor) HasIndex() bool {
	return f.Indexed || f.Unique
}

// Coerce converts v to the declared type tag where a lossless text form exists:
// RFC 3339 text becomes a date, base64 text becomes a blob. Other values pass through
// unchanged and are left to the type validator.
func Coerce(v Value, tag string) (Value, error) {
	s, isString := v.Str()
	if !isString {
		return v, nil
	}
	switch tag {
	case TagDate:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return v, fmt.Errorf("cannot coerce %q to date: %w", s, err)
		}
		return Date(t), nil
	case TagBlob:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return v, fmt.Errorf("cannot coerce %q to blob: %w", s, err)
		}
		return Blob(b), nil
	}
	return v, nil
}
