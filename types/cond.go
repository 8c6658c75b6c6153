package types

import (
	"fmt"
	"sort"
	"strings"
)

// Cond maps field names to expectations. A nil or empty Cond matches every document.
type Cond map[string]Expect

// Expect is a single field expectation. Only Eq expectations are plain scalars
// eligible for index narrowing; every other form is evaluated per document.
type Expect struct {
	op     string
	value  Value
	values []Value
	fn     func(Value) bool
}

// Eq expects the field to equal v
func Eq(v Value) Expect { return Expect{op: "eq", value: v} }

// Ne expects the field to differ from v
func Ne(v Value) Expect { return Expect{op: "ne", value: v} }

// In expects the field to equal one of vs
func In(vs ...Value) Expect { return Expect{op: "in", values: vs} }

// Gt expects the field to order after v
func Gt(v Value) Expect { return Expect{op: "gt", value: v} }

// Gte expects the field to order after or equal v
func Gte(v Value) Expect { return Expect{op: "gte", value: v} }

// Lt expects the field to order before v
func Lt(v Value) Expect { return Expect{op: "lt", value: v} }

// Lte expects the field to order before or equal v
func Lte(v Value) Expect { return Expect{op: "lte", value: v} }

// Exists expects the field to be defined (or absent when want is false)
func Exists(want bool) Expect { return Expect{op: "exists", value: Bool(want)} }

// Match expects fn to hold for the field value
func Match(fn func(Value) bool) Expect { return Expect{op: "fn", fn: fn} }

// Where is shorthand for a single-field equality condition on a plain Go value
func Where(field string, v interface{}) Cond {
	return Cond{field: Eq(MustValueOf(v))}
}

// Scalar returns the expected value when the expectation is a plain equality on an
// indexable scalar
func (e Expect) Scalar() (Value, bool) {
	if e.op != "eq" {
		return Value{}, false
	}
	if _, ok := e.value.IndexKey(); !ok {
		return Value{}, false
	}
	return e.value, true
}

// Matches evaluates the expectation against a field value
func (e Expect) Matches(v Value) bool {
	switch e.op {
	case "eq":
		return v.Equal(e.value)
	case "ne":
		return !v.Equal(e.value)
	case "in":
		for _, candidate := range e.values {
			if v.Equal(candidate) {
				return true
			}
		}
		return false
	case "gt", "gte", "lt", "lte":
		c, ok := v.Compare(e.value)
		if !ok {
			return false
		}
		switch e.op {
		case "gt":
			return c > 0
		case "gte":
			return c >= 0
		case "lt":
			return c < 0
		default:
			return c <= 0
		}
	case "exists":
		want, _ := e.value.Boolean()
		return v.IsUndefined() != want
	case "fn":
		return e.fn != nil && e.fn(v)
	}
	return false
}

// String renders the expectation for messages and logs
func (e Expect) String() string {
	switch e.op {
	case "in":
		parts := make([]string, len(e.values))
		for i, v := range e.values {
			parts[i] = v.String()
		}
		return "in(" + strings.Join(parts, ", ") + ")"
	case "fn":
		return "fn(...)"
	case "":
		return "invalid"
	}
	return fmt.Sprintf("%s(%s)", e.op, e.value)
}

// String renders the condition with fields in sorted order
func (c Cond) String() string {
	if len(c) == 0 {
		return "{}"
	}
	fields := make([]string, 0, len(c))
	for k := range c {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + c[f].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Clone returns a shallow copy that hooks may edit without touching the caller's map
func (c Cond) Clone() Cond {
	if c == nil {
		return nil
	}
	cp := make(Cond, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}
