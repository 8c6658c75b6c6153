package validation

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/arthur-debert/noodm/types"
)

// Violation describes the first validator that rejected a field value
type Violation struct {
	Field string
	Value types.Value
	Rule  string
}

// Error implements the error interface
func (v *Violation) Error() string {
	return fmt.Sprintf("field %q rejected %s (%s)", v.Field, v.Value, v.Rule)
}

// Field runs every validator that applies to one field value, in order:
// nullability, declared type, custom validators, compiled rules, then the adapter
// constraints registered for the value's type tag. The first failure is returned.
func Field(name string, desc types.FieldDescriptor, rules []types.Validator, adapterConstraints map[string][]types.Validator, v types.Value) *Violation {
	if v.IsNil() {
		if desc.Nullable || name == types.IDField {
			return nil
		}
		return &Violation{Field: name, Value: v, Rule: "required"}
	}

	if desc.Type != "" && v.Tag() != desc.Type {
		return &Violation{Field: name, Value: v, Rule: "type " + desc.Type}
	}

	for _, check := range desc.Validators {
		if check.Check != nil && !check.Check(v) {
			return &Violation{Field: name, Value: v, Rule: ruleName(check.Name)}
		}
	}

	for _, check := range rules {
		if !check.Check(v) {
			return &Violation{Field: name, Value: v, Rule: check.Name}
		}
	}

	tag := desc.Type
	if tag == "" {
		tag = v.Tag()
	}
	for _, check := range adapterConstraints[tag] {
		if check.Check != nil && !check.Check(v) {
			return &Violation{Field: name, Value: v, Rule: "adapter " + ruleName(check.Name)}
		}
	}

	return nil
}

// Document validates every declared field of doc plus the adapter constraints of
// undeclared fields. Fields are visited in sorted order so the reported violation
// is deterministic.
func Document(doc types.Document, fields map[string]types.FieldDescriptor, compiled map[string][]types.Validator, adapterConstraints map[string][]types.Validator) *Violation {
	names := make(map[string]struct{}, len(doc)+len(fields))
	for k := range doc {
		names[k] = struct{}{}
	}
	for k := range fields {
		names[k] = struct{}{}
	}
	ordered := make([]string, 0, len(names))
	for k := range names {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		desc, declared := fields[name]
		v := doc[name]
		if !declared {
			if v.IsNil() {
				continue
			}
			// Undeclared fields only answer to adapter constraints
			desc = types.FieldDescriptor{Nullable: true}
		}
		if violation := Field(name, desc, compiled[name], adapterConstraints, v); violation != nil {
			return violation
		}
	}
	return nil
}

// ValidateSchema checks a schema and compiles its rules
func ValidateSchema(schema types.Schema) (map[string][]types.Validator, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	compiled := make(map[string][]types.Validator, len(schema.Fields))
	for name, desc := range schema.Fields {
		if IsReservedFieldName(name) && name != types.IDField {
			return nil, fmt.Errorf("schema %s: '%s' is a reserved field name", schema.Name, name)
		}
		rules, err := Compile(desc.Rules)
		if err != nil {
			return nil, fmt.Errorf("schema %s: field %s: %w", schema.Name, name, err)
		}
		if len(rules) > 0 {
			compiled[name] = rules
		}
	}
	return compiled, nil
}

// IsReservedFieldName checks if a field name is reserved by the store.
// Names starting with "$" would collide with the transformer envelope.
func IsReservedFieldName(name string) bool {
	return name == types.IDField || (len(name) > 0 && name[0] == '$')
}

// Compile turns serializable named rules into validators, in sorted rule order
func Compile(rules map[string]interface{}) ([]types.Validator, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(rules))
	for k := range rules {
		names = append(names, k)
	}
	sort.Strings(names)

	validators := make([]types.Validator, 0, len(names))
	for _, name := range names {
		v, err := compileRule(name, rules[name])
		if err != nil {
			return nil, err
		}
		validators = append(validators, v)
	}
	return validators, nil
}

func compileRule(name string, param interface{}) (types.Validator, error) {
	switch name {
	case "enum":
		items, ok := param.([]interface{})
		if !ok {
			if strs, isStrings := param.([]string); isStrings {
				for _, s := range strs {
					items = append(items, s)
				}
				ok = true
			}
		}
		if !ok || len(items) == 0 {
			return types.Validator{}, fmt.Errorf("rule enum: expected a non-empty list, got %T", param)
		}
		allowed := make([]types.Value, 0, len(items))
		for _, item := range items {
			v, err := types.ValueOf(item)
			if err != nil {
				return types.Validator{}, fmt.Errorf("rule enum: %w", err)
			}
			allowed = append(allowed, v)
		}
		return types.Check("enum", func(v types.Value) bool {
			for _, a := range allowed {
				if v.Equal(a) {
					return true
				}
			}
			return false
		}), nil

	case "pattern":
		expr, ok := param.(string)
		if !ok {
			return types.Validator{}, fmt.Errorf("rule pattern: expected a string, got %T", param)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return types.Validator{}, fmt.Errorf("rule pattern: %w", err)
		}
		return types.Check("pattern", func(v types.Value) bool {
			s, isString := v.Str()
			return isString && re.MatchString(s)
		}), nil

	case "min", "max":
		bound, err := boundValue(param)
		if err != nil {
			return types.Validator{}, fmt.Errorf("rule %s: %w", name, err)
		}
		wantMin := name == "min"
		return types.Check(name, func(v types.Value) bool {
			c, ok := v.Compare(bound)
			if !ok {
				return false
			}
			if wantMin {
				return c >= 0
			}
			return c <= 0
		}), nil

	case "minLength", "maxLength":
		n, err := boundValue(param)
		if err != nil {
			return types.Validator{}, fmt.Errorf("rule %s: %w", name, err)
		}
		limit, isNumber := n.Num()
		if !isNumber {
			return types.Validator{}, fmt.Errorf("rule %s: expected a number", name)
		}
		wantMin := name == "minLength"
		return types.Check(name, func(v types.Value) bool {
			var length int
			if s, ok := v.Str(); ok {
				length = len([]rune(s))
			} else if b, ok := v.Bytes(); ok {
				length = len(b)
			} else {
				return false
			}
			if wantMin {
				return float64(length) >= limit
			}
			return float64(length) <= limit
		}), nil
	}
	return types.Validator{}, fmt.Errorf("unknown rule %q", name)
}

// boundValue converts a rule parameter; RFC 3339 text becomes a date bound
func boundValue(param interface{}) (types.Value, error) {
	if s, ok := param.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return types.Date(t), nil
		}
	}
	v, err := types.ValueOf(param)
	if err != nil {
		return types.Value{}, err
	}
	if _, ok := v.IndexKey(); !ok {
		return types.Value{}, fmt.Errorf("bound %v is not comparable", param)
	}
	return v, nil
}

func ruleName(name string) string {
	if name == "" {
		return "custom"
	}
	return name
}
