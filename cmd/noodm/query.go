package main

import (
	"strconv"
	"strings"

	"github.com/arthur-debert/noodm/formats"
	"github.com/arthur-debert/noodm/noodm"
	"github.com/arthur-debert/noodm/types"
)

// Comparison operators accepted in --where, longest first
var whereOperators = []string{"!=", ">=", "<=", "=", ">", "<"}

// parseWhere turns field<op>value clauses into a condition. Values are typed
// from the declared field type when known, otherwise from their text.
func parseWhere(operation string, clauses []string, fields map[string]types.FieldDescriptor) (types.Cond, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	cond := make(types.Cond, len(clauses))
	for _, clause := range clauses {
		i := strings.IndexAny(clause, "!=<>")
		if i <= 0 {
			return nil, NewValidationError(operation, "condition", clause, CommonSuggestions.CheckWhere)
		}
		field, rest := strings.TrimSpace(clause[:i]), clause[i:]

		var op string
		for _, candidate := range whereOperators {
			if strings.HasPrefix(rest, candidate) {
				op = candidate
				break
			}
		}
		if op == "" {
			return nil, NewValidationError(operation, "condition", clause, CommonSuggestions.CheckWhere)
		}
		if _, dup := cond[field]; dup {
			return nil, NewValidationError(operation, "condition", clause,
				"Give each field a single condition")
		}

		v := typedValue(fields, field, strings.TrimSpace(rest[len(op):]))
		switch op {
		case "=":
			cond[field] = types.Eq(v)
		case "!=":
			cond[field] = types.Ne(v)
		case ">":
			cond[field] = types.Gt(v)
		case ">=":
			cond[field] = types.Gte(v)
		case "<":
			cond[field] = types.Lt(v)
		case "<=":
			cond[field] = types.Lte(v)
		}
	}
	return cond, nil
}

// parseSet builds a setter from field=value assignments and fields to unset
func parseSet(operation string, assignments, unset []string, fields map[string]types.FieldDescriptor) (noodm.Set, error) {
	set := make(noodm.Set, len(assignments)+len(unset))
	for _, assignment := range assignments {
		field, raw, ok := strings.Cut(assignment, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, NewValidationError(operation, "assignment", assignment, "Use field=value")
		}
		set[field] = typedValue(fields, field, raw)
	}
	for _, field := range unset {
		set[field] = types.Undefined()
	}
	if len(set) == 0 {
		return nil, NewValidationError(operation, "update", "",
			"Pass at least one --set field=value or --unset field")
	}
	return set, nil
}

// typedValue reads raw as the declared type of field. Identifiers and
// declared strings stay text.
func typedValue(fields map[string]types.FieldDescriptor, field, raw string) types.Value {
	declared := fields[field].Type
	if field == types.IDField || declared == types.TagString {
		if unquoted, err := strconv.Unquote(raw); err == nil && strings.HasPrefix(raw, `"`) {
			return types.String(unquoted)
		}
		return types.String(raw)
	}
	v := formats.ParseValue(raw)
	if declared != "" {
		if coerced, err := types.Coerce(v, declared); err == nil {
			return coerced
		}
	}
	return v
}
