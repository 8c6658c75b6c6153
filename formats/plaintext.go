package formats

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arthur-debert/noodm/types"
)

// PlainText format implementation
// Rendering: one "field: value" line per field, _id first, documents
// separated by a line holding only "---".
// Parsing: the same layout; values are typed by ParseValue.
var PlainText = &Format{
	Name:      "plaintext",
	Extension: ".txt",
	Render: func(w io.Writer, docs []types.Document) error {
		var result strings.Builder
		for i, doc := range docs {
			if i > 0 {
				result.WriteString("---\n")
			}
			for _, field := range columns([]types.Document{doc}) {
				v := doc[field]
				if v.IsUndefined() {
					continue
				}
				result.WriteString(field)
				result.WriteString(": ")
				result.WriteString(formatValue(v))
				result.WriteString("\n")
			}
		}
		_, err := io.WriteString(w, result.String())
		return err
	},
	Parse: func(r io.Reader) ([]types.Document, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, fmt.Errorf("empty input")
		}

		var docs []types.Document
		current := types.Document{}
		flush := func() {
			if len(current) > 0 {
				docs = append(docs, current)
			}
			current = types.Document{}
		}

		for n, line := range strings.Split(string(data), "\n") {
			if isBlankLine(line) {
				continue
			}
			if strings.TrimSpace(line) == "---" {
				flush()
				continue
			}
			parts := strings.SplitN(line, ": ", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("line %d: expected \"field: value\", got %q", n+1, line)
			}
			current[strings.TrimSpace(parts[0])] = ParseValue(strings.TrimSpace(parts[1]))
		}
		flush()
		return docs, nil
	},
}

func init() {
	mustRegister(PlainText)
}

// formatValue converts a value to its text representation
func formatValue(v types.Value) string {
	switch v.Kind() {
	case types.KindNull:
		return "null"
	case types.KindString:
		s, _ := v.Str()
		if s != "" && s == strings.TrimSpace(s) && !strings.ContainsAny(s, "\n\"") && ParseValue(s).Kind() == types.KindString {
			return s
		}
		// Quote text that would read back as another type
		return strconv.Quote(s)
	default:
		return cell(v)
	}
}

// ParseValue types a scalar written as text: null, quoted text, RFC 3339
// dates, booleans and numbers. Anything else is a string.
func ParseValue(s string) types.Value {
	if s == "null" {
		return types.Null()
	}

	// Quoted text is always a string
	if unquoted, err := strconv.Unquote(s); err == nil && strings.HasPrefix(s, `"`) {
		return types.String(unquoted)
	}

	// Try to parse as time
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return types.Date(t)
	}

	switch s {
	case "true":
		return types.Bool(true)
	case "false":
		return types.Bool(false)
	}

	// Try to parse as number
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return types.Number(f)
	}

	return types.String(s)
}
