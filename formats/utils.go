package formats

import (
	"encoding/base64"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/noodm/types"
)

// isBlankLine checks if a line contains only whitespace
func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

// columns returns the union of the documents' fields, _id first then sorted
func columns(docs []types.Document) []string {
	seen := make(map[string]bool)
	var names []string
	for _, doc := range docs {
		for field, v := range doc {
			if v.IsUndefined() || seen[field] || field == types.IDField {
				continue
			}
			seen[field] = true
			names = append(names, field)
		}
	}
	sort.Strings(names)
	return append([]string{types.IDField}, names...)
}

// cell renders a value without quoting
func cell(v types.Value) string {
	switch v.Kind() {
	case types.KindUndefined:
		return ""
	case types.KindString:
		s, _ := v.Str()
		return s
	case types.KindDate:
		t, _ := v.Time()
		return t.UTC().Format(time.RFC3339Nano)
	case types.KindBlob:
		b, _ := v.Bytes()
		return base64.StdEncoding.EncodeToString(b)
	default:
		return v.String()
	}
}
