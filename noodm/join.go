package noodm

import (
	"github.com/arthur-debert/noodm/types"
)

// JoinSide is one input of Join
type JoinSide struct {
	Docs []types.Document
	Key  string

	// KeepUnkeyed keeps rows whose key is absent or not indexable, each as
	// its own unmatched row
	KeepUnkeyed bool
}

// JoinRow pairs the rows sharing a key. Either side is nil for unmatched rows.
type JoinRow struct {
	Left  types.Document
	Right types.Document
}

// Join is an outer join of two document lists on their key fields. There is
// one row per distinct key; when a side repeats a key its last document wins.
// Rows follow the first appearance of their key: left keys first, then keys
// only present on the right.
func Join(left, right JoinSide) []JoinRow {
	var rows []*JoinRow
	byKey := make(map[string]*JoinRow)

	for _, doc := range left.Docs {
		key, ok := doc[left.Key].IndexKey()
		if !ok {
			if left.KeepUnkeyed {
				rows = append(rows, &JoinRow{Left: doc})
			}
			continue
		}
		if row, exists := byKey[key]; exists {
			row.Left = doc
			continue
		}
		row := &JoinRow{Left: doc}
		byKey[key] = row
		rows = append(rows, row)
	}

	for _, doc := range right.Docs {
		key, ok := doc[right.Key].IndexKey()
		if !ok {
			if right.KeepUnkeyed {
				rows = append(rows, &JoinRow{Right: doc})
			}
			continue
		}
		if row, exists := byKey[key]; exists {
			row.Right = doc
			continue
		}
		row := &JoinRow{Right: doc}
		byKey[key] = row
		rows = append(rows, row)
	}

	out := make([]JoinRow, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out
}

// JoinMap joins left and right and maps every row through fn
func JoinMap[T any](left, right JoinSide, fn func(l, r types.Document) T) []T {
	rows := Join(left, right)
	out := make([]T, len(rows))
	for i, row := range rows {
		out[i] = fn(row.Left, row.Right)
	}
	return out
}

// Merge combines a joined row into one document. Left fields win on conflict.
func Merge(l, r types.Document) types.Document {
	out := make(types.Document, len(l)+len(r))
	for k, v := range r {
		out[k] = v.Clone()
	}
	for k, v := range l {
		out[k] = v.Clone()
	}
	return out
}
