package testutil

import (
	"context"
	"sort"
	"testing"

	"github.com/arthur-debert/noodm/noodm"
	"github.com/arthur-debert/noodm/types"
	"github.com/google/go-cmp/cmp"
)

// DocComparer compares documents by their defined values
func DocComparer() cmp.Option {
	return cmp.Comparer(func(a, b types.Document) bool { return a.Equal(b) })
}

// AssertDocumentCount checks that the slice contains the expected number of documents
func AssertDocumentCount(t *testing.T, docs []types.Document, expected int, context ...string) {
	t.Helper()
	if len(docs) != expected {
		ctx := ""
		if len(context) > 0 {
			ctx = " " + context[0]
		}
		t.Errorf("expected %d documents%s, got %d", expected, ctx, len(docs))
	}
}

// AssertDocumentExists verifies that a document with the given id is in the slice
func AssertDocumentExists(t *testing.T, docs []types.Document, id string) {
	t.Helper()
	for _, doc := range docs {
		if doc.ID() == id {
			return
		}
	}
	t.Errorf("document %s not found in results", id)
}

// AssertDocumentNotExists verifies that no document with the given id is in the slice
func AssertDocumentNotExists(t *testing.T, docs []types.Document, id string) {
	t.Helper()
	for _, doc := range docs {
		if doc.ID() == id {
			t.Errorf("document %s should not be in results", id)
			return
		}
	}
}

// AssertIndexConsistent recomputes every index of c from its documents and
// compares it with the live index
func AssertIndexConsistent(t *testing.T, c *noodm.Collection) {
	t.Helper()
	docs, err := c.Find(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to list %s: %v", c.Name(), err)
	}

	for field, desc := range c.Fields() {
		if !desc.HasIndex() || field == types.IDField {
			continue
		}
		want := make(map[string][]string)
		for _, doc := range docs {
			key, ok := doc[field].IndexKey()
			if !ok {
				continue
			}
			want[key] = append(want[key], doc.ID())
		}
		for _, ids := range want {
			sort.Strings(ids)
		}

		got := c.IndexSnapshot(field)
		if got == nil {
			got = map[string][]string{}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("index %s.%s diverges from documents (-want +got):\n%s", c.Name(), field, diff)
		}
	}
}
