package search

import (
	"context"
	"errors"
	"testing"

	"github.com/arthur-debert/noodm/noodm/testutil"
	"github.com/arthur-debert/noodm/types"
	"github.com/google/go-cmp/cmp"
)

func resultIDs(results []Result) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Document.ID())
	}
	return ids
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(NewMockDocumentProvider(SampleDocuments()))

	tests := []struct {
		name    string
		options Options
		want    []string
	}{
		{
			name:    "empty query",
			options: Options{Query: ""},
			want:    []string{},
		},
		{
			name:    "case insensitive across fields",
			options: Options{Query: "meeting"},
			want:    []string{"4", "2", "3", "1"},
		},
		{
			name:    "case sensitive",
			options: Options{Query: "MEETING", CaseSensitive: true},
			want:    []string{"4"},
		},
		{
			name:    "restricted fields",
			options: Options{Query: "alice", Fields: []string{"title", "body"}},
			want:    []string{},
		},
		{
			name:    "exact match",
			options: Options{Query: "budget review", ExactMatch: true, Fields: []string{"title"}},
			want:    []string{"2"},
		},
		{
			name:    "primary field ranks first",
			options: Options{Query: "budget", Primary: "body"},
			want:    []string{"1", "2"},
		},
		{
			name:    "non string fields when listed",
			options: Options{Query: "3", Fields: []string{"points"}},
			want:    []string{"3"},
		},
		{
			name:    "max results",
			options: Options{Query: "meeting", MaxResults: 2},
			want:    []string{"4", "2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.Search(ctx, tt.options, nil)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, resultIDs(results)); diff != "" {
				t.Errorf("results mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSearchScores(t *testing.T) {
	doc := types.Document{types.IDField: types.String("x"), "title": types.String("Meeting notes")}
	engine := NewEngine(NewMockDocumentProvider([]types.Document{doc}))

	results, err := engine.Search(context.Background(), Options{Query: "Meeting", IncludeMatchDetails: true}, nil)
	if err != nil || len(results) != 1 {
		t.Fatalf("Search = %v, %v", results, err)
	}
	// base 0.5, same case 0.2, prefix 0.2, coverage 7/13 0.1
	if results[0].Score != 1.0 {
		t.Errorf("expected score 1.0, got %v", results[0].Score)
	}
	if results[0].MatchType != MatchPartial {
		t.Errorf("expected a partial match, got %s", results[0].MatchType)
	}
	want := []FieldMatch{{
		FieldName:       "title",
		OriginalText:    "Meeting notes",
		HighlightedText: "Meeting notes",
		FieldScore:      1.0,
		Matches:         []MatchInfo{{Start: 0, End: 7, Text: "Meeting", Score: 1.0, MatchType: MatchPartial}},
	}}
	if diff := cmp.Diff(want, results[0].FieldMatches); diff != "" {
		t.Errorf("match details mismatch (-want +got):\n%s", diff)
	}

	results, _ = engine.Search(context.Background(), Options{Query: "notes"}, nil)
	// base 0.5, same case 0.2, not a prefix, coverage 5/13
	if results[0].Score != 0.7 {
		t.Errorf("expected score 0.7, got %v", results[0].Score)
	}
}

func TestHighlight(t *testing.T) {
	doc := types.Document{
		types.IDField: types.String("x"),
		"body":        types.String("Ünïcode meeting, another Meeting"),
	}
	engine := NewEngine(NewMockDocumentProvider([]types.Document{doc}))

	tests := []struct {
		name    string
		options Options
		want    string
	}{
		{"default markers", Options{Query: "meeting", EnableHighlight: true}, "Ünïcode **meeting**, another **Meeting**"},
		{"custom markers", Options{Query: "meeting", EnableHighlight: true, HighlightStartMarker: "<", HighlightEndMarker: ">"}, "Ünïcode <meeting>, another <Meeting>"},
		{"multibyte prefix", Options{Query: "üNÏ", EnableHighlight: true}, "**Ünï**code meeting, another Meeting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.Search(context.Background(), tt.options, nil)
			if err != nil || len(results) != 1 {
				t.Fatalf("Search = %v, %v", results, err)
			}
			if got := results[0].Highlights["body"]; got != tt.want {
				t.Errorf("highlight = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchProviderError(t *testing.T) {
	provider := NewMockDocumentProvider(nil)
	boom := errors.New("boom")
	provider.SetError(boom)

	cond := types.Where("status", "done")
	_, err := NewEngine(provider).Search(context.Background(), Options{Query: "x"}, cond)
	if !errors.Is(err, boom) {
		t.Errorf("expected the provider error, got %v", err)
	}
	if _, ok := provider.lastCond["status"]; !ok {
		t.Errorf("condition not passed to the provider, got %v", provider.lastCond)
	}
}

func TestSearchCollection(t *testing.T) {
	db, _ := testutil.NewDatabase(t)
	u := testutil.LoadUniverse(t, db)

	results, err := Collection(context.Background(), u.Tasks, Options{Query: "grace", Fields: []string{"owner"}},
		types.Where("owner", "u-grace"))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if diff := cmp.Diff([]string{"t-review", "t-docs"}, resultIDs(results)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}
