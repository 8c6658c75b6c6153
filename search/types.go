package search

import (
	"context"

	"github.com/arthur-debert/noodm/types"
)

// Options configures search behavior
type Options struct {
	// Query is the text to look for
	Query string

	// Fields restricts the search to these fields. Empty searches every
	// string field of each document.
	Fields []string

	// Primary names a field whose matches rank above matches elsewhere
	Primary string

	// CaseSensitive controls whether search is case-sensitive
	CaseSensitive bool

	// ExactMatch requires the entire field to match the query
	// When false, performs substring matching
	ExactMatch bool

	// EnableHighlight includes highlighted match text in results
	EnableHighlight bool

	// HighlightStartMarker and HighlightEndMarker wrap highlighted matches.
	// Both default to "**".
	HighlightStartMarker string
	HighlightEndMarker   string

	// IncludeMatchDetails fills Result.FieldMatches
	IncludeMatchDetails bool

	// MaxResults limits the number of results; zero means no limit
	MaxResults int
}

// Result represents a matching document with its relevance
type Result struct {
	// Document is the matched document
	Document types.Document

	// Score represents match relevance (0.0 to 1.0, higher is better)
	Score float64

	// Highlights maps each matched field to its text with match markers
	Highlights map[string]string

	// MatchType describes the best match found
	MatchType MatchType

	// MatchedFields lists the fields that contained matches, in sorted order
	MatchedFields []string

	// FieldMatches holds per-field details when requested
	FieldMatches []FieldMatch
}

// FieldMatch describes the matches found in one field
type FieldMatch struct {
	FieldName       string
	OriginalText    string
	Matches         []MatchInfo
	HighlightedText string
	FieldScore      float64
}

// MatchInfo locates one occurrence of the query. Start and End are byte
// offsets into the field text.
type MatchInfo struct {
	Start     int
	End       int
	Text      string
	Score     float64
	MatchType MatchType
}

// MatchType indicates the type of match found
type MatchType string

const (
	MatchExactPrimary   MatchType = "exact_primary"
	MatchPartialPrimary MatchType = "partial_primary"
	MatchExact          MatchType = "exact"
	MatchPartial        MatchType = "partial"
)

// DocumentProvider supplies the documents to search. *noodm.Collection
// satisfies it.
type DocumentProvider interface {
	Find(ctx context.Context, cond types.Cond) ([]types.Document, error)
}
