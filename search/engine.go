// Package search ranks the documents of a collection by text matches.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/arthur-debert/noodm/types"
)

// Engine searches the documents of a provider
type Engine struct {
	provider DocumentProvider
}

// NewEngine creates a new search engine with the given document provider
func NewEngine(provider DocumentProvider) *Engine {
	return &Engine{
		provider: provider,
	}
}

// Search finds the documents matching cond whose text contains the query and
// returns them by descending score. Ties keep the provider order.
func (e *Engine) Search(ctx context.Context, options Options, cond types.Cond) ([]Result, error) {
	if options.Query == "" {
		return []Result{}, nil
	}

	documents, err := e.provider.Find(ctx, cond)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}

	results := []Result{}
	for _, doc := range documents {
		if result := e.searchDocument(doc, options); result != nil {
			results = append(results, *result)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if options.MaxResults > 0 && len(results) > options.MaxResults {
		results = results[:options.MaxResults]
	}
	return results, nil
}

// Collection is a convenience to search a collection directly
func Collection(ctx context.Context, provider DocumentProvider, options Options, cond types.Cond) ([]Result, error) {
	return NewEngine(provider).Search(ctx, options, cond)
}

// searchDocument searches a single document and returns a result if it matches
func (e *Engine) searchDocument(doc types.Document, options Options) *Result {
	startMarker := options.HighlightStartMarker
	endMarker := options.HighlightEndMarker
	if startMarker == "" {
		startMarker = "**"
	}
	if endMarker == "" {
		endMarker = "**"
	}

	fieldsToSearch := options.Fields
	if len(fieldsToSearch) == 0 {
		for _, name := range doc.Fields() {
			if _, ok := doc[name].Str(); ok && name != types.IDField {
				fieldsToSearch = append(fieldsToSearch, name)
			}
		}
	}

	var fieldMatches []FieldMatch
	var bestMatchType MatchType
	var maxScore float64
	for _, field := range fieldsToSearch {
		fieldMatch := e.searchField(doc, field, options, startMarker, endMarker)
		if fieldMatch == nil {
			continue
		}
		fieldMatches = append(fieldMatches, *fieldMatch)
		if fieldMatch.FieldScore > maxScore {
			maxScore = fieldMatch.FieldScore
			bestMatchType = fieldMatch.Matches[0].MatchType
		}
	}
	if len(fieldMatches) == 0 {
		return nil
	}

	result := &Result{
		Document:      doc,
		Score:         maxScore,
		MatchType:     bestMatchType,
		MatchedFields: make([]string, 0, len(fieldMatches)),
	}
	if options.IncludeMatchDetails {
		result.FieldMatches = fieldMatches
	}
	if options.EnableHighlight {
		result.Highlights = make(map[string]string, len(fieldMatches))
	}
	for _, fieldMatch := range fieldMatches {
		result.MatchedFields = append(result.MatchedFields, fieldMatch.FieldName)
		if options.EnableHighlight {
			result.Highlights[fieldMatch.FieldName] = fieldMatch.HighlightedText
		}
	}
	sort.Strings(result.MatchedFields)
	return result
}

// searchField searches one field and returns its matches, or nil
func (e *Engine) searchField(doc types.Document, field string, options Options, startMarker, endMarker string) *FieldMatch {
	text, ok := textOf(doc[field])
	if !ok {
		return nil
	}
	primary := options.Primary != "" && field == options.Primary

	matches := e.findMatches(text, options, primary)
	if len(matches) == 0 {
		return nil
	}

	fieldScore := 0.0
	for _, match := range matches {
		if match.Score > fieldScore {
			fieldScore = match.Score
		}
	}

	highlighted := text
	if options.EnableHighlight {
		highlighted = highlight(text, matches, startMarker, endMarker)
	}

	return &FieldMatch{
		FieldName:       field,
		OriginalText:    text,
		Matches:         matches,
		HighlightedText: highlighted,
		FieldScore:      fieldScore,
	}
}

// textOf returns the searchable text of a scalar value
func textOf(v types.Value) (string, bool) {
	switch v.Kind() {
	case types.KindString:
		s, _ := v.Str()
		return s, true
	case types.KindNumber:
		n, _ := v.Num()
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case types.KindBool:
		b, _ := v.Boolean()
		return strconv.FormatBool(b), true
	case types.KindDate:
		t, _ := v.Time()
		return t.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

// calculateScore computes a relevance score for a match at start, counted
// in tenths
func calculateScore(text, query string, start int, primary bool) float64 {
	score := 5
	if primary {
		score = 8
	}

	// Same case as typed
	if text[start:start+len(query)] == query {
		score += 2
	}

	if start == 0 {
		score += 2
	}

	// Query covers most of the field
	if 2*len(query) > len(text) {
		score++
	}

	return math.Min(float64(score)/10, 1.0)
}

// findMatches finds the non-overlapping occurrences of the query in text
func (e *Engine) findMatches(text string, options Options, primary bool) []MatchInfo {
	query := options.Query
	equal := strings.EqualFold
	if options.CaseSensitive {
		equal = func(a, b string) bool { return a == b }
	}

	if options.ExactMatch {
		if !equal(text, query) {
			return nil
		}
		matchType := MatchExact
		if primary {
			matchType = MatchExactPrimary
		}
		return []MatchInfo{{Start: 0, End: len(text), Text: text, Score: 1.0, MatchType: matchType}}
	}

	matchType := MatchPartial
	if primary {
		matchType = MatchPartialPrimary
	}

	var matches []MatchInfo
	n := len(query)
	for i := 0; i+n <= len(text); i++ {
		// Compare whole runes only
		if !utf8.RuneStart(text[i]) || (i+n < len(text) && !utf8.RuneStart(text[i+n])) {
			continue
		}
		if !equal(text[i:i+n], query) {
			continue
		}
		matches = append(matches, MatchInfo{
			Start:     i,
			End:       i + n,
			Text:      text[i : i+n],
			Score:     calculateScore(text, query, i, primary),
			MatchType: matchType,
		})
		i += n - 1
	}
	return matches
}

// highlight wraps each match of text with the markers
func highlight(text string, matches []MatchInfo, startMarker, endMarker string) string {
	var builder strings.Builder
	lastEnd := 0
	for _, m := range matches {
		builder.WriteString(text[lastEnd:m.Start])
		builder.WriteString(startMarker)
		builder.WriteString(text[m.Start:m.End])
		builder.WriteString(endMarker)
		lastEnd = m.End
	}
	builder.WriteString(text[lastEnd:])
	return builder.String()
}
