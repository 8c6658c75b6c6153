package search

import (
	"context"
	"time"

	"github.com/arthur-debert/noodm/types"
)

// MockDocumentProvider implements DocumentProvider for testing
type MockDocumentProvider struct {
	documents []types.Document
	err       error
	lastCond  types.Cond
}

// NewMockDocumentProvider creates a new mock with the given documents
func NewMockDocumentProvider(documents []types.Document) *MockDocumentProvider {
	return &MockDocumentProvider{
		documents: documents,
	}
}

// SetError configures the mock to return an error
func (m *MockDocumentProvider) SetError(err error) {
	m.err = err
}

// Find returns the mock documents or error
func (m *MockDocumentProvider) Find(_ context.Context, cond types.Cond) ([]types.Document, error) {
	m.lastCond = cond
	if m.err != nil {
		return nil, m.err
	}
	return m.documents, nil
}

// SampleDocuments provides sample documents for testing
func SampleDocuments() []types.Document {
	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	return []types.Document{
		{
			types.IDField: types.String("1"),
			"title":       types.String("Important Meeting"),
			"body":        types.String("Discuss quarterly budget and planning"),
			"status":      types.String("pending"),
			"assignee":    types.String("alice"),
			"created_at":  types.Date(baseTime),
		},
		{
			types.IDField: types.String("2"),
			"title":       types.String("Budget Review"),
			"body":        types.String("Review the meeting notes from last quarter"),
			"status":      types.String("active"),
			"assignee":    types.String("bob"),
			"created_at":  types.Date(baseTime.Add(time.Hour)),
		},
		{
			types.IDField: types.String("3"),
			"title":       types.String("Team Standup"),
			"body":        types.String("Daily standup meeting for development team"),
			"status":      types.String("done"),
			"assignee":    types.String("alice"),
			"points":      types.Int(3),
		},
		{
			types.IDField: types.String("4"),
			"title":       types.String("MEETING"),
			"body":        types.String("All caps meeting title for testing"),
			"status":      types.String("pending"),
		},
	}
}
