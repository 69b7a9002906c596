package tools

import (
	"fmt"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
)

// mockIndex is a simple in-memory mock of the Index interface for testing
type mockIndex struct {
	id          int
	docCount    uint64
	hits        search.DocumentMatchCollection
	searchError error
	closeError  error
	searches    atomic.Int32
	closed      atomic.Bool
}

// newMockIndex creates a new mock index with the given ID
func newMockIndex(id int) *mockIndex {
	return &mockIndex{
		id:       id,
		docCount: 100, // Default doc count
	}
}

func (m *mockIndex) Search(req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	m.searches.Add(1)
	if m.closed.Load() {
		return nil, fmt.Errorf("index closed")
	}
	if m.searchError != nil {
		return nil, m.searchError
	}
	return &bleve.SearchResult{
		Request: req,
		Hits:    m.hits,
		Total:   uint64(len(m.hits)),
	}, nil
}

func (m *mockIndex) DocCount() (uint64, error) {
	if m.closed.Load() {
		return 0, fmt.Errorf("index closed")
	}
	return m.docCount, nil
}

func (m *mockIndex) Close() error {
	if m.closed.Load() {
		return fmt.Errorf("already closed")
	}
	m.closed.Store(true)
	return m.closeError
}

// IsClosed returns true if the index has been closed
func (m *mockIndex) IsClosed() bool {
	return m.closed.Load()
}
