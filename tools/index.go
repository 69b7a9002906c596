package tools

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/imas/mcp-server/internal/builder"
	"github.com/imas/mcp-server/internal/builder/lexicographic"
)

// Index abstracts the bleve.Index operations the tools use, so tests can
// substitute an in-memory fake
type Index interface {
	Search(req *bleve.SearchRequest) (*bleve.SearchResult, error)
	DocCount() (uint64, error)
	Close() error
}

// IndexOpener opens the named index in dir
type IndexOpener func(dir, name string) (Index, error)

// openBleveIndex is the production IndexOpener
func openBleveIndex(dir, name string) (Index, error) {
	return lexicographic.Open(dir, name)
}

// liveIndex is an open index together with the metadata it was built with.
// It is closed once it has been replaced and the last search using it is done.
type liveIndex struct {
	index Index
	meta  *builder.Meta

	refs      atomic.Int64
	retired   atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func newLiveIndex(index Index, meta *builder.Meta) *liveIndex {
	return &liveIndex{index: index, meta: meta, closed: make(chan struct{})}
}

func (l *liveIndex) release() {
	if l.refs.Add(-1) == 0 && l.retired.Load() {
		l.closeIndex()
	}
}

func (l *liveIndex) retire() {
	l.retired.Store(true)
	if l.refs.Load() == 0 {
		l.closeIndex()
	}
}

func (l *liveIndex) closeIndex() {
	l.closeOnce.Do(func() {
		l.closeErr = l.index.Close()
		if l.closeErr != nil {
			log.Printf("Warning: Error closing index %s: %v", l.meta.Name, l.closeErr)
		} else {
			log.Printf("✓ Index %s closed", l.meta.Name)
		}
		close(l.closed)
	})
}

// indexHolder manages concurrent access to the open index
type indexHolder struct {
	// current holds the active index (atomic access for lock-free reads)
	current atomic.Pointer[liveIndex]

	// refreshMu serialises rebuilds; searches never take it
	refreshMu sync.Mutex
}

// acquire returns the current index and a release func, or nil if none is open.
// The index stays open until release is called.
func (h *indexHolder) acquire() (*liveIndex, func()) {
	for {
		live := h.current.Load()
		if live == nil {
			return nil, func() {}
		}
		live.refs.Add(1)
		if h.current.Load() == live {
			return live, live.release
		}
		// Swapped between load and reference, retry on the new one
		live.release()
	}
}

// swap installs next; the previous index closes when its last search releases it
func (h *indexHolder) swap(next *liveIndex) {
	if old := h.current.Swap(next); old != nil {
		old.retire()
	}
}

// close removes the current index and waits until it is closed
func (h *indexHolder) close() error {
	old := h.current.Swap(nil)
	if old == nil {
		return nil
	}
	old.retire()
	<-old.closed
	return old.closeErr
}
