package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imas/mcp-server/internal/builder"
	"github.com/imas/mcp-server/internal/builder/lexicographic"
	"github.com/imas/mcp-server/internal/config"
	"github.com/imas/mcp-server/internal/indexing"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	defaultMaxResults = 10
	maxMaxResults     = 50
	searchCacheSize   = 256
)

// SearchIMASInput defines input for search_imas tool
type SearchIMASInput struct {
	Query      string `json:"query" jsonschema:"Search query, e.g. 'electron temperature'"`
	IDSName    string `json:"ids_name,omitempty" jsonschema:"Restrict results to one IDS, e.g. 'core_profiles' (optional)"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results (optional, defaults to 10, at most 50)"`
}

// SearchIMASOutput defines output for search_imas tool
type SearchIMASOutput struct {
	Results   []lexicographic.Hit `json:"results"`
	Query     string              `json:"query"`
	IDSName   string              `json:"ids_name,omitempty"`
	TotalHits int                 `json:"total_hits"`
	Index     string              `json:"index"`
}

// ListIDSInput defines input for list_ids tool
type ListIDSInput struct{}

// ListIDSOutput defines output for list_ids tool
type ListIDSOutput struct {
	IDS       []string `json:"ids"`
	DDVersion string   `json:"dd_version"`
	Index     string   `json:"index"`
}

// IndexInfoInput defines input for index_info tool
type IndexInfoInput struct{}

// IndexInfoOutput defines output for index_info tool
type IndexInfoOutput struct {
	Name          string   `json:"name"`
	RunID         string   `json:"run_id"`
	DDVersion     string   `json:"dd_version"`
	IDS           []string `json:"ids"`
	Subset        bool     `json:"subset"`
	Documents     int      `json:"documents"`
	DocCount      uint64   `json:"doc_count"`
	Batches       int      `json:"batches"`
	SchemaVersion int      `json:"schema_version"`
	BuiltAt       string   `json:"built_at"`
	BuildTime     string   `json:"build_time"`
}

// RebuildIndexInput defines input for rebuild_index tool
type RebuildIndexInput struct{}

// RebuildIndexOutput defines output for rebuild_index tool
type RebuildIndexOutput struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
	Batches   int    `json:"batches"`
	Dropped   int    `json:"dropped"`
	Message   string `json:"message"`
}

type searchKey struct {
	runID   string
	query   string
	idsName string
	max     int
}

// Service serves Data Dictionary searches from the lexicographic index
type Service struct {
	cfg    *config.Config
	holder indexHolder
	lock   *indexLock
	cache  *lru.Cache[searchKey, SearchIMASOutput]
	open   IndexOpener

	// initMu serialises Initialize so concurrent first-use calls open the index once
	initMu sync.Mutex
}

// NewService creates a service for cfg. Call Initialize before serving.
func NewService(cfg *config.Config) (*Service, error) {
	return newService(cfg, openBleveIndex)
}

func newService(cfg *config.Config, open IndexOpener) (*Service, error) {
	cache, err := lru.New[searchKey, SearchIMASOutput](searchCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}
	return &Service{
		cfg:   cfg,
		lock:  newIndexLock(cfg.IndexDir),
		cache: cache,
		open:  open,
	}, nil
}

func (s *Service) dictionary() *indexing.DataDictionary {
	return indexing.NewDataDictionary(DictionarySource(s.cfg.XMLPath), s.cfg.IDS)
}

// Initialize opens the index matching the configured Data Dictionary, building it
// first if it is missing or was built with another index schema version.
// It returns immediately when that index is already open.
func (s *Service) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	name, err := s.dictionary().IndexName(indexing.PrefixLexicographic)
	if err != nil {
		return err
	}

	// A concurrent caller may have opened it while we waited
	if live, release := s.holder.acquire(); live != nil {
		open := live.meta.Name == name && live.meta.SchemaVersion == indexing.IndexSchemaVersion
		release()
		if open {
			return nil
		}
	}

	startTime := time.Now()
	log.Printf("Initializing IMAS search...")

	meta, err := builder.ReadMeta(s.cfg.IndexDir, name)
	switch {
	case err == nil && meta.SchemaVersion == indexing.IndexSchemaVersion:
		index, openErr := s.open(s.cfg.IndexDir, name)
		if openErr == nil {
			s.holder.swap(newLiveIndex(index, meta))
			log.Printf("✓ IMAS search initialized (%d documents, %s) in %v",
				meta.Documents, name, time.Since(startTime).Round(time.Millisecond))
			return nil
		}
		log.Printf("Warning: Index %s could not be opened, rebuilding: %v", name, openErr)
	case err == nil:
		log.Printf("Index schema version mismatch (have: v%d, want: v%d), rebuilding...",
			meta.SchemaVersion, indexing.IndexSchemaVersion)
	case errors.Is(err, builder.ErrNoIndex):
		log.Printf("No index %s found, building...", name)
	default:
		log.Printf("Warning: %v, rebuilding...", err)
	}

	if _, err := s.Rebuild(ctx); err != nil {
		return err
	}
	log.Printf("✓ IMAS search initialized in %v", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// Rebuild re-extracts the Data Dictionary, rebuilds the index and swaps it in.
// Searches keep using the previous index until the swap.
func (s *Service) Rebuild(ctx context.Context) (*builder.Meta, error) {
	s.holder.refreshMu.Lock()
	defer s.holder.refreshMu.Unlock()

	if err := s.lock.acquire(); err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	defer func() {
		if err := s.lock.release(); err != nil {
			log.Printf("Error releasing lock: %v", err)
		}
	}()

	base, err := builder.NewBase(s.dictionary(), indexing.PrefixLexicographic, s.cfg.IndexDir, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	meta, err := lexicographic.New(base).BuildIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexing failed: %w", err)
	}

	index, err := s.open(s.cfg.IndexDir, meta.Name)
	if err != nil {
		return nil, err
	}
	s.holder.swap(newLiveIndex(index, meta))
	s.cache.Purge()

	return meta, nil
}

// current returns the open index, initializing the service on first use
func (s *Service) current(ctx context.Context) (*liveIndex, func(), error) {
	live, release := s.holder.acquire()
	if live != nil {
		return live, release, nil
	}

	log.Printf("IMAS index not initialized, initializing now...")
	if err := s.Initialize(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize IMAS index: %w", err)
	}
	live, release = s.holder.acquire()
	if live == nil {
		return nil, nil, fmt.Errorf("index still nil after initialization")
	}
	return live, release, nil
}

// SearchIMAS searches Data Dictionary paths and documentation
func (s *Service) SearchIMAS(ctx context.Context, req *mcp.CallToolRequest, input SearchIMASInput) (*mcp.CallToolResult, SearchIMASOutput, error) {
	if input.Query == "" {
		return nil, SearchIMASOutput{}, fmt.Errorf("query is required")
	}

	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxMaxResults {
		maxResults = maxMaxResults
	}

	live, release, err := s.current(ctx)
	if err != nil {
		return nil, SearchIMASOutput{}, err
	}
	defer release()

	key := searchKey{runID: live.meta.RunID, query: input.Query, idsName: input.IDSName, max: maxResults}
	if cached, ok := s.cache.Get(key); ok {
		return nil, cached, nil
	}

	res, err := live.index.Search(lexicographic.NewSearchRequest(input.Query, input.IDSName, maxResults))
	if err != nil {
		return nil, SearchIMASOutput{}, fmt.Errorf("search failed: %w", err)
	}

	output := SearchIMASOutput{
		Results:   lexicographic.HitsFromResult(res),
		Query:     input.Query,
		IDSName:   input.IDSName,
		TotalHits: int(res.Total),
		Index:     live.meta.Name,
	}
	s.cache.Add(key, output)

	return nil, output, nil
}

// ListIDS lists the IDS covered by the open index
func (s *Service) ListIDS(ctx context.Context, req *mcp.CallToolRequest, input ListIDSInput) (*mcp.CallToolResult, ListIDSOutput, error) {
	live, release, err := s.current(ctx)
	if err != nil {
		return nil, ListIDSOutput{}, err
	}
	defer release()

	return nil, ListIDSOutput{
		IDS:       live.meta.IDS,
		DDVersion: live.meta.DDVersion,
		Index:     live.meta.Name,
	}, nil
}

// IndexInfo describes the open index
func (s *Service) IndexInfo(ctx context.Context, req *mcp.CallToolRequest, input IndexInfoInput) (*mcp.CallToolResult, IndexInfoOutput, error) {
	live, release, err := s.current(ctx)
	if err != nil {
		return nil, IndexInfoOutput{}, err
	}
	defer release()

	count, err := live.index.DocCount()
	if err != nil {
		return nil, IndexInfoOutput{}, fmt.Errorf("failed to count documents: %w", err)
	}

	meta := live.meta
	return nil, IndexInfoOutput{
		Name:          meta.Name,
		RunID:         meta.RunID,
		DDVersion:     meta.DDVersion,
		IDS:           meta.IDS,
		Subset:        meta.Subset,
		Documents:     meta.Documents,
		DocCount:      count,
		Batches:       meta.Batches,
		SchemaVersion: meta.SchemaVersion,
		BuiltAt:       meta.BuiltAt.Format(time.RFC3339),
		BuildTime:     meta.Duration.Round(time.Millisecond).String(),
	}, nil
}

// RebuildIndex forces a rebuild of the index
func (s *Service) RebuildIndex(ctx context.Context, req *mcp.CallToolRequest, input RebuildIndexInput) (*mcp.CallToolResult, RebuildIndexOutput, error) {
	meta, err := s.Rebuild(ctx)
	if err != nil {
		return nil, RebuildIndexOutput{}, fmt.Errorf("rebuild failed: %w", err)
	}

	return nil, RebuildIndexOutput{
		Name:      meta.Name,
		Documents: meta.Documents,
		Batches:   meta.Batches,
		Dropped:   meta.Duplicates + meta.Invalid,
		Message:   fmt.Sprintf("Index %s rebuilt, %d documents indexed", meta.Name, meta.Documents),
	}, nil
}

// Register adds the IMAS tools to server. Initialization failures are logged and
// retried on first use.
func (s *Service) Register(ctx context.Context, server *mcp.Server) int {
	if err := s.Initialize(ctx); err != nil {
		log.Printf("Warning: IMAS search initialization failed: %v", err)
		log.Printf("IMAS search will attempt to initialize on first use")
	}

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "search_imas",
			Description: "Search the IMAS Data Dictionary by path and documentation. Returns matching node paths with units and hierarchical documentation.",
		},
		s.SearchIMAS,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_ids",
			Description: "List the IDS (Interface Data Structures) covered by the search index, with the Data Dictionary version.",
		},
		s.ListIDS,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "index_info",
			Description: "Describe the search index: name, Data Dictionary version, IDS selection, document count and build time.",
		},
		s.IndexInfo,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "rebuild_index",
			Description: "Re-extract the Data Dictionary and rebuild the search index. Searches keep working during the rebuild.",
		},
		s.RebuildIndex,
	)

	return 4
}

// Close closes the index and releases the lock
func (s *Service) Close() error {
	closeErr := s.holder.close()
	if closeErr != nil {
		log.Printf("Error closing IMAS index: %v", closeErr)
	} else {
		log.Printf("✓ IMAS index closed")
	}

	// Always attempt to release the inter-process lock, even if close failed
	if err := s.lock.release(); err != nil {
		log.Printf("Error releasing lock: %v", err)
		if closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}
