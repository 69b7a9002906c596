package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imas/mcp-server/internal/indexing"
	"github.com/imas/mcp-server/internal/metrics"
)

const metaSuffix = ".meta.json"

// ErrNoIndex is returned when no built index matches a lookup
var ErrNoIndex = errors.New("no index found")

// Builder builds one index backend from the Data Dictionary
type Builder interface {
	// Name returns the backend name, which is also the index prefix
	Name() string

	// BuildIndex extracts every selected document and writes the index
	BuildIndex(ctx context.Context) (*Meta, error)
}

// Meta describes a built index. It is stored next to the index as <name>.meta.json.
type Meta struct {
	RunID         string        `json:"run_id"`
	Name          string        `json:"name"`
	Prefix        string        `json:"prefix"`
	DDVersion     string        `json:"dd_version"`
	IDS           []string      `json:"ids"`
	Subset        bool          `json:"subset"`
	Documents     int           `json:"documents"`
	Batches       int           `json:"batches"`
	Duplicates    int           `json:"duplicates"`
	Invalid       int           `json:"invalid"`
	Dimensions    int           `json:"dimensions,omitempty"`
	SchemaVersion int           `json:"schema_version"`
	BuiltAt       time.Time     `json:"built_at"`
	Duration      time.Duration `json:"duration_ns"`
}

// Base holds what every backend shares: the extraction configuration, the
// output directory and the batch size.
type Base struct {
	Dictionary *indexing.DataDictionary
	Prefix     indexing.IndexPrefix
	Dir        string
	BatchSize  int
}

// NewBase validates the prefix and creates dir if needed
func NewBase(dd *indexing.DataDictionary, prefix indexing.IndexPrefix, dir string, batchSize int) (*Base, error) {
	if !prefix.Valid() {
		return nil, fmt.Errorf("unknown index prefix %q", prefix)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	return &Base{
		Dictionary: dd,
		Prefix:     prefix,
		Dir:        dir,
		BatchSize:  batchSize,
	}, nil
}

// IndexName returns the content-addressed name of the index this base builds
func (b *Base) IndexName() (string, error) {
	return b.Dictionary.IndexName(b.Prefix)
}

// Path returns the on-disk location of the named index
func (b *Base) Path(name string) string {
	return filepath.Join(b.Dir, name)
}

// Run drives one extraction, handing every batch to consume. The returned Meta
// carries the counters of the run; it is not written to disk.
func (b *Base) Run(ctx context.Context, consume func(ctx context.Context, batch []indexing.Document) error) (*Meta, error) {
	start := time.Now()

	name, err := b.IndexName()
	if err != nil {
		return nil, err
	}
	version, err := b.Dictionary.Version()
	if err != nil {
		return nil, err
	}
	ids, err := b.Dictionary.IDSNames()
	if err != nil {
		return nil, err
	}
	total, err := b.Dictionary.TotalElements()
	if err != nil {
		return nil, err
	}

	defer indexing.PerformanceTimer(fmt.Sprintf("%s index build (%s)", b.Prefix, name))()

	batcher := &indexing.Batcher{Size: b.BatchSize}
	metrics.ObserveBatcher(batcher)

	for batch, err := range b.Dictionary.DocumentBatches(ctx, batcher, metrics.NewSink(total)) {
		if err != nil {
			return nil, fmt.Errorf("extraction failed: %w", err)
		}
		if err := consume(ctx, batch); err != nil {
			return nil, err
		}
	}

	stats := batcher.Stats()
	elapsed := time.Since(start)
	metrics.CaptureBuild(string(b.Prefix), elapsed)

	return &Meta{
		RunID:         uuid.NewString(),
		Name:          name,
		Prefix:        string(b.Prefix),
		DDVersion:     version,
		IDS:           ids,
		Subset:        name != indexing.IndexName(b.Prefix, version, nil),
		Documents:     stats.Documents,
		Batches:       stats.Batches,
		Duplicates:    stats.Duplicates,
		Invalid:       stats.Invalid,
		SchemaVersion: indexing.IndexSchemaVersion,
		BuiltAt:       time.Now().UTC(),
		Duration:      elapsed,
	}, nil
}

// WriteMeta stores meta as <dir>/<name>.meta.json
func (b *Base) WriteMeta(meta *Meta) error {
	return WriteMeta(b.Dir, meta)
}

// WriteMeta stores meta as <dir>/<name>.meta.json
func WriteMeta(dir string, meta *Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index metadata: %w", err)
	}
	path := filepath.Join(dir, meta.Name+metaSuffix)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write index metadata: %w", err)
	}
	return nil
}

// ReadMeta loads the metadata of the named index
func ReadMeta(dir, name string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+metaSuffix))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoIndex, name)
		}
		return nil, fmt.Errorf("failed to read index metadata: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode index metadata %s: %w", name, err)
	}
	return &meta, nil
}

// List returns the metadata of every index in dir built with prefix, newest first.
// Unreadable metadata files are skipped with a warning.
func List(dir string, prefix indexing.IndexPrefix) ([]*Meta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list index directory: %w", err)
	}

	var metas []*Meta
	for _, entry := range entries {
		fileName := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(fileName, metaSuffix) || !strings.HasPrefix(fileName, string(prefix)+"_") {
			continue
		}
		meta, err := ReadMeta(dir, strings.TrimSuffix(fileName, metaSuffix))
		if err != nil {
			log.Printf("Warning: Skipping index metadata %s: %v", fileName, err)
			continue
		}
		metas = append(metas, meta)
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].BuiltAt.After(metas[j].BuiltAt)
	})
	return metas, nil
}

// Latest returns the most recently built index with prefix
func Latest(dir string, prefix indexing.IndexPrefix) (*Meta, error) {
	metas, err := List(dir, prefix)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("%w: no %s index in %s", ErrNoIndex, prefix, dir)
	}
	return metas[0], nil
}
