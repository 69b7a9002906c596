package lexicographic

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/imas/mcp-server/internal/builder"
	"github.com/imas/mcp-server/internal/indexing"
)

// Entry is the document stored in the bleve index
type Entry struct {
	Path          string   `json:"path"`
	PathKeyword   string   `json:"path_keyword"`
	Documentation string   `json:"documentation"`
	Units         string   `json:"units"`
	IDSName       string   `json:"ids_name"`
	Keywords      []string `json:"keywords"`
	TokenCount    int      `json:"token_count"`
}

// NewEntry enriches a document with keywords and a token estimate
func NewEntry(doc indexing.Document) Entry {
	return Entry{
		Path:          doc.Path,
		PathKeyword:   doc.Path,
		Documentation: doc.Documentation,
		Units:         doc.Units,
		IDSName:       doc.IDSName,
		Keywords:      indexing.ExtractKeywords(doc.Path, doc.Documentation),
		TokenCount:    indexing.EstimateTokens(doc.Documentation),
	}
}

// NewMapping returns the index mapping: exact-match fields for IDS name, units
// and full path, analysed text for path, documentation and keywords.
func NewMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	numeric := bleve.NewNumericFieldMapping()
	numeric.Index = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("path", text)
	doc.AddFieldMappingsAt("documentation", text)
	doc.AddFieldMappingsAt("keywords", text)
	doc.AddFieldMappingsAt("path_keyword", exact)
	doc.AddFieldMappingsAt("ids_name", exact)
	doc.AddFieldMappingsAt("units", exact)
	doc.AddFieldMappingsAt("token_count", numeric)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// Builder writes a bleve full-text index
type Builder struct {
	*builder.Base
}

var _ builder.Builder = (*Builder)(nil)

// New creates a lexicographic builder on base
func New(base *builder.Base) *Builder {
	return &Builder{Base: base}
}

func (b *Builder) Name() string {
	return string(indexing.PrefixLexicographic)
}

// BuildIndex builds the index in <name>.tmp and swaps it into place, so a
// failed build never leaves a partial index under the final name.
func (b *Builder) BuildIndex(ctx context.Context) (*builder.Meta, error) {
	name, err := b.IndexName()
	if err != nil {
		return nil, err
	}
	indexPath := b.Path(name)
	tempIndexPath := indexPath + ".tmp"

	// Clean up any leftover temp index from previous crash
	os.RemoveAll(tempIndexPath)

	index, err := bleve.New(tempIndexPath, NewMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create temp index: %w", err)
	}

	meta, err := b.Run(ctx, func(ctx context.Context, docs []indexing.Document) error {
		batch := index.NewBatch()
		for _, doc := range docs {
			if err := batch.Index(doc.Path, NewEntry(doc)); err != nil {
				return fmt.Errorf("failed to add document %s to batch: %w", doc.Path, err)
			}
		}
		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("failed to index batch: %w", err)
		}
		return nil
	})
	if err != nil {
		index.Close()
		os.RemoveAll(tempIndexPath)
		return nil, err
	}

	if err := index.Close(); err != nil {
		os.RemoveAll(tempIndexPath)
		return nil, fmt.Errorf("failed to close temp index: %w", err)
	}

	if err := os.RemoveAll(indexPath); err != nil && !os.IsNotExist(err) {
		os.RemoveAll(tempIndexPath)
		return nil, fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := os.Rename(tempIndexPath, indexPath); err != nil {
		os.RemoveAll(tempIndexPath)
		return nil, fmt.Errorf("failed to rename temp index: %w", err)
	}

	if err := b.WriteMeta(meta); err != nil {
		return nil, err
	}

	log.Printf("✓ Indexed %d documents into %s", meta.Documents, indexPath)
	return meta, nil
}

// Open opens a built index
func Open(dir, name string) (bleve.Index, error) {
	index, err := bleve.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", name, err)
	}
	return index, nil
}
