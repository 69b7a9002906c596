package semantic

import (
	"context"
	"fmt"
	"log"

	"github.com/imas/mcp-server/internal/builder"
	"github.com/imas/mcp-server/internal/indexing"
)

// Builder embeds every document and stores the vectors
type Builder struct {
	*builder.Base
	embedder Embedder
	store    VectorStore
}

var _ builder.Builder = (*Builder)(nil)

// New creates a semantic builder
func New(base *builder.Base, embedder Embedder, store VectorStore) *Builder {
	return &Builder{
		Base:     base,
		embedder: embedder,
		store:    store,
	}
}

func (b *Builder) Name() string {
	return string(indexing.PrefixSemantic)
}

// BuildIndex writes into a staging index and promotes it once every batch is stored
func (b *Builder) BuildIndex(ctx context.Context) (*builder.Meta, error) {
	name, err := b.IndexName()
	if err != nil {
		return nil, err
	}
	staging := name + ".tmp"

	// Clean up any leftover staging index from previous crash
	if err := b.store.Drop(ctx, staging); err != nil {
		return nil, err
	}

	dimensions := 0
	meta, err := b.Run(ctx, func(ctx context.Context, docs []indexing.Document) error {
		texts := make([]string, len(docs))
		for i, doc := range docs {
			texts[i] = indexing.EmbeddingText(doc)
		}

		vectors, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch: %w", err)
		}
		if len(vectors) != len(docs) {
			return fmt.Errorf("%w: got %d vectors for %d documents", ErrEmbedding, len(vectors), len(docs))
		}
		if len(vectors) > 0 {
			dimensions = len(vectors[0])
		}
		return b.store.Put(ctx, staging, docs, vectors)
	})
	if err != nil {
		if dropErr := b.store.Drop(ctx, staging); dropErr != nil {
			log.Printf("Warning: Failed to drop staging index %s: %v", staging, dropErr)
		}
		return nil, err
	}

	if err := b.store.Promote(ctx, staging, name); err != nil {
		return nil, err
	}

	meta.Dimensions = dimensions
	if err := b.WriteMeta(meta); err != nil {
		return nil, err
	}

	log.Printf("✓ Embedded %d documents into %s (%d dimensions)", meta.Documents, name, dimensions)
	return meta, nil
}

// Search embeds text and returns the k nearest documents of index
func Search(ctx context.Context, embedder Embedder, store VectorStore, index, text, idsName string, k int) ([]Match, error) {
	vector, err := embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return store.Search(ctx, index, vector, k, idsName)
}
