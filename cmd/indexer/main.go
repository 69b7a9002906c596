package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/imas/mcp-server/internal/builder"
	"github.com/imas/mcp-server/internal/builder/lexicographic"
	"github.com/imas/mcp-server/internal/builder/semantic"
	"github.com/imas/mcp-server/internal/config"
	"github.com/imas/mcp-server/internal/indexing"
	"github.com/imas/mcp-server/internal/metrics"
	"github.com/imas/mcp-server/tools"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -xml IDSDef.xml -dir index -backend lexicographic -ids core_profiles,equilibrium\n", os.Args[0])
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("Warning: Metrics server stopped: %v", err)
			}
		}()
	}

	log.Printf("IMAS Data Dictionary Indexer v%d", indexing.IndexSchemaVersion)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	source := cfg.XMLPath
	if source == "" {
		source = "bundled sample"
	}
	log.Printf("Data Dictionary: %s", source)

	dd := indexing.NewDataDictionary(tools.DictionarySource(cfg.XMLPath), cfg.IDS)
	base, err := builder.NewBase(dd, cfg.Backend, cfg.IndexDir, cfg.BatchSize)
	if err != nil {
		log.Fatalf("Failed to prepare index directory: %v", err)
	}

	b, cleanup, err := newBuilder(ctx, cfg, base)
	if err != nil {
		log.Fatalf("Failed to create %s builder: %v", cfg.Backend, err)
	}
	defer cleanup()

	meta, err := b.BuildIndex(ctx)
	if err != nil {
		log.Fatalf("Failed to build %s index: %v", b.Name(), err)
	}

	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("✓ Indexing complete!")
	log.Printf("")
	log.Printf("Index details:")
	log.Printf("  Name:         %s", meta.Name)
	log.Printf("  Run:          %s", meta.RunID)
	log.Printf("  DD version:   %s", meta.DDVersion)
	log.Printf("  IDS:          %d %v", len(meta.IDS), meta.IDS)
	log.Printf("  Documents:    %d in %d batches", meta.Documents, meta.Batches)
	log.Printf("  Dropped:      %d duplicates, %d invalid", meta.Duplicates, meta.Invalid)
	if meta.Dimensions > 0 {
		log.Printf("  Dimensions:   %d (Redis %s)", meta.Dimensions, cfg.RedisAddr)
	} else {
		log.Printf("  Location:     %s", filepath.Join(cfg.IndexDir, meta.Name))
	}
	log.Printf("  Schema:       v%d", meta.SchemaVersion)
}

func newBuilder(ctx context.Context, cfg *config.Config, base *builder.Base) (builder.Builder, func(), error) {
	switch cfg.Backend {
	case indexing.PrefixSemantic:
		embedder, err := semantic.NewGenAIEmbedder(ctx, cfg.APIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions, cfg.EmbeddingRPS)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis at %s unreachable: %w", cfg.RedisAddr, err)
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				log.Printf("Warning: Error closing Redis client: %v", err)
			}
		}
		return semantic.New(base, embedder, semantic.NewRedisStore(client)), cleanup, nil
	default:
		return lexicographic.New(base), func() {}, nil
	}
}
