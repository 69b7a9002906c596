package semantic

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/imas/mcp-server/internal/indexing"
	"github.com/redis/go-redis/v9"
)

// Match is one nearest-neighbour result
type Match struct {
	Document indexing.Document `json:"document"`
	Score    float64           `json:"score"`
}

// VectorStore keeps documents and their vectors per index name
type VectorStore interface {
	// Put stores docs with their vectors under index
	Put(ctx context.Context, index string, docs []indexing.Document, vectors [][]float32) error

	// Promote replaces index with the content of staging
	Promote(ctx context.Context, staging, index string) error

	// Drop removes every entry of index
	Drop(ctx context.Context, index string) error

	// Count returns the number of stored documents
	Count(ctx context.Context, index string) (int64, error)

	// Search returns the k entries most similar to query, optionally within one IDS
	Search(ctx context.Context, index string, query []float32, k int, idsName string) ([]Match, error)
}

// RedisStore keeps two hashes per index: path to vector bytes and path to document JSON
type RedisStore struct {
	client *redis.Client
}

var _ VectorStore = (*RedisStore)(nil)

// NewRedisStore wraps a go-redis client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func vectorsKey(index string) string { return "imas:" + index + ":vectors" }
func docsKey(index string) string    { return "imas:" + index + ":docs" }

func (s *RedisStore) Put(ctx context.Context, index string, docs []indexing.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("%d documents but %d vectors", len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil
	}

	vectorFields := make([]interface{}, 0, 2*len(docs))
	docFields := make([]interface{}, 0, 2*len(docs))
	for i, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", doc.Path, err)
		}
		vectorFields = append(vectorFields, doc.Path, EncodeVector(vectors[i]))
		docFields = append(docFields, doc.Path, data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, vectorsKey(index), vectorFields...)
		pipe.HSet(ctx, docsKey(index), docFields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}
	return nil
}

func (s *RedisStore) Promote(ctx context.Context, staging, index string) error {
	count, err := s.Count(ctx, staging)
	if err != nil {
		return err
	}
	if count == 0 {
		return s.Drop(ctx, index)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Rename(ctx, vectorsKey(staging), vectorsKey(index))
		pipe.Rename(ctx, docsKey(staging), docsKey(index))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to promote %s: %w", staging, err)
	}
	return nil
}

func (s *RedisStore) Drop(ctx context.Context, index string) error {
	if err := s.client.Del(ctx, vectorsKey(index), docsKey(index)).Err(); err != nil {
		return fmt.Errorf("failed to drop %s: %w", index, err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context, index string) (int64, error) {
	n, err := s.client.HLen(ctx, docsKey(index)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to count %s: %w", index, err)
	}
	return n, nil
}

func (s *RedisStore) Search(ctx context.Context, index string, query []float32, k int, idsName string) ([]Match, error) {
	rawVectors, err := s.client.HGetAll(ctx, vectorsKey(index)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	rawDocs, err := s.client.HGetAll(ctx, docsKey(index)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	matches := make([]Match, 0, len(rawVectors))
	for path, raw := range rawVectors {
		var doc indexing.Document
		if err := json.Unmarshal([]byte(rawDocs[path]), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", path, err)
		}
		if idsName != "" && doc.IDSName != idsName {
			continue
		}
		vector, err := DecodeVector([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("vector %s: %w", path, err)
		}
		matches = append(matches, Match{Document: doc, Score: Cosine(query, vector)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Document.Path < matches[j].Document.Path
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// EncodeVector packs v as little-endian float32 values
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector reverses EncodeVector
func DecodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("invalid vector length %d", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero or
// their lengths differ
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
