package semantic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Embedder turns texts into vectors of a fixed dimension. Documents and search
// queries are embedded separately so models can optimise each side.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Gemini task types
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

const (
	maxTextsPerRequest = 100
	maxRetries         = 5
	initialDelay       = 1 * time.Second
	maxDelay           = 30 * time.Second
	multiplier         = 2.0
)

// ErrEmbedding is returned when the embedding service answers with unusable data
var ErrEmbedding = errors.New("embedding failed")

// RetryPolicy controls the exponential backoff between failed requests
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy retries five times, starting at one second and capping at thirty
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:   maxRetries,
	InitialDelay: initialDelay,
	MaxDelay:     maxDelay,
	Multiplier:   multiplier,
}

// Do calls fn until it succeeds, the retries are exhausted or ctx ends
func (p RetryPolicy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	delay := p.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("Warning: %s failed (attempt %d/%d): %v, retrying in %v",
				operation, attempt, p.MaxRetries, lastErr, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * p.Multiplier)
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%s failed after %d retries: %w", operation, p.MaxRetries, lastErr)
}

// GenAIEmbedder embeds texts with the Gemini embedding API
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int32
	limiter    *rate.Limiter
	retry      RetryPolicy

	// request sends one group of texts; tests replace it
	request func(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

var _ Embedder = (*GenAIEmbedder)(nil)

// NewGenAIEmbedder creates an embedder paced at rps requests per second
func NewGenAIEmbedder(ctx context.Context, apiKey, model string, dimensions int, rps float64) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: an API key is required", ErrEmbedding)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	log.Printf("✓ Embedding client created (model %s, %d dimensions)", model, dimensions)

	e := &GenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: int32(dimensions),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retry:      DefaultRetryPolicy,
	}
	e.request = e.embedGroup
	return e, nil
}

// Embed embeds documents, sending texts in groups of at most 100 per request
func (e *GenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, taskRetrievalDocument)
}

// EmbedQuery embeds a single search query
func (e *GenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one query", ErrEmbedding, len(vectors))
	}
	return vectors[0], nil
}

func (e *GenAIEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += maxTextsPerRequest {
		end := min(start+maxTextsPerRequest, len(texts))
		group := texts[start:end]

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var groupVectors [][]float32
		err := e.retry.Do(ctx, "embedding request", func(ctx context.Context) error {
			var err error
			groupVectors, err = e.request(ctx, group, taskType)
			return err
		})
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, groupVectors...)
	}

	return vectors, nil
}

func (e *GenAIEmbedder) embedGroup(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}

	res, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &e.dimensions,
		TaskType:             taskType,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbedding, len(res.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, embedding := range res.Embeddings {
		vectors[i] = embedding.Values
	}
	return vectors, nil
}
