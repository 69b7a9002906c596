package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/imas/mcp-server/internal/indexing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var DocumentsExtracted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "imas_documents_extracted_total",
	Help: "Number of Data Dictionary elements processed by the extractor",
})

var DocumentsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "imas_documents_dropped_total",
	Help: "Documents removed by the batcher, labelled by reason",
}, []string{"reason"})

var BatchesEmitted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "imas_batches_emitted_total",
	Help: "Number of document batches handed to index builders",
})

var ExtractionProgress = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "imas_extraction_progress_ratio",
	Help: "Fraction of selected elements processed by the running extraction",
})

var buildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "imas_index_build_duration_seconds",
	Help:    "Time spent building an index.",
	Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
}, []string{"backend"})

// CaptureBuild records the duration of one index build
func CaptureBuild(backend string, elapsed time.Duration) {
	buildDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// Sink is an indexing.ProgressSink that feeds the extraction metrics
type Sink struct {
	mu        sync.Mutex
	total     int
	completed int
}

var _ indexing.ProgressSink = (*Sink)(nil)

// NewSink creates a sink for an extraction of total elements
func NewSink(total int) *Sink {
	ExtractionProgress.Set(0)
	return &Sink{total: total}
}

// Advance records one processed element
func (s *Sink) Advance() {
	DocumentsExtracted.Inc()

	s.mu.Lock()
	s.completed++
	completed := s.completed
	s.mu.Unlock()

	if s.total > 0 {
		ExtractionProgress.Set(float64(completed) / float64(s.total))
	}
}

// UpdateDescription is a no-op; descriptions are not exported as metrics
func (s *Sink) UpdateDescription(string) {}

// ObserveBatcher wires the batcher callbacks to the drop and batch counters
func ObserveBatcher(b *indexing.Batcher) {
	onDrop, onBatch := b.OnDrop, b.OnBatch
	b.OnDrop = func(doc indexing.Document, reason string) {
		DocumentsDropped.WithLabelValues(reason).Inc()
		if onDrop != nil {
			onDrop(doc, reason)
		}
	}
	b.OnBatch = func(batch []indexing.Document) {
		BatchesEmitted.Inc()
		if onBatch != nil {
			onBatch(batch)
		}
	}
}

// Router returns a chi router exposing /metrics
func Router() *chi.Mux {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	return router
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: metrics server shutdown: %v", err)
		}
	}()

	log.Printf("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
