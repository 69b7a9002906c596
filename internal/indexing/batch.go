package indexing

import (
	"context"
	"iter"
	"log"
)

// Drop reasons reported to Batcher.OnDrop
const (
	DropDuplicate = "duplicate"
	DropInvalid   = "invalid"
)

// BatchStats summarises one batching run
type BatchStats struct {
	Batches    int
	Documents  int
	Duplicates int
	Invalid    int
}

// Batcher groups a document stream into fixed-size batches
type Batcher struct {
	// Size is the number of documents per batch (DefaultBatchSize if <= 0)
	Size int

	// OnDrop, if set, is called for every document removed from the stream
	OnDrop func(doc Document, reason string)

	// OnBatch, if set, is called before each batch is handed to the consumer
	OnBatch func(batch []Document)

	stats BatchStats
}

// Batchify groups docs into batches of size, dropping duplicate paths and invalid records
func Batchify(docs iter.Seq2[Document, error], size int) iter.Seq2[[]Document, error] {
	b := &Batcher{Size: size}
	return b.Batches(docs)
}

// Stats returns the counters of the last completed or running batching
func (b *Batcher) Stats() BatchStats {
	return b.stats
}

// Batches deduplicates docs by path (first occurrence wins), drops records failing
// ValidateDocument, and yields a batch every Size documents plus a final partial batch.
// Documents keep their relative order. Upstream errors are logged and yielded, ending
// the sequence. Each batch is a fresh slice owned by the consumer.
func (b *Batcher) Batches(docs iter.Seq2[Document, error]) iter.Seq2[[]Document, error] {
	size := b.Size
	if size <= 0 {
		size = DefaultBatchSize
	}

	return func(yield func([]Document, error) bool) {
		b.stats = BatchStats{}
		processed := make(map[string]struct{})
		batch := make([]Document, 0, size)
		reportedInvalid := false

		emit := func() bool {
			out := batch
			batch = make([]Document, 0, size)
			b.stats.Batches++
			if b.OnBatch != nil {
				b.OnBatch(out)
			}
			return yield(out, nil)
		}

		for doc, err := range docs {
			if err != nil {
				log.Printf("Error during document batch generation: %v", err)
				yield(nil, err)
				return
			}

			if doc.Path != "" {
				if _, seen := processed[doc.Path]; seen {
					b.stats.Duplicates++
					b.drop(doc, DropDuplicate)
					continue
				}
			}

			if err := ValidateDocument(doc.Fields()); err != nil {
				b.stats.Invalid++
				if !reportedInvalid {
					log.Printf("Warning: Dropping malformed document %q: %v", doc.Path, err)
					reportedInvalid = true
				}
				b.drop(doc, DropInvalid)
				continue
			}

			processed[doc.Path] = struct{}{}
			batch = append(batch, doc)
			b.stats.Documents++

			if len(batch) >= size {
				if !emit() {
					return
				}
			}
		}

		if len(batch) > 0 {
			if !emit() {
				return
			}
		}

		log.Printf("Completed document batch generation: %d batches, %d total documents (%d duplicates, %d invalid dropped)",
			b.stats.Batches, b.stats.Documents, b.stats.Duplicates, b.stats.Invalid)
	}
}

func (b *Batcher) drop(doc Document, reason string) {
	if b.OnDrop != nil {
		b.OnDrop(doc, reason)
	}
}

// DocumentBatches extracts and batches documents with a single progress tracker shared
// by extraction and batching. Extra sinks (metrics) receive the same notifications.
// The tracker is released when the sequence ends or the consumer stops.
func (d *DataDictionary) DocumentBatches(ctx context.Context, batcher *Batcher, sinks ...ProgressSink) iter.Seq2[[]Document, error] {
	if batcher == nil {
		batcher = &Batcher{Size: DefaultBatchSize}
	}

	return func(yield func([]Document, error) bool) {
		total, err := d.TotalElements()
		if err != nil {
			yield(nil, err)
			return
		}

		tracker := NewLogTracker("Processing IDS attributes", total)
		defer tracker.Close()

		sink := Tee(append([]ProgressSink{tracker}, sinks...)...)
		for batch, err := range batcher.Batches(d.Documents(ctx, sink)) {
			if !yield(batch, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}
