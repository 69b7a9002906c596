package indexing_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/imas/mcp-server/internal/indexing"
)

func docStream(docs []indexing.Document, tail error) iter.Seq2[indexing.Document, error] {
	return func(yield func(indexing.Document, error) bool) {
		for _, doc := range docs {
			if !yield(doc, nil) {
				return
			}
		}
		if tail != nil {
			yield(indexing.Document{}, tail)
		}
	}
}

func makeDocs(n int) []indexing.Document {
	docs := make([]indexing.Document, n)
	for i := range docs {
		docs[i] = indexing.Document{
			Path:          fmt.Sprintf("ids/node_%d", i),
			Documentation: "doc",
			Units:         "none",
			IDSName:       "ids",
		}
	}
	return docs
}

func TestBatchify_Sizes(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		size      int
		wantSizes []int
	}{
		{"empty stream", 0, 3, nil},
		{"smaller than batch", 2, 3, []int{2}},
		{"exact multiple", 6, 3, []int{3, 3}},
		{"remainder", 7, 3, []int{3, 3, 1}},
		{"batch of one", 3, 1, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := makeDocs(tt.n)
			var sizes []int
			var flat []indexing.Document
			for batch, err := range indexing.Batchify(docStream(input, nil), tt.size) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				sizes = append(sizes, len(batch))
				flat = append(flat, batch...)
			}

			if fmt.Sprint(sizes) != fmt.Sprint(tt.wantSizes) {
				t.Errorf("batch sizes = %v, want %v", sizes, tt.wantSizes)
			}
			if len(flat) != len(input) {
				t.Fatalf("got %d documents, want %d", len(flat), len(input))
			}
			for i := range flat {
				if flat[i] != input[i] {
					t.Errorf("document %d out of order: %s", i, flat[i].Path)
				}
			}
		})
	}
}

func TestBatchify_DefaultSize(t *testing.T) {
	count := 0
	for batch, err := range indexing.Batchify(docStream(makeDocs(indexing.DefaultBatchSize+1), nil), 0) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		count++
		if count == 1 && len(batch) != indexing.DefaultBatchSize {
			t.Errorf("first batch has %d documents, want %d", len(batch), indexing.DefaultBatchSize)
		}
	}
	if count != 2 {
		t.Errorf("got %d batches, want 2", count)
	}
}

func TestBatcher_DedupAndInvalid(t *testing.T) {
	input := []indexing.Document{
		{Path: "a", Documentation: "first", Units: "none", IDSName: "a"},
		{Path: "a/b", Documentation: "", Units: "m", IDSName: "a"},
		{Path: "a", Documentation: "second", Units: "none", IDSName: "a"},
		{Path: "", Documentation: "no path", Units: "none", IDSName: "a"},
		{Path: "a/c", Documentation: "no ids", Units: "none", IDSName: ""},
		{Path: "a/d", Documentation: "marker", Units: indexing.UnitsAsParent, IDSName: "a"},
		{Path: "a/e", Documentation: "ok", Units: "none", IDSName: "a"},
		{Path: "a/b", Documentation: "dup", Units: "m", IDSName: "a"},
	}

	drops := make(map[string]int)
	batcher := &indexing.Batcher{
		Size: 2,
		OnDrop: func(doc indexing.Document, reason string) {
			drops[reason]++
		},
	}

	var flat []indexing.Document
	for batch, err := range batcher.Batches(docStream(input, nil)) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		flat = append(flat, batch...)
	}

	wantPaths := []string{"a", "a/b", "a/e"}
	if len(flat) != len(wantPaths) {
		t.Fatalf("got %d documents, want %d: %+v", len(flat), len(wantPaths), flat)
	}
	for i, p := range wantPaths {
		if flat[i].Path != p {
			t.Errorf("document %d path = %s, want %s", i, flat[i].Path, p)
		}
	}
	if flat[0].Documentation != "first" {
		t.Errorf("first occurrence must win, got %q", flat[0].Documentation)
	}

	stats := batcher.Stats()
	if stats.Duplicates != 2 || drops[indexing.DropDuplicate] != 2 {
		t.Errorf("duplicates = %d (callback %d), want 2", stats.Duplicates, drops[indexing.DropDuplicate])
	}
	if stats.Invalid != 3 || drops[indexing.DropInvalid] != 3 {
		t.Errorf("invalid = %d (callback %d), want 3", stats.Invalid, drops[indexing.DropInvalid])
	}
	if stats.Batches != 2 || stats.Documents != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBatchify_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	var batches int
	var gotErr error
	for batch, err := range indexing.Batchify(docStream(makeDocs(5), boom), 2) {
		if err != nil {
			gotErr = err
			continue
		}
		batches++
		if len(batch) != 2 {
			t.Errorf("batch size = %d, want 2", len(batch))
		}
	}

	if !errors.Is(gotErr, boom) {
		t.Errorf("error = %v, want boom", gotErr)
	}
	// The fifth document is buffered and discarded with the failed run
	if batches != 2 {
		t.Errorf("got %d batches before the error, want 2", batches)
	}
}

func TestBatchify_EarlyStop(t *testing.T) {
	produced := 0
	source := func(yield func(indexing.Document, error) bool) {
		for _, doc := range makeDocs(100) {
			produced++
			if !yield(doc, nil) {
				return
			}
		}
	}

	for range indexing.Batchify(source, 10) {
		break
	}
	if produced != 10 {
		t.Errorf("source produced %d documents, want 10", produced)
	}
}

func TestDocumentBatches(t *testing.T) {
	d := newDictionary(t, richSchema, nil)

	batcher := &indexing.Batcher{Size: 4}
	sink := &countingSink{}

	var sizes []int
	seen := make(map[string]bool)
	for batch, err := range d.DocumentBatches(context.Background(), batcher, sink) {
		if err != nil {
			t.Fatalf("DocumentBatches() error = %v", err)
		}
		sizes = append(sizes, len(batch))
		for _, doc := range batch {
			if seen[doc.Path] {
				t.Errorf("duplicate path %s", doc.Path)
			}
			seen[doc.Path] = true
		}
	}

	if fmt.Sprint(sizes) != "[4 4 3]" {
		t.Errorf("batch sizes = %v, want [4 4 3]", sizes)
	}
	if sink.advances != 11 {
		t.Errorf("extra sink advanced %d times, want 11", sink.advances)
	}
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]any
		wantErr bool
	}{
		{"valid", indexing.Document{Path: "a", IDSName: "a", Units: "none"}.Fields(), false},
		{"missing documentation", map[string]any{"path": "a", "ids_name": "a"}, true},
		{"missing path", map[string]any{"documentation": "", "ids_name": "a"}, true},
		{"missing ids_name", map[string]any{"path": "a", "documentation": ""}, true},
		{"inheritance marker", indexing.Document{Path: "a", IDSName: "a", Units: "as_parent"}.Fields(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := indexing.ValidateDocument(tt.fields)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDocument() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
