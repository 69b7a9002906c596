package indexing

import (
	"log"
	"sync"
	"time"
)

// ProgressSink receives progress notifications from the extractor.
// The extractor never depends on what a sink does with them.
type ProgressSink interface {
	// Advance records one processed element
	Advance()

	// UpdateDescription replaces the description of the running task
	UpdateDescription(description string)
}

// NopProgress discards all notifications
type NopProgress struct{}

func (NopProgress) Advance()                  {}
func (NopProgress) UpdateDescription(string) {}

// Tee fans notifications out to several sinks, skipping nil ones
func Tee(sinks ...ProgressSink) ProgressSink {
	var active multiSink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	switch len(active) {
	case 0:
		return NopProgress{}
	case 1:
		return active[0]
	}
	return active
}

type multiSink []ProgressSink

func (m multiSink) Advance() {
	for _, s := range m {
		s.Advance()
	}
}

func (m multiSink) UpdateDescription(description string) {
	for _, s := range m {
		s.UpdateDescription(description)
	}
}

// LogTracker is a ProgressSink that reports to the standard logger.
// It logs at every tenth of the total and once more on Close.
type LogTracker struct {
	mu          sync.Mutex
	description string
	total       int
	completed   int
	nextReport  int
	started     time.Time
	closed      bool
}

// NewLogTracker starts tracking a task of total elements (0 if unknown)
func NewLogTracker(description string, total int) *LogTracker {
	t := &LogTracker{
		description: description,
		total:       total,
		started:     time.Now(),
	}
	t.nextReport = t.step()
	log.Printf("%s: started (%d elements)", description, total)
	return t
}

func (t *LogTracker) step() int {
	if t.total <= 0 {
		return 1000
	}
	step := t.total / 10
	if step == 0 {
		step = 1
	}
	return step
}

// Advance records one processed element
func (t *LogTracker) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	if t.completed < t.nextReport {
		return
	}
	t.nextReport += t.step()

	elapsed := time.Since(t.started).Round(time.Millisecond)
	if t.total > 0 {
		log.Printf("%s: %d/%d (%3.0f%%) in %v", t.description, t.completed, t.total,
			100*float64(t.completed)/float64(t.total), elapsed)
	} else {
		log.Printf("%s: %d in %v", t.description, t.completed, elapsed)
	}
}

// UpdateDescription replaces the task description used in later log lines
func (t *LogTracker) UpdateDescription(description string) {
	t.mu.Lock()
	t.description = description
	t.mu.Unlock()
}

// Completed returns the number of advances so far
func (t *LogTracker) Completed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Close releases the tracker. It is safe to call more than once.
func (t *LogTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	log.Printf("✓ %s: %d/%d in %v", t.description, t.completed, t.total,
		time.Since(t.started).Round(time.Millisecond))
}

// PerformanceTimer logs the start of operation and returns a func that logs its duration
//
//	defer indexing.PerformanceTimer("lexicographic index build")()
func PerformanceTimer(operation string) func() {
	start := time.Now()
	log.Printf("Starting %s", operation)
	return func() {
		log.Printf("Completed %s in %v", operation, time.Since(start).Round(time.Millisecond))
	}
}
