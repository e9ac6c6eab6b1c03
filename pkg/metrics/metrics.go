package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"scanqr/pkg/log"
)

// Conceptual names of the durations and counters recorded while scanning.
const (
	CameraOpen = "CameraOpen" // Camera acquisition.
	Sample     = "Sample"     // Grabbing and scaling one frame.
	Decode     = "Decode"     // One worker round-trip.
	Session    = "Session"    // Show to terminal event.

	TickSkipped = "TickSkipped" // Tick dropped because paused or a decode was outstanding.
	DecodeHit   = "DecodeHit"
	DecodeEmpty = "DecodeEmpty"
	DecodeError = "DecodeError"
)

// Recorder collects duration samples and counters for a scanner process.
// It is safe for concurrent use; a nil *Recorder discards everything.
type Recorder struct {
	printDebug bool
	collectors *Collectors

	mu      sync.Mutex
	samples map[string][]time.Duration
	counts  map[string]int
}

// NewRecorder creates an empty recorder. collectors may be nil when
// Prometheus export is not wanted.
func NewRecorder(printDebug bool, collectors *Collectors) *Recorder {
	return &Recorder{
		printDebug: printDebug,
		collectors: collectors,
		samples:    make(map[string][]time.Duration),
		counts:     make(map[string]int),
	}
}

// Record wraps a function call, measuring its wall-clock time under name.
// The duration is recorded even if f fails.
func (r *Recorder) Record(name string, f func() error) error {
	start := time.Now()
	err := f()
	r.Observe(name, time.Since(start))
	return err
}

// Observe stores a single duration sample.
func (r *Recorder) Observe(name string, d time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.samples[name] = append(r.samples[name], d)
	r.mu.Unlock()

	if name == Decode {
		r.collectors.observeDecode(d)
	}
	if r.printDebug {
		log.Info("[METRIC: %s] Wall: %s", name, d)
	}
}

// Inc bumps the counter called name.
func (r *Recorder) Inc(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.counts[name]++
	r.mu.Unlock()

	switch name {
	case TickSkipped:
		r.collectors.tick("skipped")
	case DecodeHit:
		r.collectors.tick("hit")
	case DecodeEmpty:
		r.collectors.tick("empty")
	case DecodeError:
		r.collectors.tick("error")
	}
}

// SessionEnded counts a finished session by outcome and records its length.
func (r *Recorder) SessionEnded(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.Observe(Session, d)
	r.Inc(Session + "_" + outcome)
	r.collectors.session(outcome)
}

// Samples returns a copy of the samples recorded under name.
func (r *Recorder) Samples(name string) []time.Duration {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.samples[name]...)
}

// Count returns the value of the counter called name.
func (r *Recorder) Count(name string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

// Names returns the sorted names that have at least one duration sample.
func (r *Recorder) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.samples))
	for name := range r.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders all counters in a stable order, for console summaries.
func (r *Recorder) String() string {
	if r == nil {
		return "Recorder{}"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.counts))
	for k := range r.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := "Recorder{"
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s:%d", k, r.counts[k])
	}
	return s + "}"
}
