// Package flamez is an in-process instrumentation library for building
// flamegraph-style traces. Application code brackets named units of work
// ("spans") on any number of goroutines; flamez reconstructs a single,
// causally-ordered, hierarchical trace of everything that was recorded.
//
// Core Components:
//   - Tracer: process-wide owner of the clock and collector.
//   - Thread: per-goroutine timing stack; push on Start, pop on End.
//   - Span: an immutable record of a completed unit of work.
//   - Trace: the merged forest of span trees across all threads.
//
// Basic Usage:
//
//	// Manual bracketing on the default thread.
//	flamez.Start("read file")
//	readFile()
//	flamez.End("read file")
//
//	// Guard-based bracketing (preferred - End is never forgotten).
//	func compute() {
//		defer flamez.StartGuard("cpu-heavy calculation").End()
//		step1()
//		// Notes annotate a particular instant in time.
//		flamez.Note("cache miss", "")
//		step2()
//	}
//
//	// Merge everything recorded so far into one trace.
//	trace, diags := flamez.Merge(flamez.Options{})
//
// Concurrent Capture:
//
// Each goroutine that records spans obtains its own Thread handle and
// is the only user of that handle:
//
//	th := flamez.GetThread("worker-3")
//	defer th.StartGuard("process batch").End()
//
// Spans never cross threads. All spans share one logical tick counter,
// so the relative order and overlap of spans on different threads is
// still meaningful in the merged trace.
//
// Thread Safety:
//
// Tracer, Merge, and Clear are safe for concurrent use. A Thread handle
// is owned by one goroutine; its operations synchronize only with
// merge-time snapshots, never with other recording goroutines.
package flamez

import "github.com/zoobzio/clockz"

// Tracer owns the shared clock and the collector that accumulates
// completed spans from every thread.
// Safe for concurrent use by multiple goroutines.
type Tracer struct {
	clock     *clock
	collector *collector
}

// New creates a new tracer.
// Uses the real clock for production behavior.
func New() *Tracer {
	return &Tracer{
		clock:     newClock(clockz.RealClock),
		collector: newCollector(),
	}
}

// WithClock returns a new tracer with the specified clock.
// Enables clock injection for deterministic testing.
func (*Tracer) WithClock(clock clockz.Clock) *Tracer {
	return &Tracer{
		clock:     newClock(clock),
		collector: newCollector(),
	}
}

// Thread returns the timing stack for the given thread id, creating and
// registering it on first use. The returned handle must be used by only
// one goroutine at a time.
func (t *Tracer) Thread(id string) *Thread {
	return t.collector.thread(id, t)
}

// Clear discards all recorded spans, notes, and diagnostics and empties
// every registered timing stack, returning the tracer to the state it
// had before any spans were recorded. Guards issued before Clear are
// stale afterwards; callers should quiesce recording goroutines between
// capture sessions.
func (t *Tracer) Clear() {
	t.collector.reset()
}

// DefaultThreadID is the thread id used by the package-level recording
// functions.
const DefaultThreadID = "main"

// defaultTracer backs the package-level API. State accumulates lazily:
// nothing is allocated for a thread until it records a span.
var defaultTracer = New()

// Default returns the tracer used by the package-level functions.
func Default() *Tracer {
	return defaultTracer
}

// GetThread returns the default tracer's timing stack for the given id.
func GetThread(id string) *Thread {
	return defaultTracer.Thread(id)
}

// Start opens a span on the default thread.
func Start(name string) SpanID {
	return defaultTracer.Thread(DefaultThreadID).Start(name)
}

// End closes the innermost open span on the default thread.
func End(name string) error {
	return defaultTracer.Thread(DefaultThreadID).End(name)
}

// StartGuard opens a span on the default thread and returns a guard
// that closes it exactly once.
func StartGuard(name string) *Guard {
	return defaultTracer.Thread(DefaultThreadID).StartGuard(name)
}

// Do runs fn inside a span on the default thread.
func Do(name string, fn func()) {
	defaultTracer.Thread(DefaultThreadID).Do(name, fn)
}

// Note records an instantaneous marker on the default thread.
func Note(name, description string) {
	defaultTracer.Thread(DefaultThreadID).Note(name, description)
}

// Merge produces the unified trace for the default tracer.
func Merge(opts Options) (*Trace, []Diagnostic) {
	return defaultTracer.Merge(opts)
}

// Clear resets the default tracer.
func Clear() {
	defaultTracer.Clear()
}
