package flamez

import (
	"fmt"
	"sync"
)

// Thread is the timing stack for one thread of execution. The chain of
// currently-open spans mirrors the caller's control flow: Start pushes,
// End pops. A Thread is created lazily on first use and lives until the
// tracer is cleared.
//
// A Thread handle must be driven by one goroutine at a time. The mutex
// exists only so that merge-time snapshots and force-close can observe
// a consistent stack; recording operations never contend with each
// other.
type Thread struct {
	tracer *Tracer
	id     string

	mu         sync.Mutex
	nextSpanID SpanID
	stack      []openSpan
	done       []Span
	rootNotes  []NoteRecord
	mismatches []Diagnostic
}

// ID returns the thread identifier this stack records under.
func (th *Thread) ID() string {
	return th.id
}

// Start opens a span named name as a child of the innermost open span
// (or as a root if the stack is empty) and pushes it onto the stack.
// Start always succeeds.
func (th *Thread) Start(name string) SpanID {
	tick := th.tracer.clock.nextTick()
	start := th.tracer.clock.now()

	th.mu.Lock()
	defer th.mu.Unlock()

	th.nextSpanID++
	id := th.nextSpanID

	var parent SpanID
	if n := len(th.stack); n > 0 {
		parent = th.stack[n-1].id
	}

	th.stack = append(th.stack, openSpan{
		id:        id,
		parentID:  parent,
		name:      name,
		startTick: tick,
		start:     start,
	})

	return id
}

// End pops the innermost open span, seals it into an immutable Span,
// and hands it to the collector.
//
// If the stack is empty, End returns a MismatchedEndError and records
// nothing. If name is non-empty and does not match the popped span's
// name, End still pops and records the span under its original name,
// returns a MismatchedEndError, and flags the mismatch as a diagnostic
// on the next merge. Recording something is preferred over refusing:
// this is passive instrumentation and must not destabilize caller code.
func (th *Thread) End(name string) error {
	return th.end(name, false)
}

// EndCollapse is End with the popped span marked collapsible: if it is
// a leaf and its preceding sibling in the merged trace is a same-name
// leaf at the same depth, the two fold into one node with their deltas
// summed. Useful for tight loops that would otherwise flood the trace.
func (th *Thread) EndCollapse(name string) error {
	return th.end(name, true)
}

func (th *Thread) end(name string, collapse bool) error {
	th.mu.Lock()
	defer th.mu.Unlock()

	n := len(th.stack)
	if n == 0 {
		return &MismatchedEndError{ThreadID: th.id, Name: name, EmptyStack: true}
	}

	open := th.stack[n-1]
	th.stack = th.stack[:n-1]

	tick := th.tracer.clock.nextTick()
	now := th.tracer.clock.now()

	th.done = append(th.done, Span{
		ID:        open.id,
		ParentID:  open.parentID,
		Name:      open.name,
		ThreadID:  th.id,
		StartTick: open.startTick,
		EndTick:   tick,
		Start:     open.start,
		Delta:     now.Sub(open.start),
		Notes:     open.notes,
		collapse:  collapse,
	})

	if name != "" && name != open.name {
		th.mismatches = append(th.mismatches, Diagnostic{
			Kind:     DiagNameMismatch,
			ThreadID: th.id,
			SpanID:   open.id,
			Name:     open.name,
			Detail:   fmt.Sprintf("End(%q) closed span %q", name, open.name),
		})
		return &MismatchedEndError{ThreadID: th.id, Name: name, Popped: open.name}
	}

	return nil
}

// Note attaches an instantaneous marker to the innermost open span, or
// to the thread root if no span is open. The stack is unaffected.
func (th *Thread) Note(name, description string) {
	tick := th.tracer.clock.nextTick()
	offset := th.tracer.clock.sinceEpoch(th.tracer.clock.now())

	note := NoteRecord{
		Name:        name,
		Description: description,
		Tick:        tick,
		Offset:      offset,
	}

	th.mu.Lock()
	defer th.mu.Unlock()

	if n := len(th.stack); n > 0 {
		th.stack[n-1].notes = append(th.stack[n-1].notes, note)
	} else {
		th.rootNotes = append(th.rootNotes, note)
	}
}

// StartGuard opens a span and returns a guard that closes it. The guard
// is the preferred bracketing form: deferred at the top of a scope, it
// guarantees the End on every exit path, panics included.
func (th *Thread) StartGuard(name string) *Guard {
	th.Start(name)
	return &Guard{th: th, name: name}
}

// Do runs fn inside a span named name. The span closes when fn returns
// or panics.
func (th *Thread) Do(name string, fn func()) {
	defer th.StartGuard(name).End()
	fn()
}

// Guard closes its span exactly once, however its scope exits.
// A Guard belongs to the goroutine that started it.
type Guard struct {
	th       *Thread
	name     string
	collapse bool
	ended    bool
}

// End closes the guarded span. Safe to call more than once; only the
// first call pops the stack.
func (g *Guard) End() {
	if g.ended {
		return
	}
	g.ended = true
	if g.collapse {
		_ = g.th.EndCollapse(g.name) // mismatches surface as merge diagnostics
	} else {
		_ = g.th.End(g.name)
	}
}

// EndCollapse closes the guarded span marked collapsible.
func (g *Guard) EndCollapse() {
	g.collapse = true
	g.End()
}

// MismatchedEndError reports an End call that found no matching open
// span: either the stack was empty, or the provided name disagreed with
// the span actually popped. In the latter case the pop still happened
// and the span was recorded under its original name.
type MismatchedEndError struct {
	// ThreadID is the thread the End was issued on.
	ThreadID string
	// Name is the name passed to End.
	Name string
	// Popped is the name of the span that was actually closed; empty
	// when the stack was empty.
	Popped string
	// EmptyStack reports that there was no open span to close.
	EmptyStack bool
}

func (e *MismatchedEndError) Error() string {
	if e.EmptyStack {
		return fmt.Sprintf("flamez: End(%q) on thread %q with no open span", e.Name, e.ThreadID)
	}
	return fmt.Sprintf("flamez: End(%q) on thread %q closed span %q", e.Name, e.ThreadID, e.Popped)
}
