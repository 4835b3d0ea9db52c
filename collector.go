package flamez

import "sync"

// collector is the tracer's shared store of per-thread recording state.
// Each thread appends only to its own partition (the Thread itself), so
// cross-thread contention is limited to the registry map: one insert
// per thread on first touch, plus snapshot and reset. Every critical
// section is short and bounded; nothing here blocks on I/O or waits on
// another goroutine.
type collector struct {
	mu      sync.Mutex
	threads map[string]*Thread
	order   []string // registration order, for stable iteration
}

func newCollector() *collector {
	return &collector{
		threads: make(map[string]*Thread),
	}
}

// thread returns the registered Thread for id, creating it on first
// touch.
func (c *collector) thread(id string, tracer *Tracer) *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()

	if th, ok := c.threads[id]; ok {
		return th
	}

	th := &Thread{tracer: tracer, id: id}
	c.threads[id] = th
	c.order = append(c.order, id)
	return th
}

// threadSnapshot is a point-in-time copy of one thread's state, taken
// for merging. Completed spans are immutable, so copying the slice
// headers into fresh backing arrays is enough; open spans are copied by
// value so the merge can inspect or force-close them without touching
// live stacks.
type threadSnapshot struct {
	id        string
	done      []Span
	open      []openSpan
	rootNotes []NoteRecord
	diags     []Diagnostic
}

// snapshot returns a consistent read-only view of every thread's
// recorded state. Threads still recording are fine: spans they have not
// closed yet appear in open, not done. No thread is blocked for longer
// than one slice copy.
func (c *collector) snapshot() []threadSnapshot {
	c.mu.Lock()
	handles := make([]*Thread, 0, len(c.order))
	for _, id := range c.order {
		handles = append(handles, c.threads[id])
	}
	c.mu.Unlock()

	snaps := make([]threadSnapshot, 0, len(handles))
	for _, th := range handles {
		th.mu.Lock()
		snap := threadSnapshot{
			id:        th.id,
			done:      append([]Span(nil), th.done...),
			open:      append([]openSpan(nil), th.stack...),
			rootNotes: append([]NoteRecord(nil), th.rootNotes...),
			diags:     append([]Diagnostic(nil), th.mismatches...),
		}
		th.mu.Unlock()
		snaps = append(snaps, snap)
	}

	return snaps
}

// reset empties every registered timing stack and discards all recorded
// data. Thread handles stay registered so that handles held by caller
// goroutines remain live across capture sessions; their span ids restart
// from 1.
func (c *collector) reset() {
	c.mu.Lock()
	handles := make([]*Thread, 0, len(c.order))
	for _, id := range c.order {
		handles = append(handles, c.threads[id])
	}
	c.mu.Unlock()

	for _, th := range handles {
		th.mu.Lock()
		th.nextSpanID = 0
		th.stack = nil
		th.done = nil
		th.rootNotes = nil
		th.mismatches = nil
		th.mu.Unlock()
	}
}
