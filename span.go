package flamez

import (
	"time"
)

// SpanID identifies a span within its thread. IDs are assigned
// monotonically starting at 1 for the lifetime of a thread; 0 means
// "no span" and is used as the parent id of root spans.
type SpanID uint64

// Span is the immutable record of a completed unit of work. A span is
// reachable only from its thread's timing stack while open; once closed
// it crosses into the collector and is never mutated again.
//
//nolint:govet // Field order matches JSON serialization order
type Span struct {
	ID        SpanID        `json:"id"`
	ParentID  SpanID        `json:"parent_id,omitempty"`
	Name      string        `json:"name"`
	ThreadID  string        `json:"thread_id"`
	StartTick Tick          `json:"start_tick"`
	EndTick   Tick          `json:"end_tick"`
	Start     time.Time     `json:"start_time"`
	Delta     time.Duration `json:"delta"`
	Notes     []NoteRecord        `json:"notes,omitempty"`

	// collapse marks a span closed with EndCollapse; the merge engine
	// may fold it into an adjacent same-name leaf sibling.
	collapse bool
}

// Note is a zero-duration marker attached to the span that was open
// when it was recorded, or to the thread root if no span was open.
// Notes carry their own tick so they can be ordered precisely against
// spans and other notes.
type NoteRecord struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Tick        Tick          `json:"tick"`
	Offset      time.Duration `json:"offset"`
}

// openSpan is the mutable, stack-resident form of a span. It never
// leaves its thread; End converts it into a Span.
type openSpan struct {
	id        SpanID
	parentID  SpanID
	name      string
	startTick Tick
	start     time.Time
	notes     []NoteRecord
}
