package flamez

import (
	"fmt"
	"sort"
)

// Options controls how Merge treats spans still open at merge time.
type Options struct {
	// ForceCloseOpenSpans closes any span still open at merge time at
	// the current tick so no work is lost. When false, open spans are
	// excluded and reported as IncompleteTrace diagnostics.
	ForceCloseOpenSpans bool `json:"force_close_open_spans"`
}

// DiagnosticKind classifies a merge diagnostic.
type DiagnosticKind string

const (
	// DiagCorruptTrace flags a recorded span whose interval escapes its
	// parent's. The record is kept: correctness of what is reported
	// matters more than completeness, and silently dropping evidence of
	// a recording bug would hide it.
	DiagCorruptTrace DiagnosticKind = "corrupt_trace"
	// DiagIncompleteTrace flags a span that was still open at merge
	// time and therefore excluded from the trace.
	DiagIncompleteTrace DiagnosticKind = "incomplete_trace"
	// DiagNameMismatch flags a span that was closed by an End carrying
	// the wrong name. The span was recorded under its original name.
	DiagNameMismatch DiagnosticKind = "name_mismatch"
)

// Diagnostic describes a defect in the recorded data, attached to the
// merge result rather than raised as an error: the rest of the trace is
// still usable, and callers decide whether diagnostics are fatal.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	ThreadID string         `json:"thread_id"`
	SpanID   SpanID         `json:"span_id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Detail   string         `json:"detail"`
}

// Trace is the unified output of a merge: one subtree per thread,
// combined on the shared tick timeline. A Trace is immutable once
// produced and owned entirely by the caller.
type Trace struct {
	Threads []ThreadTrace `json:"threads"`
}

// ThreadTrace is one thread's forest of span trees plus any notes that
// were recorded while the thread's stack was empty.
type ThreadTrace struct {
	ThreadID string      `json:"thread_id"`
	Roots    []*SpanNode `json:"spans"`
	Notes    []NoteRecord      `json:"notes,omitempty"`
}

// SpanNode is a span with its children nested in chronological order.
type SpanNode struct {
	Span
	Depth    int         `json:"depth"`
	Children []*SpanNode `json:"children,omitempty"`
}

// Merge takes a point-in-time snapshot of the collector and builds the
// unified trace. Threads that are still recording are fine: whatever
// they have completed so far is merged, open spans follow the Options
// policy. Merging is a single-threaded computation over the snapshot
// and holds no locks while building trees.
func (t *Tracer) Merge(opts Options) (*Trace, []Diagnostic) {
	snaps := t.collector.snapshot()

	trace := &Trace{}
	var diags []Diagnostic

	for _, snap := range snaps {
		diags = append(diags, snap.diags...)

		spans := snap.done
		if len(snap.open) > 0 {
			if opts.ForceCloseOpenSpans {
				spans = append(append([]Span(nil), spans...), t.forceClose(snap)...)
			} else {
				for _, open := range snap.open {
					diags = append(diags, Diagnostic{
						Kind:     DiagIncompleteTrace,
						ThreadID: snap.id,
						SpanID:   open.id,
						Name:     open.name,
						Detail:   fmt.Sprintf("span %q still open at merge time; excluded", open.name),
					})
				}
			}
		}

		tt, corrupt := buildThreadTrace(snap.id, spans, snap.rootNotes)
		diags = append(diags, corrupt...)
		if tt != nil {
			trace.Threads = append(trace.Threads, *tt)
		}
	}

	sort.SliceStable(trace.Threads, func(i, j int) bool {
		return firstActivity(&trace.Threads[i]) < firstActivity(&trace.Threads[j])
	})

	return trace, diags
}

// forceClose seals a snapshot's open spans at the current tick,
// innermost first so every child still ends before its parent.
func (t *Tracer) forceClose(snap threadSnapshot) []Span {
	closed := make([]Span, 0, len(snap.open))
	for i := len(snap.open) - 1; i >= 0; i-- {
		open := snap.open[i]
		tick := t.clock.nextTick()
		now := t.clock.now()
		closed = append(closed, Span{
			ID:        open.id,
			ParentID:  open.parentID,
			Name:      open.name,
			ThreadID:  snap.id,
			StartTick: open.startTick,
			EndTick:   tick,
			Start:     open.start,
			Delta:     now.Sub(open.start),
			Notes:     open.notes,
		})
	}
	return closed
}

// buildThreadTrace reconstructs one thread's span forest from its flat
// record list. Parent/child links were established at record time via
// ParentID; siblings are ordered by start tick. Returns nil when the
// thread recorded nothing.
func buildThreadTrace(threadID string, spans []Span, rootNotes []NoteRecord) (*ThreadTrace, []Diagnostic) {
	if len(spans) == 0 && len(rootNotes) == 0 {
		return nil, nil
	}

	nodes := make(map[SpanID]*SpanNode, len(spans))
	for i := range spans {
		nodes[spans[i].ID] = &SpanNode{Span: spans[i]}
	}

	// Processing in start-tick order attaches every parent before its
	// children and leaves each Children slice chronologically sorted.
	sorted := append([]Span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTick < sorted[j].StartTick
	})

	var diags []Diagnostic
	var roots []*SpanNode
	for _, sp := range sorted {
		node := nodes[sp.ID]

		parent, ok := nodes[sp.ParentID]
		if sp.ParentID == 0 || !ok {
			// A missing parent means the parent was still open and
			// excluded; its completed children surface as roots rather
			// than vanish.
			roots = append(roots, node)
			continue
		}

		if sp.StartTick < parent.StartTick || sp.EndTick > parent.EndTick {
			diags = append(diags, Diagnostic{
				Kind:     DiagCorruptTrace,
				ThreadID: threadID,
				SpanID:   sp.ID,
				Name:     sp.Name,
				Detail: fmt.Sprintf("span %q [%d,%d] escapes parent %q [%d,%d]",
					sp.Name, sp.StartTick, sp.EndTick,
					parent.Name, parent.StartTick, parent.EndTick),
			})
		}

		parent.Children = append(parent.Children, node)
	}

	for _, root := range roots {
		finishNode(root, 0)
	}

	return &ThreadTrace{
		ThreadID: threadID,
		Roots:    roots,
		Notes:    rootNotes,
	}, diags
}

// finishNode assigns depths and folds collapsible leaf runs. A span
// closed with EndCollapse absorbs into its preceding sibling when both
// are leaves with the same name: the absorbed span contributes its end
// tick, delta, and notes, so EndTick-StartTick of a folded node can
// exceed its summed Delta.
func finishNode(node *SpanNode, depth int) {
	node.Depth = depth

	if len(node.Children) > 0 {
		out := node.Children[:0]
		for _, child := range node.Children {
			if child.collapse && len(child.Children) == 0 && len(out) > 0 {
				last := out[len(out)-1]
				if last.Name == child.Name && len(last.Children) == 0 {
					last.EndTick = child.EndTick
					last.Delta += child.Delta
					if len(child.Notes) > 0 {
						// Fresh backing array: record note slices are
						// shared with the collector and must stay
						// untouched.
						merged := make([]NoteRecord, 0, len(last.Notes)+len(child.Notes))
						merged = append(merged, last.Notes...)
						last.Notes = append(merged, child.Notes...)
					}
					continue
				}
			}
			out = append(out, child)
		}
		node.Children = out
	}

	for _, child := range node.Children {
		finishNode(child, depth+1)
	}
}

// firstActivity is the earliest tick a thread recorded anything at,
// used to order thread subtrees deterministically.
func firstActivity(tt *ThreadTrace) Tick {
	first := Tick(^uint64(0))
	if len(tt.Roots) > 0 && tt.Roots[0].StartTick < first {
		first = tt.Roots[0].StartTick
	}
	if len(tt.Notes) > 0 && tt.Notes[0].Tick < first {
		first = tt.Notes[0].Tick
	}
	return first
}
