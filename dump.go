package flamez

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// WriteJSON serializes a merged trace as indented JSON. The output is
// the full interchange form: thread ids, span ids and parent links,
// ticks, start times, durations, nested children, and notes.
func WriteJSON(w io.Writer, trace *Trace) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(trace)
}

// WriteText writes a human-readable listing of the trace: one block per
// thread, spans indented by depth with their duration, and a trailing
// self-time line under every span with children showing the time not
// accounted for by them.
func WriteText(w io.Writer, trace *Trace) error {
	for _, tt := range trace.Threads {
		if _, err := fmt.Fprintf(w, "THREAD: %s\n", tt.ThreadID); err != nil {
			return err
		}
		for _, root := range tt.Roots {
			if _, err := writeTextNode(w, root); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func writeTextNode(w io.Writer, node *SpanNode) (float64, error) {
	indent := strings.Repeat("  ", node.Depth)
	ms := float64(node.Delta.Nanoseconds()) / 1e6

	if _, err := fmt.Fprintf(w, "%s| %s: %vms\n", indent, node.Name, ms); err != nil {
		return 0, err
	}

	missing := ms
	for _, child := range node.Children {
		childMS, err := writeTextNode(w, child)
		if err != nil {
			return 0, err
		}
		missing -= childMS
	}

	if len(node.Children) > 0 {
		if _, err := fmt.Fprintf(w, "%s  + %vms\n", indent, missing); err != nil {
			return 0, err
		}
	}

	return ms, nil
}
