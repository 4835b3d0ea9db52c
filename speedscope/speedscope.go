// Package speedscope converts merged flamez traces to the speedscope
// interchange format (https://www.speedscope.app/file-format-schema.json)
// so they can be dropped into the speedscope viewer or any tool that
// consumes its evented profiles.
//
// Each thread becomes one evented profile. Event positions are logical
// ticks rather than wall-clock instants: ticks are the trace's ordering
// authority, so open/close events are guaranteed to nest correctly,
// which wall-clock arithmetic across nested spans cannot promise.
package speedscope

import (
	"encoding/json"
	"io"

	"github.com/zoobzio/flamez"
)

// SchemaURL identifies the speedscope file format schema.
const SchemaURL = "https://www.speedscope.app/file-format-schema.json"

// File is a complete speedscope document.
type File struct {
	Schema             string    `json:"$schema"`
	Profiles           []Profile `json:"profiles"`
	Shared             Shared    `json:"shared"`
	ActiveProfileIndex *int      `json:"activeProfileIndex,omitempty"`
	Exporter           string    `json:"exporter,omitempty"`
	Name               string    `json:"name,omitempty"`
}

// Profile is one thread's evented profile.
type Profile struct {
	Type       ProfileType `json:"type"`
	Name       string      `json:"name"`
	Unit       ValueUnit   `json:"unit"`
	StartValue uint64      `json:"startValue"`
	EndValue   uint64      `json:"endValue"`
	Events     []Event     `json:"events"`
}

// ProfileType discriminates speedscope profile encodings. flamez only
// emits evented profiles.
type ProfileType string

// ProfileEvented is the open/close event encoding.
const ProfileEvented ProfileType = "evented"

// Event opens or closes a frame at a point on the profile's value axis.
type Event struct {
	Type  EventType `json:"type"`
	At    uint64    `json:"at"`
	Frame int       `json:"frame"`
}

// EventType is the speedscope event discriminator.
type EventType string

const (
	// EventOpen marks the start of a frame.
	EventOpen EventType = "O"
	// EventClose marks the end of a frame.
	EventClose EventType = "C"
)

// Shared holds the interned frame table referenced by event indices.
type Shared struct {
	Frames []Frame `json:"frames"`
}

// Frame is an interned span name.
type Frame struct {
	Name string `json:"name"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`
}

// ValueUnit is the unit of a profile's value axis.
type ValueUnit string

const (
	UnitNone         ValueUnit = "none"
	UnitNanoseconds  ValueUnit = "nanoseconds"
	UnitMicroseconds ValueUnit = "microseconds"
	UnitMilliseconds ValueUnit = "milliseconds"
	UnitSeconds      ValueUnit = "seconds"
	UnitBytes        ValueUnit = "bytes"
)

// FromTrace converts a merged trace into a speedscope file. Span names
// are interned into the shared frame table; every span contributes an
// open event at its start tick and a close event at its end tick.
func FromTrace(trace *flamez.Trace) *File {
	frames := &frameSet{index: make(map[string]int)}

	profiles := make([]Profile, 0, len(trace.Threads))
	for _, tt := range trace.Threads {
		if len(tt.Roots) == 0 {
			continue
		}

		var events []Event
		for _, root := range tt.Roots {
			appendEvents(frames, &events, root)
		}

		profiles = append(profiles, Profile{
			Type:       ProfileEvented,
			Name:       tt.ThreadID,
			Unit:       UnitNone,
			StartValue: uint64(tt.Roots[0].StartTick),
			EndValue:   uint64(tt.Roots[len(tt.Roots)-1].EndTick),
			Events:     events,
		})
	}

	return &File{
		Schema:   SchemaURL,
		Profiles: profiles,
		Shared:   Shared{Frames: frames.frames},
	}
}

// Write converts the trace and serializes it to w.
func Write(w io.Writer, trace *flamez.Trace) error {
	return json.NewEncoder(w).Encode(FromTrace(trace))
}

// frameSet interns frames by span name, preserving insertion order.
type frameSet struct {
	index  map[string]int
	frames []Frame
}

func (f *frameSet) intern(name string) int {
	if i, ok := f.index[name]; ok {
		return i
	}
	i := len(f.frames)
	f.index[name] = i
	f.frames = append(f.frames, Frame{Name: name})
	return i
}

func appendEvents(frames *frameSet, events *[]Event, node *flamez.SpanNode) {
	frame := frames.intern(node.Name)
	*events = append(*events, Event{Type: EventOpen, At: uint64(node.StartTick), Frame: frame})
	for _, child := range node.Children {
		appendEvents(frames, events, child)
	}
	*events = append(*events, Event{Type: EventClose, At: uint64(node.EndTick), Frame: frame})
}
