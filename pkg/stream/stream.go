package stream

import (
	"time"

	"github.com/ensoft/marple/pkg/config"
)

// Meta describes the run that produced a stream.
type Meta struct {
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Frequency  float64            `json:"frequency"`
	Scope      string             `json:"scope"`
	Dropped    uint64             `json:"dropped"`
	Interfaces []config.Interface `json:"interfaces"`
}

// Stream is the merged, timestamp-ordered output of a collection run.
type Stream struct {
	Meta    Meta
	Records []Record
}

// Empty reports whether the stream carries no records.
func (s *Stream) Empty() bool {
	return len(s.Records) == 0
}

// View returns the records of a single interface, preserving order and
// sharing the run metadata. The record slice is shared, not copied.
func (s *Stream) View(kind config.Interface) *Stream {
	out := &Stream{Meta: s.Meta}
	out.Meta.Interfaces = []config.Interface{kind}

	for _, r := range s.Records {
		if r.Kind == kind {
			out.Records = append(out.Records, r)
		}
	}

	return out
}

// Kinds lists the interfaces that actually contributed records, in
// first-appearance order.
func (s *Stream) Kinds() []config.Interface {
	seen := make(map[config.Interface]bool)
	var kinds []config.Interface
	for _, r := range s.Records {
		if !seen[r.Kind] {
			seen[r.Kind] = true
			kinds = append(kinds, r.Kind)
		}
	}

	return kinds
}
