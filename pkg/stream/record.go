package stream

import (
	"github.com/ensoft/marple/pkg/config"
)

// Record is one normalized datapoint. Every collector, whatever its
// source speaks natively, reduces its output to this shape so that
// displays and the data file never see interface-specific formats.
type Record struct {
	// Ts is nanoseconds since the start of the run.
	Ts int64 `json:"ts"`

	// Pid, Tid and Cpu attribute the datapoint. A source that cannot
	// attribute a dimension sets it to -1.
	Pid int32 `json:"pid"`
	Tid int32 `json:"tid"`
	Cpu int32 `json:"cpu"`

	// Stack holds the call stack innermost frame first, or a single
	// label for sources without stacks.
	Stack []string `json:"stack,omitempty"`

	// Value is the sample weight: a count, a latency in microseconds,
	// a byte size, whatever the interface measures.
	Value float64 `json:"value"`

	// Kind is the interface that produced the record.
	Kind config.Interface `json:"kind"`
}

// Label returns the first stack entry, for records that carry a single
// label instead of a call chain.
func (r Record) Label() string {
	if len(r.Stack) == 0 {
		return ""
	}

	return r.Stack[0]
}
