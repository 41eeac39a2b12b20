package collect

import (
	"context"

	"github.com/ensoft/marple/internal/kernel"
	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// Collector gathers one interface's data and normalizes it into
// records. The coordinator drives the lifecycle in order: Attach arms
// the underlying probe, Collect pumps and parses until the context
// ends or the source closes, Detach disarms, and Drain hands over the
// records exactly once.
//
// Attach failures are recoverable at the run level: the coordinator
// skips the collector and carries on with the rest.
type Collector interface {
	Name() config.Interface
	Attach(ctx context.Context) error
	Collect(ctx context.Context) error
	Detach() error
	Drain() ([]stream.Record, uint64)
	Buffered() int
}

// base carries the pieces every collector shares: the record buffer,
// the run options and the scope guard.
type base struct {
	kind config.Interface
	buf  *stream.Buffer

	*Options
}

func newBase(kind config.Interface, o *Options) base {
	return base{
		kind:    kind,
		buf:     stream.NewBuffer(o.bufferSize),
		Options: o,
	}
}

func (b *base) Name() config.Interface {
	return b.kind
}

// emit appends a normalized record. Scope is enforced at the source
// wherever the probe technology allows; this guard catches what slips
// through, such as pre-filter events still in a tool's pipe.
func (b *base) emit(r stream.Record) {
	r.Kind = b.kind
	if !b.config.General.Scope.Allows(r.Pid, r.Cpu) {
		return
	}

	b.buf.Append(r)
}

// Drain returns the collected records in timestamp order along with
// the overflow count.
func (b *base) Drain() ([]stream.Record, uint64) {
	records := b.buf.Drain()
	stream.Sort(records)

	return records, b.buf.Dropped()
}

// Buffered reports how many records are waiting to be drained.
func (b *base) Buffered() int {
	return b.buf.Len()
}

// checkKernel gates an attach on the minimum kernel release the
// interface needs.
func (b *base) checkKernel(required string) error {
	if required == "" {
		return nil
	}

	return kernel.Check(required)
}

func (b *base) scope() config.Scope {
	return b.config.General.Scope
}
