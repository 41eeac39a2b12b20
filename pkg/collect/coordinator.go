package collect

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ensoft/marple/internal/output"
	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// Coordinator drives one collection run end to end. Collectors attach
// sequentially in presentation order, so the order also decides merge
// ties; their pump loops run concurrently under the run deadline; then
// every source is detached, every buffer drained, and the segments
// merged into one stream.
//
// A collector failing at any stage is recorded and the run carries on
// with the rest. Run returns the stream together with a
// *PartialFailure when that happened; only a run with nothing left to
// collect fails outright. With warnings disabled there is no carrying
// on: the first attach failure aborts the whole run.
type Coordinator struct {
	kinds   []config.Interface
	rawOpts []Option

	attached []Collector
	failMu   sync.Mutex
	failures []Failure

	*Options
}

func NewCoordinator(kinds []config.Interface, opts ...Option) *Coordinator {
	return &Coordinator{
		kinds:   kinds,
		rawOpts: opts,
		Options: newOptions(opts...),
	}
}

func (c *Coordinator) Run(ctx context.Context) (*stream.Stream, error) {
	if len(c.kinds) == 0 {
		return nil, errors.Wrap(ErrNothingToCollect, "no interfaces requested")
	}

	start := time.Now()
	if err := c.attach(ctx); err != nil {
		return nil, err
	}

	if c.onReady != nil {
		c.onReady()
	}
	if len(c.attached) == 0 {
		return nil, errors.Wrapf(ErrNothingToCollect, "all %d attaches failed", len(c.kinds))
	}

	runCtx, cancel := context.WithTimeout(ctx, c.config.General.Time)
	defer cancel()

	loopsDone := c.startLoops(runCtx)
	go c.printStatusBar(runCtx, start)

	// A blocking run ends as soon as every source is exhausted; a
	// non-blocking one holds the sources open for the full window even
	// if their tools finish early.
	if c.config.General.Blocking {
		select {
		case <-loopsDone:
		case <-runCtx.Done():
		}
	} else {
		<-runCtx.Done()
	}

	c.stopAll()

	// Detached sources flush their remaining output, shutdown
	// summaries included, before the loops wind down.
	select {
	case <-loopsDone:
	case <-time.After(2 * c.grace):
		c.logger.Warn().Msg("collector loops still draining after grace period")
	}

	s := c.drain(start)

	if failures := c.failed(); len(failures) > 0 {
		return s, &PartialFailure{Total: len(c.kinds), Failures: failures}
	}

	return s, nil
}

// attach arms the collectors one at a time in presentation order.
// With warnings enabled an attach failure skips that collector and is
// reported at the end of the run; with warnings disabled the first
// failure aborts before any collection starts.
func (c *Coordinator) attach(ctx context.Context) error {
	forward := make([]Option, 0, len(c.rawOpts)+3)
	forward = append(forward, c.rawOpts...)
	forward = append(forward, WithConfig(c.config), WithClock(c.clock), WithLogger(c.logger))

	build := c.factory
	if build == nil {
		build = New
	}

	for _, kind := range c.kinds {
		col, err := build(kind, forward...)
		if err == nil {
			if err = col.Attach(ctx); err != nil {
				c.logger.Warn().Err(err).Str("interface", string(kind)).Msg("attach failed, skipping collector")
			}
		}
		if err != nil {
			if abort := c.attachFailed(kind, err); abort != nil {
				return abort
			}
			continue
		}

		c.logger.Info().Str("interface", string(kind)).Msg("collector attached")
		c.attached = append(c.attached, col)
	}

	return nil
}

// attachFailed records the failure and decides whether the run can
// carry on without the collector. When it cannot, everything already
// armed is detached first.
func (c *Coordinator) attachFailed(kind config.Interface, err error) error {
	c.fail(kind, StageAttach, err)
	if c.config.General.Warnings {
		return nil
	}

	c.stopAll()

	return errors.Wrapf(err, "attaching %s with warnings disabled", kind)
}

func (c *Coordinator) startLoops(ctx context.Context) <-chan struct{} {
	var g errgroup.Group
	for _, col := range c.attached {
		g.Go(func() error {
			if err := col.Collect(ctx); err != nil {
				c.fail(col.Name(), StageCollect, err)
				c.logger.Warn().Err(err).Str("interface", string(col.Name())).Msg("collection failed")
			}

			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	return done
}

// stopAll detaches every attached collector in attach order. Detach
// errors are warnings: the data already collected is still delivered.
func (c *Coordinator) stopAll() {
	for _, col := range c.attached {
		if err := col.Detach(); err != nil {
			c.fail(col.Name(), StageDetach, err)
			c.logger.Warn().Err(err).Str("interface", string(col.Name())).Msg("detach failed")
		}
	}
}

// drain empties the buffers in attach order and merges the segments.
func (c *Coordinator) drain(start time.Time) *stream.Stream {
	segments := make([][]stream.Record, 0, len(c.attached))
	kinds := make([]config.Interface, 0, len(c.attached))
	var dropped uint64

	for _, col := range c.attached {
		records, drop := col.Drain()
		segments = append(segments, records)
		kinds = append(kinds, col.Name())
		dropped += drop
		if drop > 0 {
			c.logger.Warn().Uint64("dropped", drop).Str("interface", string(col.Name())).
				Msg("buffer overflowed during collection")
		}
	}

	return &stream.Stream{
		Meta: stream.Meta{
			Start:      start,
			End:        time.Now(),
			Frequency:  c.config.General.Frequency,
			Scope:      c.config.General.Scope.String(),
			Dropped:    dropped,
			Interfaces: kinds,
		},
		Records: stream.Merge(segments...),
	}
}

func (c *Coordinator) fail(kind config.Interface, stage string, err error) {
	c.failMu.Lock()
	defer c.failMu.Unlock()

	c.failures = append(c.failures, Failure{Interface: kind, Stage: stage, Err: err})
}

func (c *Coordinator) failed() []Failure {
	c.failMu.Lock()
	defer c.failMu.Unlock()

	return c.failures
}

func (c *Coordinator) printStatusBar(ctx context.Context, start time.Time) {
	if !c.status {
		return
	}

	total := c.config.General.Time
	output.StatusBar(ctx,
		time.Second, // bar refresh interval.
		func() {
			buffered := 0
			for _, col := range c.attached {
				buffered += col.Buffered()
			}
			output.PrintRight(output.PrettyCollectStatus(
				time.Since(start), total,
				len(c.attached), buffered, len(c.failed()),
			))
		},
	)
}
