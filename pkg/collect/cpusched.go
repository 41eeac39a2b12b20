package collect

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/probe"
	"github.com/ensoft/marple/pkg/stream"
)

const schedLabel = "context-switches"

// CPUSched samples scheduler activity. Each tick reads the kernel's
// context switch counters and emits the per-CPU delta since the
// previous tick, which the g2 viewer renders as per-track event
// density.
type CPUSched struct {
	counter *probe.PerfCounter
	prev    map[int32]uint64

	base
}

func NewCPUSched(opts ...Option) *CPUSched {
	return &CPUSched{
		base: newBase(config.CPUSched, newOptions(opts...)),
		prev: make(map[int32]uint64),
	}
}

func (c *CPUSched) Attach(ctx context.Context) error {
	if err := c.checkKernel("2.6.32"); err != nil {
		return err
	}

	scope := c.scope()
	c.counter = probe.NewPerfCounter(
		unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES,
		scope.TargetPid(), scope.Cpus,
		probe.WithLogger(c.logger), probe.WithGracePeriod(c.grace),
	)

	return errors.Wrap(c.counter.Attach(ctx), "opening context switch counters")
}

func (c *CPUSched) Collect(ctx context.Context) error {
	ticker := time.NewTicker(sampleInterval(c.config.General.Frequency))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.sample(); err != nil {
				if errors.Is(err, probe.ErrNotAttached) {
					return nil
				}

				return err
			}
		}
	}
}

func (c *CPUSched) sample() error {
	samples, err := c.counter.ReadPerCPU()
	if err != nil {
		return err
	}

	now := c.clock.Now()
	pid := c.scope().TargetPid()
	for _, s := range samples {
		delta := s.Value - c.prev[s.Cpu]
		c.prev[s.Cpu] = s.Value

		c.emit(stream.Record{
			Ts:    now,
			Pid:   pid,
			Tid:   -1,
			Cpu:   s.Cpu,
			Stack: []string{schedLabel},
			Value: float64(delta),
		})
	}

	return nil
}

func (c *CPUSched) Detach() error {
	if c.counter == nil {
		return nil
	}

	return errors.Wrap(c.counter.Detach(), "closing context switch counters")
}

// sampleInterval converts a sampling frequency in Hz into a tick
// period.
func sampleInterval(frequency float64) time.Duration {
	interval := time.Duration(float64(time.Second) / frequency)
	if interval <= 0 {
		interval = time.Millisecond
	}

	return interval
}
