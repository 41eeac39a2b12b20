package probe

import (
	"context"
	"encoding/binary"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PerfCounter opens hardware or software counting events through
// perf_event_open. A pid-scoped counter follows one process across
// CPUs; a system-wide one opens a file descriptor per online CPU so
// readings can be attributed.
type PerfCounter struct {
	eventType   uint32
	eventConfig uint64
	pid         int32
	cpus        []int32

	fds []counterFD

	lifecycle
	*Options
}

type counterFD struct {
	fd  int
	cpu int32
}

// CounterSample is one cumulative counter reading.
type CounterSample struct {
	Cpu   int32
	Value uint64
}

// NewPerfCounter prepares a counter for one perf event type and
// config, such as PERF_TYPE_SOFTWARE and PERF_COUNT_SW_CONTEXT_SWITCHES.
// pid -1 with no cpus means system-wide across all online CPUs.
func NewPerfCounter(eventType uint32, eventConfig uint64, pid int32, cpus []int32, opts ...Option) *PerfCounter {
	return &PerfCounter{
		eventType:   eventType,
		eventConfig: eventConfig,
		pid:         pid,
		cpus:        cpus,
		Options:     newOptions(opts...),
	}
}

// Attach opens and enables the counters.
func (c *PerfCounter) Attach(_ context.Context) error {
	if err := c.beginAttach(); err != nil {
		return err
	}

	attr := &unix.PerfEventAttr{
		Type:   c.eventType,
		Config: c.eventConfig,
		Size:   unix.PERF_ATTR_SIZE_VER0,
		Bits:   unix.PerfBitDisabled,
	}

	for _, target := range c.targets() {
		fd, err := unix.PerfEventOpen(attr, int(target.pid), int(target.cpu), -1, 0)
		if err != nil {
			c.close()
			c.failAttach()

			return errors.Wrapf(err, "opening perf event %d:%d on pid %d cpu %d",
				c.eventType, c.eventConfig, target.pid, target.cpu)
		}
		c.fds = append(c.fds, counterFD{fd: fd, cpu: target.cpu})
	}

	for _, f := range c.fds {
		if err := unix.IoctlSetInt(f.fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
			c.close()
			c.failAttach()

			return errors.Wrap(err, "enabling perf event")
		}
	}

	c.logger.Debug().Int("counters", len(c.fds)).Msg("perf counters enabled")

	return nil
}

type counterTarget struct {
	pid int32
	cpu int32
}

func (c *PerfCounter) targets() []counterTarget {
	cpus := c.cpus
	if len(cpus) == 0 {
		if c.pid >= 0 {
			// One inherited counter following the process.
			return []counterTarget{{pid: c.pid, cpu: -1}}
		}
		for cpu := 0; cpu < runtime.NumCPU(); cpu++ {
			cpus = append(cpus, int32(cpu))
		}
	}

	targets := make([]counterTarget, 0, len(cpus))
	for _, cpu := range cpus {
		targets = append(targets, counterTarget{pid: c.pid, cpu: cpu})
	}

	return targets
}

// ReadPerCPU returns the cumulative reading of every counter. The Cpu
// field is -1 for a pid-scoped counter.
func (c *PerfCounter) ReadPerCPU() ([]CounterSample, error) {
	if !c.isAttached() {
		return nil, ErrNotAttached
	}

	samples := make([]CounterSample, 0, len(c.fds))
	buf := make([]byte, 8)
	for _, f := range c.fds {
		if _, err := unix.Read(f.fd, buf); err != nil {
			return nil, errors.Wrap(err, "reading perf counter")
		}
		samples = append(samples, CounterSample{
			Cpu:   f.cpu,
			Value: binary.NativeEndian.Uint64(buf),
		})
	}

	return samples, nil
}

// Read sums the counters into one cumulative value.
func (c *PerfCounter) Read() (uint64, error) {
	samples, err := c.ReadPerCPU()
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, s := range samples {
		total += s.Value
	}

	return total, nil
}

// Detach disables and closes the counters.
func (c *PerfCounter) Detach() error {
	if !c.beginDetach() {
		return nil
	}

	for _, f := range c.fds {
		if err := unix.IoctlSetInt(f.fd, unix.PERF_EVENT_IOC_DISABLE, 0); err != nil {
			c.logger.Warn().Err(err).Msg("disabling perf event")
		}
	}
	c.close()

	return nil
}

func (c *PerfCounter) close() {
	for _, f := range c.fds {
		_ = unix.Close(f.fd)
	}
	c.fds = nil
}
