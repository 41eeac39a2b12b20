package collect

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/probe"
)

const mallocProbeEvent = "probe_libc:malloc"

// PerfMalloc records call stacks of malloc calls. Attach installs a
// dynamic probe on libc's malloc with perf probe, records hits during
// the run, and Detach removes the probe again.
type PerfMalloc struct {
	probeAdded bool

	perfRecorder
}

func NewPerfMalloc(opts ...Option) *PerfMalloc {
	return &PerfMalloc{
		perfRecorder: perfRecorder{
			recordArgs: []string{"-e", mallocProbeEvent, "-g"},
			base:       newBase(config.PerfMalloc, newOptions(opts...)),
		},
	}
}

func (p *PerfMalloc) Attach(ctx context.Context) error {
	if err := p.checkKernel("3.5.0"); err != nil {
		return err
	}

	libc, err := libcPath()
	if err != nil {
		return err
	}

	if err := p.runPerf(ctx, "probe", "-q", "-x", libc, "--add", "malloc"); err != nil {
		return errors.Wrap(err, "installing malloc probe")
	}
	p.probeAdded = true

	if err := p.attachRecord(ctx); err != nil {
		p.removeProbe()

		return err
	}

	return nil
}

func (p *PerfMalloc) Collect(_ context.Context) error {
	return p.collectSamples(1)
}

func (p *PerfMalloc) Detach() error {
	err := p.perfRecorder.Detach()
	p.removeProbe()

	return err
}

func (p *PerfMalloc) removeProbe() {
	if !p.probeAdded {
		return
	}
	p.probeAdded = false

	if err := p.runPerf(context.Background(), "probe", "-q", "--del", mallocProbeEvent); err != nil {
		p.logger.Warn().Err(err).Msg("removing malloc probe")
	}
}

// runPerf executes a short perf maintenance command and waits for it.
func (p *PerfMalloc) runPerf(ctx context.Context, args ...string) error {
	tool := probe.NewExec(p.perfPath, args,
		probe.WithLogger(p.logger), probe.WithGracePeriod(p.grace))
	if err := tool.Attach(ctx); err != nil {
		return err
	}
	for range tool.Lines() {
	}

	return tool.Err()
}
