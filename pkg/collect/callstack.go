package collect

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/probe"
	"github.com/ensoft/marple/pkg/stream"
	"github.com/ensoft/marple/pkg/symtable"
)

// perfRecorder is the shared body of the perf-backed stack collectors.
// It records into a temporary perf.data during the run and converts it
// with perf script once the recorder has exited.
type perfRecorder struct {
	recordArgs []string
	dataFile   string
	tool       *probe.Exec
	symtab     *symtable.ELFSymTab

	base
}

func (p *perfRecorder) attachRecord(ctx context.Context) error {
	p.loadSymtab()

	f, err := os.CreateTemp("", "marple-perf-*.data")
	if err != nil {
		return errors.Wrap(err, "creating perf data file")
	}
	p.dataFile = f.Name()
	f.Close()

	args := append([]string{"record", "-q", "-o", p.dataFile}, p.recordArgs...)
	args = append(args, scopeArgs(p.scope())...)

	p.tool = probe.NewExec(p.perfPath, args,
		probe.WithLogger(p.logger), probe.WithGracePeriod(p.grace))

	if err := p.tool.Attach(ctx); err != nil {
		os.Remove(p.dataFile)

		return errors.Wrap(err, "starting perf record")
	}

	return nil
}

// collectSamples waits out the recording phase, then replays the data
// file through perf script and emits one record per sample.
func (p *perfRecorder) collectSamples(value float64) error {
	// perf record is quiet on stdout; draining doubles as waiting for
	// exit.
	for range p.tool.Lines() {
	}
	if err := p.tool.Err(); err != nil {
		return errors.Wrap(err, "perf record")
	}
	defer os.Remove(p.dataFile)

	if _, err := os.Stat(p.dataFile); err != nil {
		return errors.Wrap(err, "perf record produced no data")
	}

	script := probe.NewExec(p.perfPath, []string{"script", "-i", p.dataFile},
		probe.WithLogger(p.logger), probe.WithGracePeriod(p.grace))
	if err := script.Attach(context.Background()); err != nil {
		return errors.Wrap(err, "starting perf script")
	}

	parsePerfScript(script.Lines(), func(s perfSample) {
		p.emit(stream.Record{
			Ts:    p.clock.FromMonotonicSeconds(s.Ts),
			Pid:   s.Pid,
			Tid:   s.Tid,
			Cpu:   s.Cpu,
			Stack: p.resolveStack(s),
			Value: value,
		})
	})
	<-script.Done()

	return errors.Wrap(script.Err(), "perf script")
}

// loadSymtab snapshots the target's symbol table when the scope pins
// one process. perf script leaves [unknown] frames when the build id
// of the mapped binary does not resolve; the live executable's symtab
// is the fallback for those.
func (p *perfRecorder) loadSymtab() {
	pid := p.scope().TargetPid()
	if pid < 0 {
		return
	}

	exe := filepath.Join(p.procRoot, strconv.FormatInt(int64(pid), 10), "exe")
	tab := symtable.NewELFSymTab()
	if err := tab.Load(exe); err != nil {
		p.logger.Debug().Err(err).Str("exe", exe).Msg("no symbol table for unknown frames")

		return
	}
	p.symtab = tab
}

func (p *perfRecorder) resolveStack(s perfSample) []string {
	if p.symtab == nil {
		return s.Stack
	}

	for i, sym := range s.Stack {
		if sym != unknownFrame || i >= len(s.Addrs) {
			continue
		}
		if name, err := p.symtab.GetName(s.Addrs[i]); err == nil {
			s.Stack[i] = name
		}
	}

	return s.Stack
}

func (p *perfRecorder) Detach() error {
	if p.tool == nil {
		return nil
	}

	return errors.Wrap(p.tool.Detach(), "stopping perf record")
}

// scopeArgs translates the scope into perf target flags.
func scopeArgs(scope config.Scope) []string {
	if scope.All {
		return []string{"-a"}
	}

	var args []string
	if len(scope.Pids) > 0 {
		args = append(args, "-p", joinInt32(scope.Pids))
	}
	if len(scope.Cpus) > 0 {
		args = append(args, "-C", joinInt32(scope.Cpus))
	}

	return args
}

func joinInt32(ids []int32) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(int64(id), 10))
	}

	return strings.Join(parts, ",")
}

// CallStack samples call stacks across the scope with perf record -g.
// Every sample becomes a unit-weight stack record, the shape the
// flamegraph renderer folds.
type CallStack struct {
	perfRecorder
}

func NewCallStack(opts ...Option) *CallStack {
	o := newOptions(opts...)

	return &CallStack{
		perfRecorder: perfRecorder{
			recordArgs: []string{
				"-F", strconv.FormatFloat(o.config.General.Frequency, 'f', -1, 64),
				"-g",
			},
			base: newBase(config.CallStack, o),
		},
	}
}

func (c *CallStack) Attach(ctx context.Context) error {
	if err := c.checkKernel("2.6.32"); err != nil {
		return err
	}

	return c.attachRecord(ctx)
}

func (c *CallStack) Collect(_ context.Context) error {
	return c.collectSamples(1)
}
