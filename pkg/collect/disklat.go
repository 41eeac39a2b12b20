package collect

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/probe"
	"github.com/ensoft/marple/pkg/stream"
)

// DiskLatency traces block I/O completion latency with iosnoop from
// the perf-tools collection. Each record is one completed request with
// the latency in milliseconds as its value.
type DiskLatency struct {
	tool *probe.Exec

	base
}

func NewDiskLatency(opts ...Option) *DiskLatency {
	return &DiskLatency{base: newBase(config.DiskLatency, newOptions(opts...))}
}

func (d *DiskLatency) Attach(ctx context.Context) error {
	if err := d.checkKernel("3.2.0"); err != nil {
		return err
	}

	args := []string{"-ts"}
	if pid := d.scope().TargetPid(); pid >= 0 {
		args = append(args, "-p", strconv.FormatInt(int64(pid), 10))
	}

	d.tool = probe.NewExec(filepath.Join(d.perfToolsDir, "iosnoop"), args,
		probe.WithLogger(d.logger), probe.WithGracePeriod(d.grace))

	return errors.Wrap(d.tool.Attach(ctx), "starting iosnoop")
}

func (d *DiskLatency) Collect(_ context.Context) error {
	for line := range d.tool.Lines() {
		if record, ok := d.parse(line); ok {
			d.emit(record)
		}
	}

	return d.tool.Err()
}

// parse reads one iosnoop -ts row:
//
//	STARTs  ENDs  COMM  PID  TYPE  DEV  BLOCK  BYTES  LATms
func (d *DiskLatency) parse(line string) (stream.Record, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return stream.Record{}, false
	}

	end, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		// Header or banner row.
		return stream.Record{}, false
	}
	pid, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return stream.Record{}, false
	}
	lat, err := strconv.ParseFloat(fields[8], 64)
	if err != nil {
		return stream.Record{}, false
	}

	return stream.Record{
		Ts:    d.clock.FromMonotonicSeconds(end),
		Pid:   int32(pid),
		Tid:   -1,
		Cpu:   -1,
		Stack: []string{fields[2]},
		Value: lat,
	}, true
}

func (d *DiskLatency) Detach() error {
	if d.tool == nil {
		return nil
	}

	return errors.Wrap(d.tool.Detach(), "stopping iosnoop")
}
