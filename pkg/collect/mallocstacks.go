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

// stackFieldSeparator joins the weight and frames on a mallocstacks
// output line.
const stackFieldSeparator = "#"

// MallocStacks traces malloc call sites with the mallocstacks BCC
// tool. The tool emits one line per aggregated call stack in the form
//
//	<bytes>#<innermost>#...#<outermost>
//
// which maps straight onto a weighted stack record.
type MallocStacks struct {
	tool *probe.Exec

	base
}

func NewMallocStacks(opts ...Option) *MallocStacks {
	return &MallocStacks{base: newBase(config.MallocStacks, newOptions(opts...))}
}

func (m *MallocStacks) Attach(ctx context.Context) error {
	if err := m.checkKernel("4.6.0"); err != nil {
		return err
	}

	var args []string
	if pid := m.scope().TargetPid(); pid >= 0 {
		args = append(args, "-p", strconv.FormatInt(int64(pid), 10))
	}

	m.tool = probe.NewExec(filepath.Join(m.bccToolsDir, "mallocstacks"), args,
		probe.WithLogger(m.logger), probe.WithGracePeriod(m.grace))

	return errors.Wrap(m.tool.Attach(ctx), "starting mallocstacks")
}

func (m *MallocStacks) Collect(_ context.Context) error {
	pid := m.scope().TargetPid()
	for line := range m.tool.Lines() {
		weight, frames, ok := parseStackLine(line)
		if !ok {
			m.logger.Debug().Str("line", line).Msg("skipping unparseable stack line")
			continue
		}
		m.emit(stream.Record{
			Ts:    m.clock.Now(),
			Pid:   pid,
			Tid:   -1,
			Cpu:   -1,
			Stack: frames,
			Value: weight,
		})
	}

	return m.tool.Err()
}

func (m *MallocStacks) Detach() error {
	if m.tool == nil {
		return nil
	}

	return errors.Wrap(m.tool.Detach(), "stopping mallocstacks")
}

// parseStackLine splits "<weight>#<frame>#<frame>..." rows.
func parseStackLine(line string) (float64, []string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, nil, false
	}

	parts := strings.Split(line, stackFieldSeparator)
	if len(parts) < 2 {
		return 0, nil, false
	}

	weight, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, nil, false
	}

	frames := make([]string, 0, len(parts)-1)
	for _, frame := range parts[1:] {
		if frame = strings.TrimSpace(frame); frame != "" {
			frames = append(frames, frame)
		}
	}
	if len(frames) == 0 {
		return 0, nil, false
	}

	return weight, frames, true
}
