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

const (
	memleakTopStacks = "10"
	memleakInterval  = "5"
)

// MemLeak watches outstanding allocations with the memleak BCC tool.
// memleak reprints its top stacks every interval, so only the final
// snapshot is kept: those are the allocations still unfreed when the
// run ended, which is what a leak hunt wants on the flamegraph.
type MemLeak struct {
	tool *probe.Exec

	base
}

func NewMemLeak(opts ...Option) *MemLeak {
	return &MemLeak{base: newBase(config.MemLeak, newOptions(opts...))}
}

func (m *MemLeak) Attach(ctx context.Context) error {
	if err := m.checkKernel("4.6.0"); err != nil {
		return err
	}

	args := []string{"-T", memleakTopStacks}
	if pid := m.scope().TargetPid(); pid >= 0 {
		args = append(args, "-p", strconv.FormatInt(int64(pid), 10))
	}
	args = append(args, memleakInterval)

	m.tool = probe.NewExec(filepath.Join(m.bccToolsDir, "memleak"), args,
		probe.WithLogger(m.logger), probe.WithGracePeriod(m.grace))

	return errors.Wrap(m.tool.Attach(ctx), "starting memleak")
}

func (m *MemLeak) Collect(_ context.Context) error {
	var (
		snapshot []stream.Record
		bytes    float64
		frames   []string
		open     bool
	)

	flush := func() {
		if open && len(frames) > 0 {
			snapshot = append(snapshot, stream.Record{
				Ts:    m.clock.Now(),
				Pid:   m.scope().TargetPid(),
				Tid:   -1,
				Cpu:   -1,
				Stack: frames,
				Value: bytes,
			})
		}
		open = false
		frames = nil
	}

	for line := range m.tool.Lines() {
		switch {
		case isMemleakHeader(line):
			// A new interval supersedes the previous snapshot.
			flush()
			snapshot = snapshot[:0]
		case isMemleakStackStart(line):
			flush()
			bytes = parseMemleakBytes(line)
			open = true
		case open && isIndented(line):
			if frame, ok := parseMemleakFrame(line); ok {
				frames = append(frames, frame)
			}
		default:
			flush()
		}
	}
	flush()

	for _, r := range snapshot {
		m.emit(r)
	}

	return m.tool.Err()
}

func (m *MemLeak) Detach() error {
	if m.tool == nil {
		return nil
	}

	return errors.Wrap(m.tool.Detach(), "stopping memleak")
}

// isMemleakHeader matches the per-interval banner, such as
// "[14:17:01] Top 10 stacks with outstanding allocations:".
func isMemleakHeader(line string) bool {
	trimmed := strings.TrimSpace(line)

	return strings.HasPrefix(trimmed, "[") && strings.Contains(trimmed, "outstanding allocations")
}

// isMemleakStackStart matches "N bytes in M allocations from stack".
func isMemleakStackStart(line string) bool {
	trimmed := strings.TrimSpace(line)

	return strings.Contains(trimmed, " bytes in ") && strings.Contains(trimmed, "allocations from stack")
}

func parseMemleakBytes(line string) float64 {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}

	bytes, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}

	return bytes
}

// parseMemleakFrame reads "func+0x12 [module]" keeping only func.
func parseMemleakFrame(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}

	frame := fields[0]
	if idx := strings.LastIndexByte(frame, '+'); idx > 0 {
		frame = frame[:idx]
	}
	if frame == "" {
		return "", false
	}

	return frame, true
}
