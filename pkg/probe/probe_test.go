package probe_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/pkg/probe"
)

func TestExecDeliversOutputAndExit(t *testing.T) {
	e := probe.NewExec("/bin/sh", []string{"-c", "echo one; echo two"},
		probe.WithLogger(zerolog.Nop()))

	require.NoError(t, e.Attach(context.Background()))

	var lines []string
	for line := range e.Lines() {
		lines = append(lines, line)
	}
	require.Equal(t, []string{"one", "two"}, lines)

	<-e.Done()
	require.NoError(t, e.Err())
	require.NoError(t, e.Detach())
	require.NoError(t, e.Detach())
}

func TestExecDetachInterruptsAndCollectsSummary(t *testing.T) {
	script := `trap 'echo summary; exit 0' INT; echo ready; while true; do sleep 0.1; done`
	e := probe.NewExec("/bin/sh", []string{"-c", script},
		probe.WithLogger(zerolog.Nop()), probe.WithGracePeriod(5*time.Second))

	require.NoError(t, e.Attach(context.Background()))
	require.Equal(t, "ready", <-e.Lines())

	detached := make(chan error, 1)
	go func() { detached <- e.Detach() }()

	// The interrupt summary arrives after Detach is underway, before
	// the channel closes.
	var rest []string
	for line := range e.Lines() {
		rest = append(rest, line)
	}
	require.Contains(t, rest, "summary")
	require.NoError(t, <-detached)
	require.NoError(t, e.Err())
}

func TestExecAttachTwice(t *testing.T) {
	e := probe.NewExec("/bin/sh", []string{"-c", "sleep 1"},
		probe.WithLogger(zerolog.Nop()))

	require.NoError(t, e.Attach(context.Background()))
	require.ErrorIs(t, e.Attach(context.Background()), probe.ErrAlreadyAttached)
	require.NoError(t, e.Detach())
}

func TestExecAttachFailure(t *testing.T) {
	e := probe.NewExec("/nonexistent/tool", nil, probe.WithLogger(zerolog.Nop()))

	require.Error(t, e.Attach(context.Background()))
	// A failed attach leaves nothing to detach.
	require.NoError(t, e.Detach())
	require.ErrorIs(t, e.Attach(context.Background()), probe.ErrDetached)
}

func TestExecErrReportsToolFailure(t *testing.T) {
	e := probe.NewExec("/bin/sh", []string{"-c", "echo broken >&2; exit 3"},
		probe.WithLogger(zerolog.Nop()))

	require.NoError(t, e.Attach(context.Background()))
	for range e.Lines() {
	}
	<-e.Done()

	err := e.Err()
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
}

// fakeTracefs builds a tracefs-shaped tree backed by regular files.
func fakeTracefs(t *testing.T, event string, pipeContent string) string {
	t.Helper()
	root := t.TempDir()

	eventDir := filepath.Join(root, "events", event)
	require.NoError(t, os.MkdirAll(eventDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(eventDir, "enable"), []byte("0"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(eventDir, "filter"), []byte("none"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tracing_on"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "trace_pipe"), []byte(pipeContent), 0o644))

	return root
}

func TestTracefsLifecycle(t *testing.T) {
	const event = "sched/sched_wakeup"
	root := fakeTracefs(t, event, "line a\nline b\n")

	h := probe.NewTracefs(root, []string{event}, "common_pid == 42",
		probe.WithLogger(zerolog.Nop()))
	require.NoError(t, h.Attach(context.Background()))

	enable, err := os.ReadFile(filepath.Join(root, "events", event, "enable"))
	require.NoError(t, err)
	require.Equal(t, "1", string(enable))

	filter, err := os.ReadFile(filepath.Join(root, "events", event, "filter"))
	require.NoError(t, err)
	require.Contains(t, string(filter), "common_pid == 42")

	var lines []string
	for line := range h.Lines() {
		lines = append(lines, line)
	}
	require.Equal(t, []string{"line a", "line b"}, lines)

	require.NoError(t, h.Detach())
	require.NoError(t, h.Detach())

	enable, err = os.ReadFile(filepath.Join(root, "events", event, "enable"))
	require.NoError(t, err)
	require.Equal(t, "0", string(enable))
}

func TestTracefsAttachFailsWithoutEvent(t *testing.T) {
	root := fakeTracefs(t, "sched/sched_wakeup", "")

	h := probe.NewTracefs(root, []string{"block/block_rq_issue"}, "",
		probe.WithLogger(zerolog.Nop()))
	require.Error(t, h.Attach(context.Background()))
	require.NoError(t, h.Detach())
}

func TestDetectTracefsRoot(t *testing.T) {
	root := fakeTracefs(t, "sched/sched_wakeup", "")

	got, err := probe.DetectTracefsRoot(filepath.Join(root, "missing"), root)
	require.NoError(t, err)
	require.Equal(t, root, got)

	_, err = probe.DetectTracefsRoot(filepath.Join(root, "missing"))
	require.ErrorIs(t, err, probe.ErrNoTracefs)
}

func TestPerfCounterReadBeforeAttach(t *testing.T) {
	c := probe.NewPerfCounter(0, 0, -1, nil, probe.WithLogger(zerolog.Nop()))

	_, err := c.Read()
	require.ErrorIs(t, err, probe.ErrNotAttached)
	require.NoError(t, c.Detach())
}
