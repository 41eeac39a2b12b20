package collect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

func writeProcFile(t *testing.T, root, name, content string) {
	t.Helper()

	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runSampler(t *testing.T, col Collector, window time.Duration) []stream.Record {
	t.Helper()

	require.NoError(t, col.Attach(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()
	require.NoError(t, col.Collect(ctx))
	require.NoError(t, col.Detach())

	records, dropped := col.Drain()
	require.Zero(t, dropped)

	return records
}

func TestMemTimeSystemWide(t *testing.T) {
	procRoot := t.TempDir()
	writeProcFile(t, procRoot, "meminfo",
		"MemTotal:       1000 kB\nMemFree:         300 kB\nMemAvailable:    400 kB\n")

	cfg := config.Default()
	cfg.General.Frequency = 100

	mt := NewMemTime(
		WithConfig(cfg),
		WithProcRoot(procRoot),
		WithClock(&stream.Clock{}),
		WithLogger(zerolog.Nop()),
	)

	records := runSampler(t, mt, 250*time.Millisecond)
	require.GreaterOrEqual(t, len(records), 5)

	for _, r := range records {
		require.Equal(t, config.MemTime, r.Kind)
		require.Equal(t, int32(-1), r.Pid)
		require.Equal(t, []string{"used"}, r.Stack)
		require.Equal(t, float64(600), r.Value, "used = MemTotal - MemAvailable")
	}
}

func TestMemTimePidScope(t *testing.T) {
	procRoot := t.TempDir()
	writeProcFile(t, procRoot, "1234/statm", "100 50 20 5 0 80 0\n")
	writeProcFile(t, procRoot, "1234/comm", "burner\n")

	cfg := config.Default()
	cfg.General.Frequency = 100
	cfg.General.Scope = config.PidScope(1234)

	mt := NewMemTime(
		WithConfig(cfg),
		WithProcRoot(procRoot),
		WithClock(&stream.Clock{}),
		WithLogger(zerolog.Nop()),
	)

	records := runSampler(t, mt, 250*time.Millisecond)
	require.NotEmpty(t, records)

	wantKB := float64(50 * int64(os.Getpagesize()) / 1024)
	for _, r := range records {
		require.Equal(t, int32(1234), r.Pid)
		require.Equal(t, []string{"burner"}, r.Stack)
		require.Equal(t, wantKB, r.Value)
	}
}

func TestMemTimeAttachRequiresLiveTarget(t *testing.T) {
	cfg := config.Default()
	cfg.General.Scope = config.PidScope(1234)

	mt := NewMemTime(WithConfig(cfg), WithProcRoot(t.TempDir()), WithLogger(zerolog.Nop()))
	require.Error(t, mt.Attach(context.Background()))
}

func TestMemTimeAttachRequiresMeminfo(t *testing.T) {
	mt := NewMemTime(WithConfig(config.Default()), WithProcRoot(t.TempDir()), WithLogger(zerolog.Nop()))
	require.ErrorContains(t, mt.Attach(context.Background()), "meminfo")
}
