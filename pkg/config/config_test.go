package config_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/pkg/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	require.True(t, cfg.General.Blocking)
	require.Equal(t, 10*time.Second, cfg.General.Time)
	require.Equal(t, float64(99), cfg.General.Frequency)
	require.True(t, cfg.General.Scope.All)
	require.Len(t, cfg.Display, len(config.Interfaces()))
	require.Equal(t, config.G2, cfg.Display[config.CPUSched])
	require.Equal(t, config.TCPPlot, cfg.Display[config.IPC])
	require.Equal(t, []config.Interface{config.MemLeak, config.CPUSched, config.DiskLatency}, cfg.Aliases["boot"])
}

func TestLoadFile(t *testing.T) {
	cfg, err := config.Load("testdata/config.ini", zerolog.Nop())
	require.NoError(t, err)

	require.False(t, cfg.General.Blocking)
	require.Equal(t, 30*time.Second, cfg.General.Time)
	require.Equal(t, float64(50), cfg.General.Frequency)
	require.False(t, cfg.General.Scope.All)
	require.Equal(t, []int32{1234}, cfg.General.Scope.Pids)

	// Overridden mapping, with the remaining defaults intact.
	require.Equal(t, config.Heatmap, cfg.Display[config.CPUSched])
	require.Equal(t, config.Flamegraph, cfg.Display[config.MemLeak])

	require.Equal(t, []config.Interface{config.MemLeak, config.MemTime}, cfg.Aliases["mem"])
	require.Equal(t, []config.Interface{config.MemLeak, config.CPUSched, config.DiskLatency}, cfg.Aliases["boot"])

	require.Equal(t, 3, cfg.Stackplot.Top)
	require.Equal(t, 25, cfg.Treemap.Depth)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load("testdata/does-not-exist.ini", zerolog.Nop())
	require.Error(t, err)
}

func TestLoadUnknownInterface(t *testing.T) {
	_, err := config.Load("testdata/bad-interface.ini", zerolog.Nop())
	require.ErrorIs(t, err, config.ErrUnknownInterface)
}

func TestLoadUnknownMode(t *testing.T) {
	_, err := config.Load("testdata/bad-mode.ini", zerolog.Nop())
	require.ErrorIs(t, err, config.ErrUnknownMode)
}

func TestLoadUnknownOption(t *testing.T) {
	_, err := config.Load("testdata/unknown-option.ini", zerolog.Nop())
	require.ErrorIs(t, err, config.ErrUnknownOption)
}

func TestLoadUnknownOptionIgnoredWithoutWarnings(t *testing.T) {
	cfg, err := config.Load("testdata/unknown-option-ignored.ini", zerolog.Nop())
	require.NoError(t, err)
	require.False(t, cfg.General.Warnings)
}

func TestParseScope(t *testing.T) {
	testCases := []struct {
		name    string
		token   string
		want    config.Scope
		wantErr bool
	}{
		{
			name:  "system wide",
			token: "-a",
			want:  config.Scope{All: true},
		},
		{
			name:  "pid list",
			token: "pid:1,2,3",
			want:  config.Scope{Pids: []int32{1, 2, 3}},
		},
		{
			name:  "cpu list",
			token: "cpu:0",
			want:  config.Scope{Cpus: []int32{0}},
		},
		{
			name:  "pid and cpu",
			token: "pid:42 cpu:1,2",
			want:  config.Scope{Pids: []int32{42}, Cpus: []int32{1, 2}},
		},
		{
			name:    "empty",
			token:   "",
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "everything",
			wantErr: true,
		},
		{
			name:    "empty pid list",
			token:   "pid:",
			wantErr: true,
		},
		{
			name:    "non numeric pid",
			token:   "pid:init",
			wantErr: true,
		},
		{
			name:    "system wide with pids",
			token:   "-a pid:1",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := config.ParseScope(tc.token)
			if tc.wantErr {
				require.ErrorIs(t, err, config.ErrBadScope)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestScopeAllows(t *testing.T) {
	all := config.SystemWide()
	require.True(t, all.Allows(1, 0))
	require.True(t, all.Allows(-1, -1))

	pids := config.Scope{Pids: []int32{10, 20}}
	require.True(t, pids.Allows(10, 3))
	require.False(t, pids.Allows(30, 3))
	// Records without pid attribution pass a pid-scoped filter.
	require.True(t, pids.Allows(-1, 3))

	both := config.Scope{Pids: []int32{10}, Cpus: []int32{0}}
	require.True(t, both.Allows(10, 0))
	require.False(t, both.Allows(10, 1))
	require.False(t, both.Allows(11, 0))
}

func TestScopeString(t *testing.T) {
	s, err := config.ParseScope("pid:1,2 cpu:0")
	require.NoError(t, err)
	require.Equal(t, "pid:1,2 cpu:0", s.String())
	require.Equal(t, "-a", config.SystemWide().String())
}
