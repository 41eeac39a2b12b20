package datafile_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/internal/settings"
	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/datafile"
	"github.com/ensoft/marple/pkg/stream"
)

func sampleStream() *stream.Stream {
	return &stream.Stream{
		Meta: stream.Meta{
			Start:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			End:        time.Date(2024, 3, 1, 12, 0, 10, 0, time.UTC),
			Frequency:  99,
			Scope:      "-a",
			Dropped:    3,
			Interfaces: []config.Interface{config.MemLeak, config.CPUSched},
		},
		Records: []stream.Record{
			{Ts: 1, Pid: 10, Tid: 10, Cpu: 0, Stack: []string{"malloc", "main"}, Value: 64, Kind: config.MemLeak},
			{Ts: 2, Pid: -1, Tid: -1, Cpu: 1, Stack: []string{"context-switches"}, Value: 12, Kind: config.CPUSched},
		},
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.data")
	want := sampleStream()

	require.NoError(t, datafile.Save(path, want))

	got, err := datafile.Load(path)
	require.NoError(t, err)
	require.True(t, want.Meta.Start.Equal(got.Meta.Start))
	require.Equal(t, want.Meta.Frequency, got.Meta.Frequency)
	require.Equal(t, want.Meta.Scope, got.Meta.Scope)
	require.Equal(t, want.Meta.Dropped, got.Meta.Dropped)
	require.Equal(t, want.Meta.Interfaces, got.Meta.Interfaces)
	require.Equal(t, want.Records, got.Records)
}

func TestReadRejectsGarbageHeader(t *testing.T) {
	_, err := datafile.Read(strings.NewReader("not a data file\n"))
	require.ErrorIs(t, err, datafile.ErrBadHeader)
}

func TestReadRejectsWrongVersion(t *testing.T) {
	_, err := datafile.Read(strings.NewReader(`{"version":99,"meta":{}}` + "\n"))
	require.ErrorIs(t, err, datafile.ErrVersion)
}

func TestLastMarker(t *testing.T) {
	restore := settings.LastFile
	settings.LastFile = filepath.Join(t.TempDir(), "marple.last")
	defer func() { settings.LastFile = restore }()

	_, err := datafile.Last()
	require.Error(t, err)

	require.NoError(t, datafile.UpdateLast("/tmp/run1.data"))

	path, err := datafile.Last()
	require.NoError(t, err)
	require.Equal(t, "/tmp/run1.data", path)
}
