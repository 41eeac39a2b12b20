package display_test

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/display"
	"github.com/ensoft/marple/pkg/stream"
)

func newRouter() *display.Router {
	return display.NewRouter(config.Default(), zerolog.Nop())
}

func stackView(kind config.Interface) *stream.Stream {
	return &stream.Stream{Records: []stream.Record{
		{Ts: 1, Pid: 1, Tid: 1, Cpu: 0, Stack: []string{"leaf", "root"}, Value: 1, Kind: kind},
		{Ts: 2, Pid: 1, Tid: 1, Cpu: 0, Stack: []string{"root"}, Value: 2, Kind: kind},
	}}
}

func TestSelectDefaultMode(t *testing.T) {
	r, err := newRouter().Select(config.MemLeak, "", stackView(config.MemLeak))
	require.NoError(t, err)
	require.Equal(t, config.Flamegraph, r.Mode())
	require.Equal(t, "folded", r.Ext())
}

func TestSelectOverrideWinsOverDefault(t *testing.T) {
	r, err := newRouter().Select(config.MemLeak, config.Treemap, stackView(config.MemLeak))
	require.NoError(t, err)
	require.Equal(t, config.Treemap, r.Mode())
}

func TestSelectUnknownOverride(t *testing.T) {
	_, err := newRouter().Select(config.MemLeak, "sunburst", stackView(config.MemLeak))
	require.ErrorIs(t, err, config.ErrUnknownMode)
}

func TestSelectRejectsStacklessStackplot(t *testing.T) {
	view := &stream.Stream{Records: []stream.Record{
		{Ts: 1, Pid: 1, Tid: 1, Cpu: -1, Value: 1, Kind: config.MemTime},
		{Ts: 2, Pid: 1, Tid: 1, Cpu: -1, Value: 2, Kind: config.MemTime},
	}}

	_, err := newRouter().Select(config.MemTime, "", view)
	require.ErrorIs(t, err, display.ErrSchema)
}

func TestSelectG2TrackAttribution(t *testing.T) {
	cfg := config.Default()
	cfg.G2.Track = config.TrackPid
	router := display.NewRouter(cfg, zerolog.Nop())

	unattributed := &stream.Stream{Records: []stream.Record{
		{Ts: 1, Pid: -1, Tid: -1, Cpu: 0, Stack: []string{"context-switches"}, Value: 3, Kind: config.CPUSched},
	}}
	_, err := router.Select(config.CPUSched, "", unattributed)
	require.ErrorIs(t, err, display.ErrSchema)

	// The same records pass on the cpu track.
	cfg.G2.Track = config.TrackCpu
	_, err = router.Select(config.CPUSched, "", unattributed)
	require.NoError(t, err)
}

func TestSelectSeriesSchema(t *testing.T) {
	t.Run("single timestamp", func(t *testing.T) {
		view := &stream.Stream{Records: []stream.Record{
			{Ts: 5, Pid: 1, Tid: 1, Cpu: -1, Stack: []string{"a"}, Value: 1, Kind: config.DiskLatency},
			{Ts: 5, Pid: 1, Tid: 1, Cpu: -1, Stack: []string{"b"}, Value: 2, Kind: config.DiskLatency},
		}}
		_, err := newRouter().Select(config.DiskLatency, "", view)
		require.ErrorIs(t, err, display.ErrSchema)
	})

	t.Run("non-finite value", func(t *testing.T) {
		view := &stream.Stream{Records: []stream.Record{
			{Ts: 1, Pid: 1, Tid: 1, Cpu: -1, Stack: []string{"a"}, Value: 1, Kind: config.DiskLatency},
			{Ts: 2, Pid: 1, Tid: 1, Cpu: -1, Stack: []string{"b"}, Value: math.NaN(), Kind: config.DiskLatency},
		}}
		_, err := newRouter().Select(config.DiskLatency, "", view)
		require.ErrorIs(t, err, display.ErrSchema)
	})

	t.Run("dense enough", func(t *testing.T) {
		view := &stream.Stream{Records: []stream.Record{
			{Ts: 1, Pid: 1, Tid: 1, Cpu: -1, Stack: []string{"a"}, Value: 1, Kind: config.DiskLatency},
			{Ts: 2, Pid: 1, Tid: 1, Cpu: -1, Stack: []string{"b"}, Value: 2, Kind: config.DiskLatency},
		}}
		r, err := newRouter().Select(config.DiskLatency, "", view)
		require.NoError(t, err)
		require.Equal(t, config.Heatmap, r.Mode())
	})
}

// An empty view passes the g2 track check vacuously; the failure must
// come from the renderer, not the router.
func TestSelectEmptyViewReachesRenderer(t *testing.T) {
	r, err := newRouter().Select(config.CPUSched, "", &stream.Stream{})
	require.NoError(t, err)
	require.Equal(t, config.G2, r.Mode())
}
