package collect

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

func TestParseTCPRow(t *testing.T) {
	row, ok := parseTCPRow("1.250000 SEND 100 curl 4 127.0.0.1 127.0.0.1 50000 8080 512 4026531992")
	require.True(t, ok)
	require.Equal(t, tcpRow{
		Ts:    1.25,
		Type:  "SEND",
		Pid:   100,
		Comm:  "curl",
		SAddr: "127.0.0.1",
		DAddr: "127.0.0.1",
		SPort: "50000",
		DPort: "8080",
		Size:  512,
		NetNS: "4026531992",
	}, row)
}

func TestParseTCPRowRejectsNoise(t *testing.T) {
	for _, line := range []string{
		"TIME TYPE PID COMM IP SADDR DADDR SPORT DPORT SIZE NETNS",
		"1.0 SEND 100 curl 4 127.0.0.1 127.0.0.1 50000 8080",
		"1.0 SEND 100 curl 4 127.0.0.1 127.0.0.1 50000 8080 big 4026531992",
		"",
	} {
		_, ok := parseTCPRow(line)
		require.False(t, ok, "line %q", line)
	}
}

func newJoinIPC() *IPC {
	return NewIPC(
		WithConfig(config.Default()),
		WithClock(&stream.Clock{}),
		WithLogger(zerolog.Nop()),
	)
}

func parseRows(t *testing.T, lines []string) []tcpRow {
	t.Helper()

	rows := make([]tcpRow, 0, len(lines))
	for _, line := range lines {
		row, ok := parseTCPRow(line)
		require.True(t, ok, "line %q", line)
		rows = append(rows, row)
	}

	return rows
}

func TestIPCJoinResolvesLoopbackPeers(t *testing.T) {
	i := newJoinIPC()

	rows := parseRows(t, []string{
		"1.000000 SEND 100 curl 4 127.0.0.1 127.0.0.1 50000 8080 512 4026531992",
		"1.250000 RECV 200 nginx 4 127.0.0.1 127.0.0.1 8080 50000 512 4026531992",
		// Non-loopback traffic and foreign namespaces stay out of the join.
		"1.500000 SEND 100 curl 4 10.0.0.5 93.184.216.34 41000 443 99 4026531992",
		"1.750000 SEND 300 other 4 127.0.0.1 127.0.0.1 9999 50000 77 4026599999",
	})
	require.NoError(t, i.join(rows))

	records, _ := i.Drain()
	require.Len(t, records, 2)

	require.Equal(t, int64(1_000_000_000), records[0].Ts)
	require.Equal(t, []string{"100:curl:50000", "200:nginx:8080", "SEND"}, records[0].Stack)
	require.Equal(t, float64(512), records[0].Value)

	require.Equal(t, int64(1_250_000_000), records[1].Ts)
	require.Equal(t, []string{"200:nginx:8080", "100:curl:50000", "RECV"}, records[1].Stack)
}

func TestIPCJoinAmbiguousPort(t *testing.T) {
	i := newJoinIPC()

	rows := parseRows(t, []string{
		"1.0 SEND 100 curl 4 127.0.0.1 127.0.0.1 50000 8080 10 4026531992",
		"2.0 SEND 300 wget 4 127.0.0.1 127.0.0.1 50000 8080 10 4026531992",
	})
	require.ErrorIs(t, i.join(rows), ErrAmbiguousPort)
}

func TestIPCJoinUnresolvedPort(t *testing.T) {
	i := newJoinIPC()

	rows := parseRows(t, []string{
		"1.0 SEND 100 curl 4 127.0.0.1 127.0.0.1 50000 8080 10 4026531992",
	})
	require.ErrorIs(t, i.join(rows), ErrUnresolvedPort)
}

func TestIPCJoinNothingCaptured(t *testing.T) {
	i := newJoinIPC()
	require.NoError(t, i.join(nil))

	records, _ := i.Drain()
	require.Empty(t, records)
}
