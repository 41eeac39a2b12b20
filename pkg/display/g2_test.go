package display_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/display"
	"github.com/ensoft/marple/pkg/stream"
)

func readI32(t *testing.T, r io.Reader) int32 {
	t.Helper()
	var v int32
	require.NoError(t, binary.Read(r, binary.BigEndian, &v))

	return v
}

func readU32(t *testing.T, r io.Reader) uint32 {
	t.Helper()
	var v uint32
	require.NoError(t, binary.Read(r, binary.BigEndian, &v))

	return v
}

func skipSectionName(t *testing.T, r io.Reader) {
	t.Helper()
	name := make([]byte, 64)
	_, err := io.ReadFull(r, name)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(name, []byte("FileStrtab")))
}

func TestG2WritesCpelLayout(t *testing.T) {
	view := &stream.Stream{Records: []stream.Record{
		{Ts: 0x100000001, Pid: 10, Cpu: 2, Stack: []string{"context-switches"}, Value: 7, Kind: config.CPUSched},
		{Ts: 0x100000002, Pid: 10, Cpu: 1, Stack: []string{"context-switches"}, Value: 9, Kind: config.CPUSched},
	}}

	var buf bytes.Buffer
	err := display.NewG2(config.G2Params{Track: config.TrackCpu}).Render(view, &buf)
	require.NoError(t, err)

	data := buf.Bytes()
	// Endian bit clear, version 1, four sections.
	require.Equal(t, byte(0x01), data[0])
	require.Equal(t, byte(0x00), data[1])
	require.Equal(t, uint16(4), binary.BigEndian.Uint16(data[2:4]))

	r := bytes.NewReader(data[8:])

	// String table: padded to four bytes, FileStrtab first, the datum
	// format second.
	require.Equal(t, int32(1), readI32(t, r))
	strLen := readI32(t, r)
	require.Zero(t, strLen%4)
	table := make([]byte, strLen)
	_, err = io.ReadFull(r, table)
	require.NoError(t, err)

	strAt := func(off uint32) string {
		end := bytes.IndexByte(table[off:], 0)
		require.NotEqual(t, -1, end)

		return string(table[off : int(off)+end])
	}
	require.Equal(t, "FileStrtab", strAt(0))
	require.Equal(t, "%s", strAt(11))

	// One event definition: code 0 for the only event type, datum
	// format pointing at "%s".
	require.Equal(t, int32(3), readI32(t, r))
	require.Equal(t, int32(12+68), readI32(t, r))
	skipSectionName(t, r)
	require.Equal(t, uint32(1), readU32(t, r))
	require.Equal(t, uint32(0), readU32(t, r))
	require.Equal(t, "context-switches", strAt(readU32(t, r)))
	require.Equal(t, uint32(11), readU32(t, r))

	// Two tracks, listed by name: "cpu 1" was seen second so it holds
	// id 1 even though it sorts first.
	require.Equal(t, int32(4), readI32(t, r))
	require.Equal(t, int32(16+68), readI32(t, r))
	skipSectionName(t, r)
	require.Equal(t, uint32(2), readU32(t, r))
	require.Equal(t, uint32(1), readU32(t, r))
	require.Equal(t, "cpu 1", strAt(readU32(t, r)))
	require.Equal(t, uint32(0), readU32(t, r))
	require.Equal(t, "cpu 2", strAt(readU32(t, r)))

	// Events in input order with split 64-bit timestamps.
	require.Equal(t, int32(5), readI32(t, r))
	require.Equal(t, int32(40+72), readI32(t, r))
	skipSectionName(t, r)
	require.Equal(t, uint32(2), readU32(t, r))
	require.Equal(t, uint32(1000000), readU32(t, r))

	require.Equal(t, uint32(1), readU32(t, r))
	require.Equal(t, uint32(1), readU32(t, r))
	require.Equal(t, uint32(0), readU32(t, r)) // track "cpu 2"
	require.Equal(t, uint32(0), readU32(t, r)) // event code
	require.Equal(t, "7", strAt(readU32(t, r)))

	require.Equal(t, uint32(1), readU32(t, r))
	require.Equal(t, uint32(2), readU32(t, r))
	require.Equal(t, uint32(1), readU32(t, r)) // track "cpu 1"
	require.Equal(t, uint32(0), readU32(t, r))
	require.Equal(t, "9", strAt(readU32(t, r)))

	// Nothing trails the event section.
	require.Zero(t, r.Len())
}

func TestG2EmptyStream(t *testing.T) {
	err := display.NewG2(config.G2Params{Track: config.TrackCpu}).
		Render(&stream.Stream{}, &bytes.Buffer{})
	require.ErrorIs(t, err, display.ErrRender)
}
