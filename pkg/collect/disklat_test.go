package collect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/pkg/stream"
)

func TestDiskLatencyParse(t *testing.T) {
	d := NewDiskLatency(WithClock(&stream.Clock{}))

	tests := []struct {
		name string
		line string
		want stream.Record
		ok   bool
	}{
		{
			name: "completed request",
			line: "123.450000   123.500000  jbd2/vda1-8   321  WS  254,1  4820232  4096  2.10",
			want: stream.Record{
				Ts:    123500000000,
				Pid:   321,
				Tid:   -1,
				Cpu:   -1,
				Stack: []string{"jbd2/vda1-8"},
				Value: 2.1,
			},
			ok: true,
		},
		{
			name: "header row",
			line: "STARTs       ENDs       COMM         PID   TYPE  DEV   BLOCK     BYTES  LATms",
			ok:   false,
		},
		{
			name: "banner",
			line: "Tracing block I/O. Ctrl-C to end.",
			ok:   false,
		},
		{
			name: "truncated row",
			line: "123.450000 123.500000 dd 321",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.parse(tt.line)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}
