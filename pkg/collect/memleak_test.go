package collect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMemleakHeader(t *testing.T) {
	require.True(t, isMemleakHeader("[14:17:01] Top 10 stacks with outstanding allocations:"))
	require.False(t, isMemleakHeader("1024 bytes in 2 allocations from stack"))
	require.False(t, isMemleakHeader("Attaching to kernel allocators..."))
	require.False(t, isMemleakHeader(""))
}

func TestIsMemleakStackStart(t *testing.T) {
	require.True(t, isMemleakStackStart("\t1024 bytes in 2 allocations from stack"))
	require.True(t, isMemleakStackStart("52 bytes in 1 allocations from stack"))
	require.False(t, isMemleakStackStart("[14:17:01] Top 10 stacks with outstanding allocations:"))
	require.False(t, isMemleakStackStart("\t\tmalloc+0x10 [libc.so.6]"))
}

func TestParseMemleakBytes(t *testing.T) {
	require.Equal(t, float64(1024), parseMemleakBytes("1024 bytes in 2 allocations from stack"))
	require.Equal(t, float64(52), parseMemleakBytes("\t52 bytes in 1 allocations from stack"))
	require.Equal(t, float64(0), parseMemleakBytes(""))
	require.Equal(t, float64(0), parseMemleakBytes("no leading number"))
}

func TestParseMemleakFrame(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"\t\tmalloc+0x10 [libc.so.6]", "malloc", true},
		{"\t\toperator_new [libstdc++.so.6]", "operator_new", true},
		{"\t\tmain", "main", true},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := parseMemleakFrame(tt.line)
		require.Equal(t, tt.ok, ok, "line %q", tt.line)
		if tt.ok {
			require.Equal(t, tt.want, got, "line %q", tt.line)
		}
	}
}
