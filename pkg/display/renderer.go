package display

import (
	"io"
	"strconv"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// Renderer writes one display mode's artifact. Renderers consume the
// normalized stream only; nothing interface-specific reaches them.
type Renderer interface {
	Mode() config.Mode

	// Ext is the artifact file extension, without the dot.
	Ext() string

	Render(view *stream.Stream, w io.Writer) error
}

// seconds renders a run-relative timestamp for a CSV time column.
func seconds(ts int64) string {
	return strconv.FormatFloat(float64(ts)/1e9, 'f', 6, 64)
}

// formatValue renders a sample weight without a forced decimal point,
// so counts stay integers.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// reversed returns the stack outermost frame first, the order the
// hierarchy renderers consume.
func reversed(stack []string) []string {
	out := make([]string, len(stack))
	for i, frame := range stack {
		out[len(stack)-1-i] = frame
	}

	return out
}
