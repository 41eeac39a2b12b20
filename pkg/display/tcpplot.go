package display

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// TCPPlot writes one CSV row per local message: time, message type,
// source and destination endpoints, payload size. The ipc collector
// emits records with exactly this stack layout.
type TCPPlot struct{}

func NewTCPPlot() *TCPPlot { return &TCPPlot{} }

func (t *TCPPlot) Mode() config.Mode { return config.TCPPlot }

func (t *TCPPlot) Ext() string { return "csv" }

func (t *TCPPlot) Render(view *stream.Stream, w io.Writer) error {
	if view.Empty() {
		return errors.Wrap(ErrRender, "empty event stream")
	}

	out := bufio.NewWriter(w)
	fmt.Fprintln(out, "time,type,source,dest,size")
	for i, rec := range view.Records {
		if len(rec.Stack) < 2 {
			return errors.Wrapf(ErrRender, "record %d lacks endpoint labels", i)
		}
		msgType := ""
		if len(rec.Stack) > 2 {
			msgType = rec.Stack[2]
		}
		fmt.Fprintf(out, "%s,%s,%s,%s,%s\n",
			seconds(rec.Ts), msgType, rec.Stack[0], rec.Stack[1], formatValue(rec.Value))
	}

	return errors.Wrap(out.Flush(), "writing message rows")
}
