package display

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// Treemap writes the rows a treemap builder consumes: a numbered
// header naming one column per hierarchy level, then one
// "value;frame;frame" row per stack, outermost frame first, cut off at
// the configured depth.
type Treemap struct {
	params config.TreemapParams
}

func NewTreemap(params config.TreemapParams) *Treemap {
	return &Treemap{params: params}
}

func (t *Treemap) Mode() config.Mode { return config.Treemap }

func (t *Treemap) Ext() string { return "csv" }

func (t *Treemap) Render(view *stream.Stream, w io.Writer) error {
	if view.Empty() {
		return errors.Wrap(ErrRender, "empty event stream")
	}

	var rows [][]string
	depth := 0
	for _, rec := range view.Records {
		if len(rec.Stack) == 0 {
			continue
		}
		frames := reversed(rec.Stack)
		if len(frames) > t.params.Depth {
			frames = frames[:t.params.Depth]
		}
		if len(frames) > depth {
			depth = len(frames)
		}
		rows = append(rows, append([]string{formatValue(rec.Value)}, frames...))
	}
	if len(rows) == 0 {
		return errors.Wrap(ErrRender, "no stacks to decompose")
	}

	header := make([]string, 0, depth+1)
	header = append(header, "value")
	for level := 1; level <= depth; level++ {
		header = append(header, strconv.Itoa(level))
	}

	out := bufio.NewWriter(w)
	fmt.Fprintln(out, strings.Join(header, ";"))
	for _, row := range rows {
		fmt.Fprintln(out, strings.Join(row, ";"))
	}

	return errors.Wrap(out.Flush(), "writing treemap rows")
}
