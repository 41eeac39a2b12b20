package display

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// Flamegraph writes collapsed stacks, the input flamegraph.pl folds:
// one line per distinct stack, frames outermost first joined by
// semicolons, then the accumulated weight. The palette choice rides
// along in a leading comment for whoever drives the final SVG.
type Flamegraph struct {
	params config.FlamegraphParams
}

func NewFlamegraph(params config.FlamegraphParams) *Flamegraph {
	return &Flamegraph{params: params}
}

func (f *Flamegraph) Mode() config.Mode { return config.Flamegraph }

func (f *Flamegraph) Ext() string { return "folded" }

func (f *Flamegraph) Render(view *stream.Stream, w io.Writer) error {
	if view.Empty() {
		return errors.Wrap(ErrRender, "empty event stream")
	}

	weights := make(map[string]float64)
	for _, rec := range view.Records {
		if len(rec.Stack) == 0 {
			continue
		}
		weights[strings.Join(reversed(rec.Stack), ";")] += rec.Value
	}
	if len(weights) == 0 {
		return errors.Wrap(ErrRender, "no stacks to fold")
	}

	keys := make([]string, 0, len(weights))
	for key := range weights {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := bufio.NewWriter(w)
	fmt.Fprintf(out, "# coloring: %s\n", f.params.Coloring)
	for _, key := range keys {
		fmt.Fprintf(out, "%s %s\n", key, formatValue(weights[key]))
	}

	return errors.Wrap(out.Flush(), "writing folded stacks")
}
