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

// Stackplot writes a wide CSV time series for stacked-area plotting:
// one column per label, one row per distinct timestamp, keeping only
// the top labels by total weight. The label is the record's first
// stack entry, the shape the samplers emit.
type Stackplot struct {
	params config.StackplotParams
}

func NewStackplot(params config.StackplotParams) *Stackplot {
	return &Stackplot{params: params}
}

func (s *Stackplot) Mode() config.Mode { return config.Stackplot }

func (s *Stackplot) Ext() string { return "csv" }

func (s *Stackplot) Render(view *stream.Stream, w io.Writer) error {
	if view.Empty() {
		return errors.Wrap(ErrRender, "empty event stream")
	}

	totals := make(map[string]float64)
	for _, rec := range view.Records {
		if label := rec.Label(); label != "" {
			totals[label] += rec.Value
		}
	}
	if len(totals) == 0 {
		return errors.Wrap(ErrRender, "no labelled records")
	}

	labels := make([]string, 0, len(totals))
	for label := range totals {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if totals[labels[i]] != totals[labels[j]] {
			return totals[labels[i]] > totals[labels[j]]
		}

		return labels[i] < labels[j]
	})
	if len(labels) > s.params.Top {
		labels = labels[:s.params.Top]
	}

	keep := make(map[string]int, len(labels))
	for i, label := range labels {
		keep[label] = i
	}

	// Pivot on timestamp: samplers stamp one tick's records alike, so
	// each distinct timestamp becomes one row.
	var times []int64
	cells := make(map[int64][]float64)
	for _, rec := range view.Records {
		col, ok := keep[rec.Label()]
		if !ok {
			continue
		}
		row, ok := cells[rec.Ts]
		if !ok {
			row = make([]float64, len(labels))
			cells[rec.Ts] = row
			times = append(times, rec.Ts)
		}
		row[col] += rec.Value
	}

	out := bufio.NewWriter(w)
	fmt.Fprintf(out, "time,%s\n", strings.Join(labels, ","))
	for _, ts := range times {
		fields := make([]string, 0, len(labels)+1)
		fields = append(fields, seconds(ts))
		for _, v := range cells[ts] {
			fields = append(fields, formatValue(v))
		}
		fmt.Fprintln(out, strings.Join(fields, ","))
	}

	return errors.Wrap(out.Flush(), "writing stackplot series")
}
