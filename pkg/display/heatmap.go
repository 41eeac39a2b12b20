package display

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// Heatmap writes a bucketed density grid as CSV. The run window is cut
// into figure_size times scale columns and the value range into y_res
// rows; each output line carries one bucket's midpoints and its count.
// Normalised scales counts against the densest bucket, so downstream
// color maps need no range information.
type Heatmap struct {
	params config.HeatmapParams
}

func NewHeatmap(params config.HeatmapParams) *Heatmap {
	return &Heatmap{params: params}
}

func (h *Heatmap) Mode() config.Mode { return config.Heatmap }

func (h *Heatmap) Ext() string { return "csv" }

func (h *Heatmap) Render(view *stream.Stream, w io.Writer) error {
	if view.Empty() {
		return errors.Wrap(ErrRender, "empty event stream")
	}

	t0 := view.Records[0].Ts
	t1 := view.Records[len(view.Records)-1].Ts
	if t1 <= t0 {
		return errors.Wrap(ErrRender, "no time span to bucket")
	}

	vmin, vmax := view.Records[0].Value, view.Records[0].Value
	for _, rec := range view.Records {
		if rec.Value < vmin {
			vmin = rec.Value
		}
		if rec.Value > vmax {
			vmax = rec.Value
		}
	}

	cols := int(h.params.FigureSize * h.params.Scale)
	if cols < 1 {
		cols = 1
	}
	rows := int(h.params.YRes)
	if rows < 1 || vmax == vmin {
		rows = 1
	}

	tspan := float64(t1 - t0)
	vspan := vmax - vmin

	counts := make([][]float64, rows)
	for y := range counts {
		counts[y] = make([]float64, cols)
	}
	for _, rec := range view.Records {
		x := bucket(float64(rec.Ts-t0), tspan, cols)
		y := bucket(rec.Value-vmin, vspan, rows)
		counts[y][x]++
	}

	if h.params.Normalised {
		max := 0.0
		for _, row := range counts {
			for _, c := range row {
				if c > max {
					max = c
				}
			}
		}
		for y := range counts {
			for x := range counts[y] {
				counts[y][x] /= max
			}
		}
	}

	out := bufio.NewWriter(w)
	fmt.Fprintln(out, "time,value,count")
	for y := range counts {
		vmid := vmin + (float64(y)+0.5)*vspan/float64(rows)
		for x := range counts[y] {
			tmid := (float64(t0) + (float64(x)+0.5)*tspan/float64(cols)) / 1e9
			fmt.Fprintf(out, "%s,%s,%s\n",
				strconv.FormatFloat(tmid, 'f', 6, 64),
				formatValue(vmid),
				formatValue(counts[y][x]))
		}
	}

	return errors.Wrap(out.Flush(), "writing heatmap grid")
}

// bucket maps an offset within a span onto one of n buckets, keeping
// the span's far edge inside the last bucket.
func bucket(offset, span float64, n int) int {
	if span <= 0 {
		return 0
	}

	idx := int(offset / span * float64(n))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}

	return idx
}
