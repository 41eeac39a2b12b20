package display

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// Router resolves which renderer serves an interface and validates the
// stream against the mode's schema before any artifact is written.
// Collection never assumes a downstream renderer, so this is the first
// place shape problems surface.
type Router struct {
	cfg    *config.Config
	logger log.Logger
}

func NewRouter(cfg *config.Config, logger log.Logger) *Router {
	return &Router{cfg: cfg, logger: logger}
}

// Select resolves the display mode for an interface, explicit override
// first and configured default second, and returns the renderer once
// the view passes the mode's schema checks.
func (r *Router) Select(iface config.Interface, override config.Mode, view *stream.Stream) (Renderer, error) {
	mode, err := r.resolve(iface, override)
	if err != nil {
		return nil, err
	}

	if err := checkSchema(mode, r.cfg, view); err != nil {
		return nil, errors.Wrapf(err, "interface %s as %s", iface, mode)
	}

	r.logger.Debug().Str("interface", string(iface)).Str("mode", string(mode)).
		Msg("display mode resolved")

	return r.renderer(mode), nil
}

func (r *Router) resolve(iface config.Interface, override config.Mode) (config.Mode, error) {
	if override != "" {
		if !config.KnownMode(string(override)) {
			return "", errors.Wrapf(config.ErrUnknownMode, "%q", override)
		}

		return override, nil
	}

	mode, ok := r.cfg.DefaultMode(iface)
	if !ok {
		return "", errors.Wrapf(config.ErrUnknownInterface, "%q has no display mapping", iface)
	}

	return mode, nil
}

func (r *Router) renderer(mode config.Mode) Renderer {
	switch mode {
	case config.Flamegraph:
		return NewFlamegraph(r.cfg.Flamegraph)
	case config.Treemap:
		return NewTreemap(r.cfg.Treemap)
	case config.G2:
		return NewG2(r.cfg.G2)
	case config.Heatmap:
		return NewHeatmap(r.cfg.Heatmap)
	case config.Stackplot:
		return NewStackplot(r.cfg.Stackplot)
	case config.TCPPlot:
		return NewTCPPlot()
	}

	// resolve only hands over known modes.
	return nil
}

// checkSchema verifies the stream carries what the mode consumes: g2
// needs the attribution dimension its track uses, the hierarchy modes
// need at least one stack, the series modes need finite values over a
// real time span.
func checkSchema(mode config.Mode, cfg *config.Config, view *stream.Stream) error {
	switch mode {
	case config.G2:
		return checkTracks(cfg.G2.Track, view)
	case config.Flamegraph, config.Stackplot, config.Treemap:
		return checkStacks(view)
	case config.Heatmap, config.TCPPlot:
		return checkSeries(view)
	}

	return nil
}

func checkTracks(track string, view *stream.Stream) error {
	for _, rec := range view.Records {
		switch track {
		case config.TrackPid:
			if rec.Pid < 0 {
				return errors.Wrap(ErrSchema, "record without pid attribution on a pid track")
			}
		case config.TrackCpu:
			if rec.Cpu < 0 {
				return errors.Wrap(ErrSchema, "record without cpu attribution on a cpu track")
			}
		}
	}

	return nil
}

func checkStacks(view *stream.Stream) error {
	for _, rec := range view.Records {
		if len(rec.Stack) > 0 {
			return nil
		}
	}

	return errors.Wrap(ErrSchema, "no record carries a stack")
}

// checkSeries relies on views being timestamp-ordered, so distinct
// timestamps are counted from adjacent transitions.
func checkSeries(view *stream.Stream) error {
	distinct := 0
	var last int64
	for i, rec := range view.Records {
		if math.IsNaN(rec.Value) || math.IsInf(rec.Value, 0) {
			return errors.Wrapf(ErrSchema, "non-finite value at record %d", i)
		}
		if i == 0 || rec.Ts != last {
			distinct++
			last = rec.Ts
		}
	}
	if distinct < 2 {
		return errors.Wrap(ErrSchema, "need at least two distinct timestamps")
	}

	return nil
}
