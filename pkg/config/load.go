package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ensoft/marple/internal/utils"
)

const (
	configName = "config"
	configType = "ini"
)

// sectionKeys lists the options each plain section accepts. The
// displayinterfaces and aliases sections are keyed by interface and
// alias names instead and are validated separately.
var sectionKeys = map[string]map[string]bool{
	"general": {
		"blocking":    true,
		"time":        true,
		"frequency":   true,
		"system_wide": true,
		"warnings":    true,
	},
	"heatmap": {
		"figure_size": true,
		"scale":       true,
		"y_res":       true,
		"normalised":  true,
	},
	"g2":         {"track": true},
	"stackplot":  {"top": true},
	"treemap":    {"depth": true},
	"flamegraph": {"coloring": true},
	"tcpplot":    {},
}

// Default returns the built-in configuration used when no config file
// is present.
func Default() *Config {
	return &Config{
		General: General{
			Blocking:  true,
			Time:      10 * time.Second,
			Frequency: 99,
			Scope:     SystemWide(),
			Warnings:  true,
		},
		Display: map[Interface]Mode{
			CPUSched:     G2,
			DiskLatency:  Heatmap,
			MallocStacks: Treemap,
			MemLeak:      Flamegraph,
			MemTime:      Stackplot,
			CallStack:    Flamegraph,
			IPC:          TCPPlot,
			MemEvents:    Heatmap,
			DiskBlockRQ:  Heatmap,
			PerfMalloc:   Flamegraph,
			Lib:          Flamegraph,
		},
		Aliases: map[string][]Interface{
			"boot": {MemLeak, CPUSched, DiskLatency},
		},
		Heatmap: HeatmapParams{FigureSize: 10, Scale: 5, YRes: 10, Normalised: true},
		// System-wide runs attribute scheduler events by CPU, not pid,
		// so the cpu track is the one that always validates.
		G2:         G2Params{Track: TrackCpu},
		Stackplot:  StackplotParams{Top: 5},
		Treemap:    TreemapParams{Depth: 25},
		Flamegraph: FlamegraphParams{Coloring: "hot"},
	}
}

// Load reads the configuration from path, or searches /etc/marple,
// $HOME/.marple and the working directory when path is empty. Missing
// files fall back to Default; malformed or out-of-range options are
// errors.
func Load(path string, logger log.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType(configType)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc/marple")
		v.AddConfigPath("$HOME/.marple")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); path != "" || !notFound {
			return nil, errors.Wrap(err, "reading configuration")
		}
		logger.Debug().Msg("no configuration file found, using defaults")
	} else {
		logger.Debug().Str("file", v.ConfigFileUsed()).Msg("configuration loaded")
	}

	return build(v, logger)
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("general.blocking", d.General.Blocking)
	v.SetDefault("general.time", d.General.Time.Seconds())
	v.SetDefault("general.frequency", d.General.Frequency)
	v.SetDefault("general.system_wide", d.General.Scope.String())
	v.SetDefault("general.warnings", d.General.Warnings)

	for iface, mode := range d.Display {
		v.SetDefault("displayinterfaces."+string(iface), string(mode))
	}
	for alias, ifaces := range d.Aliases {
		names := make([]string, 0, len(ifaces))
		for _, i := range ifaces {
			names = append(names, string(i))
		}
		v.SetDefault("aliases."+alias, strings.Join(names, ","))
	}

	v.SetDefault("heatmap.figure_size", d.Heatmap.FigureSize)
	v.SetDefault("heatmap.scale", d.Heatmap.Scale)
	v.SetDefault("heatmap.y_res", d.Heatmap.YRes)
	v.SetDefault("heatmap.normalised", d.Heatmap.Normalised)
	v.SetDefault("g2.track", d.G2.Track)
	v.SetDefault("stackplot.top", d.Stackplot.Top)
	v.SetDefault("treemap.depth", d.Treemap.Depth)
	v.SetDefault("flamegraph.coloring", d.Flamegraph.Coloring)
}

func build(v *viper.Viper, logger log.Logger) (*Config, error) {
	warnings := v.GetBool("general.warnings")

	if err := checkKeys(v, warnings, logger); err != nil {
		return nil, err
	}

	scope, err := ParseScope(v.GetString("general.system_wide"))
	if err != nil {
		return nil, err
	}

	collectTime := time.Duration(v.GetFloat64("general.time") * float64(time.Second))
	if collectTime <= 0 {
		return nil, errors.Wrap(ErrBadValue, "general.time must be positive")
	}

	frequency := v.GetFloat64("general.frequency")
	if frequency <= 0 {
		return nil, errors.Wrap(ErrBadValue, "general.frequency must be positive")
	}

	display := make(map[Interface]Mode, len(Interfaces()))
	for _, iface := range Interfaces() {
		mode := v.GetString("displayinterfaces." + string(iface))
		if !KnownMode(mode) {
			return nil, errors.Wrapf(ErrUnknownMode, "%q for interface %s", mode, iface)
		}
		display[iface] = Mode(mode)
	}

	aliases, err := buildAliases(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		General: General{
			Blocking:  v.GetBool("general.blocking"),
			Time:      collectTime,
			Frequency: frequency,
			Scope:     scope,
			Warnings:  warnings,
		},
		Display: display,
		Aliases: aliases,
		Heatmap: HeatmapParams{
			FigureSize: v.GetFloat64("heatmap.figure_size"),
			Scale:      v.GetFloat64("heatmap.scale"),
			YRes:       v.GetFloat64("heatmap.y_res"),
			Normalised: v.GetBool("heatmap.normalised"),
		},
		G2:         G2Params{Track: v.GetString("g2.track")},
		Stackplot:  StackplotParams{Top: v.GetInt("stackplot.top")},
		Treemap:    TreemapParams{Depth: v.GetInt("treemap.depth")},
		Flamegraph: FlamegraphParams{Coloring: v.GetString("flamegraph.coloring")},
	}

	if err := checkValues(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// checkKeys walks every option viper knows about and rejects the ones
// marple does not. Unknown interface names are always fatal; other
// unknown options are fatal only when warnings are enabled, and logged
// otherwise.
func checkKeys(v *viper.Viper, warnings bool, logger log.Logger) error {
	for _, key := range v.AllKeys() {
		section, opt, found := strings.Cut(key, ".")
		if !found {
			if err := unknownOption(logger, warnings, key); err != nil {
				return err
			}
			continue
		}

		switch section {
		case "displayinterfaces":
			if !KnownInterface(opt) {
				return errors.Wrapf(ErrUnknownInterface, "%q in displayinterfaces", opt)
			}
		case "aliases":
			if KnownInterface(opt) {
				return errors.Wrapf(ErrAliasCollision, "%q", opt)
			}
		default:
			known, ok := sectionKeys[section]
			if !ok || !known[opt] {
				if err := unknownOption(logger, warnings, key); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func unknownOption(logger log.Logger, warnings bool, key string) error {
	if warnings {
		return errors.Wrapf(ErrUnknownOption, "%q", key)
	}
	logger.Debug().Str("option", key).Msg("ignoring unknown configuration option")

	return nil
}

func buildAliases(v *viper.Viper) (map[string][]Interface, error) {
	aliases := make(map[string][]Interface)

	for _, key := range v.AllKeys() {
		name, found := strings.CutPrefix(key, "aliases.")
		if !found {
			continue
		}

		var ifaces []Interface
		for _, part := range strings.Split(v.GetString(key), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !KnownInterface(part) {
				return nil, errors.Wrapf(ErrUnknownInterface, "%q in alias %s", part, name)
			}
			ifaces = append(ifaces, Interface(part))
		}
		if len(ifaces) == 0 {
			return nil, errors.Wrapf(ErrBadValue, "alias %s expands to nothing", name)
		}

		aliases[name] = utils.Dedupe(ifaces)
	}

	return aliases, nil
}

func checkValues(cfg *Config) error {
	switch {
	case cfg.Heatmap.FigureSize <= 0:
		return errors.Wrap(ErrBadValue, "heatmap.figure_size must be positive")
	case cfg.Heatmap.Scale <= 0:
		return errors.Wrap(ErrBadValue, "heatmap.scale must be positive")
	case cfg.Heatmap.YRes <= 0:
		return errors.Wrap(ErrBadValue, "heatmap.y_res must be positive")
	case cfg.Stackplot.Top <= 0:
		return errors.Wrap(ErrBadValue, "stackplot.top must be positive")
	case cfg.Treemap.Depth <= 0:
		return errors.Wrap(ErrBadValue, "treemap.depth must be positive")
	case cfg.Flamegraph.Coloring == "":
		return errors.Wrap(ErrBadValue, "flamegraph.coloring must not be empty")
	}

	if cfg.G2.Track != TrackPid && cfg.G2.Track != TrackCpu {
		return errors.Wrapf(ErrBadValue, "g2.track must be %q or %q", TrackPid, TrackCpu)
	}

	return nil
}
