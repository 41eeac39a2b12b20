package display

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ensoft/marple/pkg/cmd/options"
	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/datafile"
	"github.com/ensoft/marple/pkg/display"
	"github.com/ensoft/marple/pkg/stream"
)

const CmdName = "display"

type Options struct {
	infile     string
	mode       string
	interfaces []string
	outdir     string

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Render a collected data file into display artifacts",
		Long: fmt.Sprintf(`
%s loads a data file written by collect and renders one artifact per
collected interface, using the configured display mode for each.
`, CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	cmd.Flags().StringVarP(&o.infile, "infile", "i", "", "Data file to display (defaults to the last collection)")
	cmd.Flags().StringVarP(&o.mode, "mode", "m", "", "Display mode override (flamegraph, treemap, g2, heatmap, stackplot, tcpplot)")
	cmd.Flags().StringSliceVar(&o.interfaces, "interface", nil, "Only display these interfaces")
	cmd.Flags().StringVarP(&o.outdir, "outdir", "O", "", "Directory for the artifacts (defaults to the data file's directory)")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	cfg, err := config.Load(o.ConfigFile, o.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	infile := o.infile
	if infile == "" {
		if infile, err = datafile.Last(); err != nil {
			return err
		}
	}

	s, err := datafile.Load(infile)
	if err != nil {
		return err
	}
	if s.Empty() {
		return errors.Errorf("%s holds no records", infile)
	}

	kinds, err := o.selectKinds(s)
	if err != nil {
		return err
	}

	outdir := o.outdir
	if outdir == "" {
		outdir = filepath.Dir(infile)
	}
	base := strings.TrimSuffix(filepath.Base(infile), filepath.Ext(infile))

	router := display.NewRouter(cfg, o.Logger)
	for _, kind := range kinds {
		view := s.View(kind)

		renderer, err := router.Select(kind, config.Mode(o.mode), view)
		if err != nil {
			return err
		}

		path := filepath.Join(outdir, fmt.Sprintf("%s_%s.%s", base, kind, renderer.Ext()))
		if err := o.render(renderer, view, path); err != nil {
			return err
		}

		o.Logger.Info().Str("interface", string(kind)).Str("mode", string(renderer.Mode())).
			Str("file", path).Msg("artifact written")
	}

	return nil
}

// selectKinds returns the interfaces to render: by default every kind
// present in the stream, otherwise the selection from --interface.
func (o *Options) selectKinds(s *stream.Stream) ([]config.Interface, error) {
	if len(o.interfaces) == 0 {
		return s.Kinds(), nil
	}

	present := make(map[config.Interface]bool)
	for _, kind := range s.Kinds() {
		present[kind] = true
	}

	var kinds []config.Interface
	for _, name := range o.interfaces {
		if !config.KnownInterface(name) {
			return nil, errors.Wrapf(config.ErrUnknownInterface, "%q", name)
		}
		kind := config.Interface(name)
		if !present[kind] {
			return nil, errors.Errorf("interface %s is not in the data file", kind)
		}
		kinds = append(kinds, kind)
	}

	return kinds, nil
}

func (o *Options) render(r display.Renderer, view *stream.Stream, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}

	if err := r.Render(view, f); err != nil {
		f.Close()

		return errors.Wrapf(err, "failed to render %s", path)
	}

	return errors.Wrapf(f.Close(), "failed to close %s", path)
}
