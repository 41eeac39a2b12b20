package wait

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ensoft/marple/internal/settings"
	"github.com/ensoft/marple/pkg/cmd/options"
	"github.com/ensoft/marple/pkg/healthcheck"
)

const CmdName = "wait"

type Options struct {
	socketPath string
	timeout    time.Duration

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:               CmdName,
		Short:             fmt.Sprintf("Wait for the %s probes to be armed", settings.CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	cmd.Flags().StringVarP(&o.socketPath, "socket-path", "s", settings.SockFile, fmt.Sprintf("Path to the %s socket file", settings.CmdName))
	cmd.Flags().DurationVar(&o.timeout, "timeout", 120*time.Second, "Timeout")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel).With().Str("component", CmdName).Logger()

	o.Logger.Info().Msg("waiting for the collection to be ready")
	if err := healthcheck.WaitReady(o.socketPath, o.timeout); err != nil {
		return errors.Wrap(err, "waiting for readiness")
	}
	o.Logger.Info().Msg("collection is ready")

	return nil
}
