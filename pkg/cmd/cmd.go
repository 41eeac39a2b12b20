package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ensoft/marple/internal/settings"
	"github.com/ensoft/marple/pkg/cmd/collect"
	"github.com/ensoft/marple/pkg/cmd/display"
	"github.com/ensoft/marple/pkg/cmd/list"
	"github.com/ensoft/marple/pkg/cmd/options"
	"github.com/ensoft/marple/pkg/cmd/status"
	"github.com/ensoft/marple/pkg/cmd/stop"
	"github.com/ensoft/marple/pkg/cmd/wait"
)

const logLevelInfo = "info"

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   settings.CmdName,
		Short: "marple is a Linux performance introspection tool",
		Long: `marple collects scheduler, memory and I/O events from the kernel through
perf, BCC tools and BPF probes, and renders them as flame graphs, heat
maps and other visualisations.`,
		DisableAutoGenTag: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", logLevelInfo, "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "Path to the configuration file")

	cmd.AddCommand(collect.NewCommand(opts))
	cmd.AddCommand(display.NewCommand(opts))
	cmd.AddCommand(list.NewCommand(opts))
	cmd.AddCommand(status.NewCommand(opts))
	cmd.AddCommand(stop.NewCommand(opts))
	cmd.AddCommand(wait.NewCommand(opts))

	return cmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	go func() {
		<-ctx.Done()
		cancel()
	}()

	opts := options.NewCommonOptions(
		options.WithContext(ctx),
		options.WithLogger(logger),
	)

	if err := NewCommand(opts).Execute(); err != nil {
		os.Exit(1)
	}
}
