package collect

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ensoft/marple/internal/settings"
	"github.com/ensoft/marple/pkg/cmd/common"
	"github.com/ensoft/marple/pkg/cmd/options"
	"github.com/ensoft/marple/pkg/collect"
	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/datafile"
	"github.com/ensoft/marple/pkg/healthcheck"
	"github.com/ensoft/marple/pkg/stream"
)

const CmdName = "collect"

type Options struct {
	window     time.Duration
	frequency  float64
	systemWide bool
	pids       []int32
	cpus       []int32
	blocking   bool

	outfile string
	report  bool
	status  bool
	detach  bool

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s INTERFACE|ALIAS [INTERFACE|ALIAS...]", CmdName),
		Short: "Collect performance data for one or more interfaces",
		Long: fmt.Sprintf(`
%s attaches the probes behind the requested collection interfaces, records
their events for the collection window and saves the normalized stream as a
data file for later display.
`, CmdName),
		DisableAutoGenTag: true,
		Args:              cobra.MinimumNArgs(1),
		RunE:              o.Run,
	}

	cmd.Flags().DurationVarP(&o.window, "time", "t", 10*time.Second, "Collection window")
	cmd.Flags().Float64VarP(&o.frequency, "frequency", "F", 99, "Sampling frequency in Hz for the sampling collectors")
	cmd.Flags().BoolVarP(&o.systemWide, "system-wide", "a", false, "Collect from the whole system")
	cmd.Flags().Int32SliceVar(&o.pids, "pid", nil, "Restrict collection to these PIDs")
	cmd.Flags().Int32SliceVar(&o.cpus, "cpu", nil, "Restrict collection to these CPUs")
	cmd.Flags().BoolVar(&o.blocking, "blocking", true, "End the run as soon as every source is exhausted")

	cmd.Flags().StringVarP(&o.outfile, "outfile", "o", "", "Path of the output data file")
	cmd.Flags().BoolVar(&o.report, "report", false, fmt.Sprintf("Generate a run report (as %s)", collect.ReportFileName))
	cmd.Flags().BoolVar(&o.status, "status", true, "Periodically print a status of the collection")
	cmd.Flags().BoolVarP(&o.detach, "detach", "d", false, fmt.Sprintf("Run %s as daemon", settings.CmdName))

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	cfg, err := config.Load(o.ConfigFile, o.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	o.override(cmd, cfg)

	kinds, err := collect.Resolve(cfg, splitArgs(args))
	if err != nil {
		return err
	}

	if o.detach {
		return o.daemonize(cmd, args)
	}

	// Store PID file.
	if err := common.WritePidFile(os.Getpid()); err != nil {
		return errors.Wrap(err, "failed to write PID file")
	}
	defer os.Remove(settings.PidFile)

	health := healthcheck.NewServer(settings.SockFile, o.Logger)
	if err := health.Listen(o.Ctx); err != nil {
		return errors.Wrap(err, "failed to open the readiness socket")
	}
	defer health.Close()

	clock, err := stream.NewClock()
	if err != nil {
		return errors.Wrap(err, "failed to read the monotonic clock")
	}

	coord := collect.NewCoordinator(kinds,
		collect.WithConfig(cfg),
		collect.WithClock(clock),
		collect.WithLogger(o.Logger),
		collect.WithStatus(o.status),
		collect.WithReadyCallback(health.NotifyReady),
	)

	s, runErr := coord.Run(o.Ctx)
	if s == nil {
		return runErr
	}

	outfile, err := o.dataFilePath()
	if err != nil {
		return err
	}
	if err := datafile.Save(outfile, s); err != nil {
		return err
	}
	if err := datafile.UpdateLast(outfile); err != nil {
		o.Logger.Warn().Err(err).Msg("failed to update the last-run marker")
	}
	o.Logger.Info().Str("file", outfile).Int("records", len(s.Records)).Msg("data file written")

	if o.report {
		if err := o.writeReport(s, runErr, outfile); err != nil {
			return err
		}
	}

	return o.verdict(cfg, runErr)
}

// override applies the command line on top of the configuration. Only
// flags the user actually set win over the file.
func (o *Options) override(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("time") {
		cfg.General.Time = o.window
	}
	if cmd.Flags().Changed("frequency") {
		cfg.General.Frequency = o.frequency
	}
	if cmd.Flags().Changed("blocking") {
		cfg.General.Blocking = o.blocking
	}

	if o.systemWide {
		cfg.General.Scope = config.SystemWide()
	} else if len(o.pids) > 0 || len(o.cpus) > 0 {
		cfg.General.Scope = config.Scope{Pids: o.pids, Cpus: o.cpus}
	}
}

// verdict decides the exit status of a run that produced data. With
// warnings enabled partial failures are reported and tolerated; with
// warnings disabled they fail the command.
func (o *Options) verdict(cfg *config.Config, runErr error) error {
	if runErr == nil {
		return nil
	}

	var partial *collect.PartialFailure
	if errors.As(runErr, &partial) && cfg.General.Warnings {
		for _, f := range partial.Failures {
			o.Logger.Warn().Str("interface", string(f.Interface)).Str("stage", f.Stage).
				Err(f.Err).Msg("collector failed")
		}

		return nil
	}

	return runErr
}

func (o *Options) dataFilePath() (string, error) {
	if o.outfile != "" {
		return o.outfile, nil
	}

	dir, err := settings.DataDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve the data directory")
	}

	return filepath.Join(dir, settings.DataFileName(time.Now())), nil
}

func (o *Options) writeReport(s *stream.Stream, runErr error, outfile string) error {
	var failures []collect.Failure
	var partial *collect.PartialFailure
	if errors.As(runErr, &partial) {
		failures = partial.Failures
	}

	f, err := os.Create(collect.ReportFileName)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", collect.ReportFileName)
	}
	defer f.Close()

	report := collect.NewRunReport(
		collect.WithReportStream(s),
		collect.WithReportFailures(failures),
		collect.WithReportDataFile(outfile),
	)

	return report.WriteReport(f)
}

func (o *Options) daemonize(cmd *cobra.Command, args []string) error {
	// Check if already running.
	if common.IsDaemonRunning() {
		fmt.Println("Daemon already running")
		return nil
	}

	// Start the daemon process: re-exec the same collection without
	// --detach. Only flags the user set are forwarded, so the child
	// resolves its configuration file the same way the parent did.
	argv := []string{CmdName}
	argv = append(argv, args...)

	flags := cmd.Flags()
	if flags.Changed("time") {
		argv = append(argv, fmt.Sprintf("--time=%s", o.window))
	}
	if flags.Changed("frequency") {
		argv = append(argv, fmt.Sprintf("--frequency=%s", strconv.FormatFloat(o.frequency, 'f', -1, 64)))
	}
	if o.systemWide {
		argv = append(argv, "--system-wide")
	}
	for _, pid := range o.pids {
		argv = append(argv, fmt.Sprintf("--pid=%d", pid))
	}
	for _, cpu := range o.cpus {
		argv = append(argv, fmt.Sprintf("--cpu=%d", cpu))
	}
	if flags.Changed("blocking") {
		argv = append(argv, fmt.Sprintf("--blocking=%s", strconv.FormatBool(o.blocking)))
	}
	if o.outfile != "" {
		argv = append(argv, fmt.Sprintf("--outfile=%s", o.outfile))
	}
	argv = append(argv, fmt.Sprintf("--report=%s", strconv.FormatBool(o.report)))
	argv = append(argv, fmt.Sprintf("--status=%s", strconv.FormatBool(o.status)))
	if o.ConfigFile != "" {
		argv = append(argv, fmt.Sprintf("--config=%s", o.ConfigFile))
	}
	argv = append(argv, fmt.Sprintf("--log-level=%s", o.LogLevel))

	daemon := exec.Command(os.Args[0], argv...)
	daemon.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// Redirect output to log file.
	if settings.LogFile != "" {
		f, err := os.OpenFile(settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			o.Logger.Error().Err(err).Msg("failed to open log file")
			return err
		}
		daemon.Stdout = f
		daemon.Stderr = f
	}

	if err := daemon.Start(); err != nil {
		o.Logger.Error().Err(err).Msgf("failed to start %s", settings.CmdName)
		return err
	}

	// Store PID file.
	if err := common.WritePidFile(daemon.Process.Pid); err != nil {
		o.Logger.Error().Err(err).Msg("failed to write PID file")
		return err
	}

	return nil
}

// splitArgs accepts both space and comma separated interface lists.
func splitArgs(args []string) []string {
	var names []string
	for _, arg := range args {
		for _, name := range strings.Split(arg, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}

	return names
}
