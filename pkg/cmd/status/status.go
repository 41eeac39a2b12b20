package status

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ensoft/marple/internal/settings"
	"github.com/ensoft/marple/pkg/cmd/common"
	"github.com/ensoft/marple/pkg/cmd/options"
	"github.com/ensoft/marple/pkg/datafile"
)

type Options struct {
	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{opts}

	cmd := &cobra.Command{
		Use:               "status",
		Short:             fmt.Sprintf("Check the %s collection daemon status", settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Run:               o.Run,
	}

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()

	if common.IsDaemonRunning() {
		fmt.Fprintf(out, "%s is running (PID %d)\n", settings.CmdName, common.Pid())
	} else {
		fmt.Fprintf(out, "%s is not running\n", settings.CmdName)
	}

	if last, err := datafile.Last(); err == nil {
		fmt.Fprintf(out, "last data file: %s\n", last)
	}
}
