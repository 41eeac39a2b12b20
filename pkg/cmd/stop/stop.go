package stop

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ensoft/marple/internal/settings"
	"github.com/ensoft/marple/pkg/cmd/common"
	"github.com/ensoft/marple/pkg/cmd/options"
)

type Options struct {
	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{opts}

	cmd := &cobra.Command{
		Use:               "stop",
		Short:             fmt.Sprintf("Stop the %s collection daemon", settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Run:               o.Run,
	}

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) {
	pid := common.Pid()
	if pid <= 0 {
		fmt.Printf("%s not running or PID file not found\n", settings.CmdName)
		return
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		fmt.Println("Process not found")
		return
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		fmt.Printf("Failed to stop daemon: %v\n", err)
		return
	}

	// Wait for the process to stop. On SIGTERM the daemon detaches
	// its probes, drains the buffers and writes the data file, so
	// give it time to finish.
	for i := 0; i < 50; i++ {
		if !common.IsDaemonRunning() {
			fmt.Printf("%s stopped (PID %d)\n", settings.CmdName, pid)
			os.Remove(settings.PidFile)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Force kill if still running.
	process.Kill()
	os.Remove(settings.PidFile)
	fmt.Printf("%s force killed (PID %d)\n", settings.CmdName, pid)
}
