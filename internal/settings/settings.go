package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const CmdName = "marple"

var (
	PidFile  = fmt.Sprintf("/tmp/%s.pid", CmdName)
	LogFile  = fmt.Sprintf("/tmp/%s.log", CmdName)
	SockFile = fmt.Sprintf("/tmp/%s.sock", CmdName)
	LastFile = fmt.Sprintf("/tmp/%s.last", CmdName)
)

const (
	// External tool locations. BCC installs its example tools under
	// /usr/share/bcc/tools on most distributions; iosnoop comes from
	// brendangregg/perf-tools.
	BCCToolsDir  = "/usr/share/bcc/tools"
	PerfToolsDir = "/usr/share/perf-tools"

	// Compiled BPF objects shipped with marple.
	BPFObjectDir = "/usr/share/marple/bpf"

	// Tracefs mount points, primary and legacy fallback.
	TracefsDir       = "/sys/kernel/tracing"
	TracefsLegacyDir = "/sys/kernel/debug/tracing"

	ProcDir = "/proc"
)

// DataDir returns the directory where collected data files live,
// creating it on first use.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "."+CmdName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	return dir, nil
}

// DataFileName returns a fresh timestamped data file name.
func DataFileName(now time.Time) string {
	return fmt.Sprintf("%s_%s.data", CmdName, now.Format("2006-01-02_15.04.05"))
}
