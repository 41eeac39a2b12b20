package common

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/ensoft/marple/internal/settings"
)

// Pid returns the process id recorded in the PID file, or -1 when the
// file is missing or unreadable.
func Pid() int {
	data, err := os.ReadFile(settings.PidFile)
	if err != nil {
		return -1
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1
	}

	return pid
}

// WritePidFile records pid as the running collection daemon.
func WritePidFile(pid int) error {
	return os.WriteFile(settings.PidFile, []byte(strconv.Itoa(pid)), 0o644)
}

func IsDaemonRunning() bool {
	pid := Pid()
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 only probes whether the process exists.
	return process.Signal(syscall.Signal(0)) == nil
}
