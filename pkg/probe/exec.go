package probe

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// maxLineBytes bounds a single output line. Folded stacks from deep
// call chains run long, so this is well above bufio's default.
const maxLineBytes = 1 << 20

// Exec runs an external collection tool in its own process group and
// delivers its standard output line by line. Detach interrupts the
// whole group so the tool can print its shutdown summary, then kills
// it if it overstays the grace period.
type Exec struct {
	path string
	args []string

	cmd     *exec.Cmd
	lines   chan string
	done    chan struct{}
	waitErr error
	stderr  strings.Builder
	errMu   sync.Mutex

	lifecycle
	*Options
}

// NewExec prepares a subprocess handle. Nothing runs until Attach.
func NewExec(path string, args []string, opts ...Option) *Exec {
	return &Exec{
		path:    path,
		args:    args,
		Options: newOptions(opts...),
	}
}

// Lines delivers the tool's standard output. The channel closes when
// the tool exits and its output is fully consumed.
func (e *Exec) Lines() <-chan string {
	return e.lines
}

// Done closes once the tool has exited.
func (e *Exec) Done() <-chan struct{} {
	return e.done
}

// Attach starts the tool. The new process leads its own group so that
// shells and helpers it spawns are signalled together with it.
func (e *Exec) Attach(_ context.Context) error {
	if err := e.beginAttach(); err != nil {
		return err
	}

	cmd := exec.Command(e.path, e.args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = &stderrWriter{e: e}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.failAttach()
		return errors.Wrap(err, "opening stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		e.failAttach()
		return errors.Wrapf(err, "starting %s", e.path)
	}

	e.cmd = cmd
	e.lines = make(chan string, e.chanSize)
	e.done = make(chan struct{})

	e.logger.Debug().Str("path", e.path).Strs("args", e.args).Int("pid", cmd.Process.Pid).Msg("tool started")

	go e.scan(stdout)

	return nil
}

func (e *Exec) scan(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		e.lines <- scanner.Text()
	}
	close(e.lines)

	e.setWaitErr(e.cmd.Wait())
	close(e.done)
}

func (e *Exec) setWaitErr(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.waitErr = err
}

// Detach interrupts the process group and waits for the tool to flush
// and exit. A tool still alive after the grace period is killed; one
// that survives even that is reported as an error.
func (e *Exec) Detach() error {
	if !e.beginDetach() {
		return nil
	}
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}

	pgid := e.cmd.Process.Pid
	if err := unix.Kill(-pgid, unix.SIGINT); err != nil && err != unix.ESRCH {
		return errors.Wrapf(err, "interrupting process group %d", pgid)
	}

	select {
	case <-e.done:
		return nil
	case <-time.After(e.grace):
	}

	e.logger.Warn().Str("path", e.path).Msg("tool ignored interrupt, killing")
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return errors.Wrapf(err, "killing process group %d", pgid)
	}

	select {
	case <-e.done:
		return nil
	case <-time.After(e.grace):
		return errors.Errorf("process group %d did not exit", pgid)
	}
}

// Err reports how the tool exited. It returns nil while the tool is
// still running, after a clean exit, and after a signalled exit, since
// Detach ends most collection tools by signal.
func (e *Exec) Err() error {
	select {
	case <-e.done:
	default:
		return nil
	}

	e.errMu.Lock()
	defer e.errMu.Unlock()

	if e.waitErr == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(e.waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return nil
		}
	}

	if tail := lastLine(e.stderr.String()); tail != "" {
		return errors.Wrapf(e.waitErr, "%s: %s", e.path, tail)
	}

	return errors.Wrap(e.waitErr, e.path)
}

// stderrWriter funnels tool diagnostics into the handle under lock, so
// Err can quote them after exit.
type stderrWriter struct {
	e *Exec
}

func (w *stderrWriter) Write(p []byte) (int, error) {
	w.e.errMu.Lock()
	defer w.e.errMu.Unlock()

	return w.e.stderr.Write(p)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}

	return ""
}
