package probe

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Tracefs arms kernel tracepoints through the tracefs filesystem and
// streams the rendered events from trace_pipe. Filtering happens at
// emission time through the per-event filter file, so out-of-scope
// events never reach userspace.
type Tracefs struct {
	root   string
	events []string
	filter string

	pipe     *os.File
	lines    chan string
	done     chan struct{}
	stopping atomic.Bool
	savedOn  string

	lifecycle
	*Options
}

// NewTracefs prepares a tracepoint handle for events named like
// "sched/sched_switch". A non-empty filter expression is installed on
// every event before enabling it.
func NewTracefs(root string, events []string, filter string, opts ...Option) *Tracefs {
	return &Tracefs{
		root:    root,
		events:  events,
		filter:  filter,
		Options: newOptions(opts...),
	}
}

// DetectTracefsRoot returns the mounted tracefs root, preferring the
// modern mount point over the debugfs one.
func DetectTracefsRoot(candidates ...string) (string, error) {
	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, "trace_pipe")); err == nil {
			return dir, nil
		}
	}

	return "", errors.Wrapf(ErrNoTracefs, "tried %s", strings.Join(candidates, ", "))
}

// Lines delivers rendered trace events. The channel closes after
// Detach once the pipe has drained.
func (t *Tracefs) Lines() <-chan string {
	return t.lines
}

// Done closes when the reader goroutine has finished.
func (t *Tracefs) Done() <-chan struct{} {
	return t.done
}

func (t *Tracefs) eventPath(event, file string) string {
	return filepath.Join(t.root, "events", event, file)
}

// Attach installs the filter, enables the events and starts reading
// trace_pipe.
func (t *Tracefs) Attach(_ context.Context) error {
	if err := t.beginAttach(); err != nil {
		return err
	}

	if err := t.arm(); err != nil {
		t.disarm()
		t.failAttach()

		return err
	}

	pipe, err := os.Open(filepath.Join(t.root, "trace_pipe"))
	if err != nil {
		t.disarm()
		t.failAttach()

		return errors.Wrap(err, "opening trace_pipe")
	}

	t.pipe = pipe
	t.lines = make(chan string, t.chanSize)
	t.done = make(chan struct{})

	go t.read()

	return nil
}

func (t *Tracefs) arm() error {
	// Remember the global switch so Detach can put it back.
	if prev, err := os.ReadFile(filepath.Join(t.root, "tracing_on")); err == nil {
		t.savedOn = strings.TrimSpace(string(prev))
	}

	for _, event := range t.events {
		if t.filter != "" {
			if err := writeTracefs(t.eventPath(event, "filter"), t.filter); err != nil {
				return errors.Wrapf(err, "setting filter on %s", event)
			}
		}
		if err := writeTracefs(t.eventPath(event, "enable"), "1"); err != nil {
			return errors.Wrapf(err, "enabling %s", event)
		}
		t.logger.Debug().Str("event", event).Str("filter", t.filter).Msg("tracepoint enabled")
	}

	return writeTracefs(filepath.Join(t.root, "tracing_on"), "1")
}

func (t *Tracefs) disarm() {
	for _, event := range t.events {
		if err := writeTracefs(t.eventPath(event, "enable"), "0"); err != nil {
			t.logger.Warn().Err(err).Str("event", event).Msg("disabling tracepoint")
		}
		if t.filter != "" {
			if err := writeTracefs(t.eventPath(event, "filter"), "0"); err != nil {
				t.logger.Warn().Err(err).Str("event", event).Msg("clearing tracepoint filter")
			}
		}
	}

	if t.savedOn != "" {
		if err := writeTracefs(filepath.Join(t.root, "tracing_on"), t.savedOn); err != nil {
			t.logger.Warn().Err(err).Msg("restoring tracing_on")
		}
	}
}

// read pumps trace_pipe into the lines channel. trace_pipe reads block
// until events arrive, so the loop relies on read deadlines to notice
// the stop flag; on filesystems without deadline support reads fall
// through on EOF instead, which is what the fixture-backed tests use.
func (t *Tracefs) read() {
	defer close(t.done)
	defer close(t.lines)

	deadlines := t.pipe.SetReadDeadline(time.Now().Add(t.pollInterval)) == nil

	buf := make([]byte, 64*1024)
	var pending []byte
	for {
		n, err := t.pipe.Read(buf)
		if n > 0 {
			pending = t.emit(append(pending, buf[:n]...))
		}

		if err != nil {
			if os.IsTimeout(err) && !t.stopping.Load() {
				_ = t.pipe.SetReadDeadline(time.Now().Add(t.pollInterval))
				continue
			}

			break
		}
		if t.stopping.Load() && !deadlines {
			break
		}
		if deadlines {
			_ = t.pipe.SetReadDeadline(time.Now().Add(t.pollInterval))
		}
	}

	if len(pending) > 0 {
		t.lines <- string(pending)
	}
}

// emit forwards the complete lines in buf and returns the trailing
// partial line.
func (t *Tracefs) emit(buf []byte) []byte {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return buf
		}
		t.lines <- string(buf[:idx])
		buf = buf[idx+1:]
	}
}

// Detach disables the events, restores the tracing switch and stops
// the reader.
func (t *Tracefs) Detach() error {
	if !t.beginDetach() {
		return nil
	}

	t.disarm()
	t.stopping.Store(true)

	select {
	case <-t.done:
	case <-time.After(t.grace):
	}

	if err := t.pipe.Close(); err != nil {
		return errors.Wrap(err, "closing trace_pipe")
	}

	return nil
}

func writeTracefs(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return err
	}

	return nil
}
