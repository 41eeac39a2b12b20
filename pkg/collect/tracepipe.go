package collect

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/internal/settings"
	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/probe"
	"github.com/ensoft/marple/pkg/stream"
)

// traceEvent is one parsed trace_pipe line.
type traceEvent struct {
	Task   string
	Pid    int32
	Cpu    int32
	Ts     float64
	Name   string
	Fields string
}

// parseTracePipeLine splits the fixed trace_pipe layout
//
//	TASK-PID [CPU] FLAGS TIMESTAMP: EVENT: FIELDS
//
// tolerating kernels that omit the flags column. Comment and
// unparseable lines report false.
func parseTracePipeLine(line string) (traceEvent, bool) {
	var ev traceEvent

	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ev, false
	}

	bracket := strings.IndexByte(line, '[')
	if bracket < 0 {
		return ev, false
	}

	taskPid := strings.TrimSpace(line[:bracket])
	dash := strings.LastIndexByte(taskPid, '-')
	if dash < 0 {
		return ev, false
	}
	pid, err := strconv.ParseInt(taskPid[dash+1:], 10, 32)
	if err != nil {
		return ev, false
	}
	ev.Task = taskPid[:dash]
	ev.Pid = int32(pid)

	rest := line[bracket+1:]
	closing := strings.IndexByte(rest, ']')
	if closing < 0 {
		return ev, false
	}
	cpu, err := strconv.ParseInt(strings.TrimLeft(rest[:closing], "0 "), 10, 32)
	if err != nil {
		if strings.Trim(rest[:closing], "0 ") != "" {
			return ev, false
		}
		cpu = 0
	}
	ev.Cpu = int32(cpu)

	rest = strings.TrimSpace(rest[closing+1:])

	// The next token is either the flags column or, on old kernels,
	// already the timestamp.
	token, remainder := cutField(rest)
	if token == "" {
		return ev, false
	}
	if token[0] < '0' || token[0] > '9' {
		token, remainder = cutField(remainder)
	}
	ts, err := strconv.ParseFloat(strings.TrimSuffix(token, ":"), 64)
	if err != nil {
		return ev, false
	}
	ev.Ts = ts

	name, fields, found := strings.Cut(remainder, ":")
	if !found {
		return ev, false
	}
	ev.Name = strings.TrimSpace(name)
	ev.Fields = strings.TrimSpace(fields)

	return ev, true
}

// cutField splits off the first whitespace-delimited token.
func cutField(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return s, ""
	}

	return s[:idx], strings.TrimSpace(s[idx:])
}

// tracepoints is the shared body of the tracefs-backed collectors: it
// arms a set of events, streams trace_pipe, and turns every event into
// a unit-weight record labelled with the event name.
type tracepoints struct {
	events    []string
	minKernel string

	pipe *probe.Tracefs

	base
}

func (t *tracepoints) Attach(ctx context.Context) error {
	if err := t.checkKernel(t.minKernel); err != nil {
		return err
	}

	root := t.tracefsRoot
	if root == "" {
		var err error
		root, err = probe.DetectTracefsRoot(settings.TracefsDir, settings.TracefsLegacyDir)
		if err != nil {
			return err
		}
	}

	t.pipe = probe.NewTracefs(root, t.events, scopePidFilter(t.scope()),
		probe.WithLogger(t.logger), probe.WithGracePeriod(t.grace))

	return errors.Wrapf(t.pipe.Attach(ctx), "enabling %s", strings.Join(t.events, ", "))
}

// Collect drains the pipe until Detach closes it. The channel contract
// requires consuming every line, so the loop ignores the context and
// relies on the coordinator to detach at the deadline.
func (t *tracepoints) Collect(_ context.Context) error {
	for line := range t.pipe.Lines() {
		ev, ok := parseTracePipeLine(line)
		if !ok {
			continue
		}
		t.emit(stream.Record{
			Ts:    t.clock.FromMonotonicSeconds(ev.Ts),
			Pid:   ev.Pid,
			Tid:   ev.Pid,
			Cpu:   ev.Cpu,
			Stack: []string{ev.Name},
			Value: 1,
		})
	}

	return nil
}

func (t *tracepoints) Detach() error {
	if t.pipe == nil {
		return nil
	}

	return errors.Wrapf(t.pipe.Detach(), "disabling %s", strings.Join(t.events, ", "))
}

// scopePidFilter renders a pid scope as a tracepoint filter
// expression. CPU restrictions have no filter field and are enforced
// when records are emitted.
func scopePidFilter(scope config.Scope) string {
	if len(scope.Pids) == 0 {
		return ""
	}

	terms := make([]string, 0, len(scope.Pids))
	for _, pid := range scope.Pids {
		terms = append(terms, "common_pid == "+strconv.FormatInt(int64(pid), 10))
	}

	return strings.Join(terms, " || ")
}
