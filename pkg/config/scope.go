package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scope restricts collection to a target set of processes or CPUs.
// The zero value is not valid; build one with ParseScope or SystemWide.
type Scope struct {
	All  bool
	Pids []int32
	Cpus []int32
}

// SystemWide returns the unrestricted scope.
func SystemWide() Scope {
	return Scope{All: true}
}

// PidScope targets a single process.
func PidScope(pid int32) Scope {
	return Scope{Pids: []int32{pid}}
}

// ParseScope parses a scope token: "-a" for system-wide, or any
// whitespace-separated combination of "pid:<n>[,<n>...]" and
// "cpu:<n>[,<n>...]".
func ParseScope(token string) (Scope, error) {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return Scope{}, errors.Wrap(ErrBadScope, "empty scope")
	}

	var s Scope
	for _, f := range fields {
		switch {
		case f == "-a":
			s.All = true
		case strings.HasPrefix(f, "pid:"):
			ids, err := parseIDList(strings.TrimPrefix(f, "pid:"))
			if err != nil {
				return Scope{}, errors.Wrapf(ErrBadScope, "pid list %q", f)
			}
			s.Pids = append(s.Pids, ids...)
		case strings.HasPrefix(f, "cpu:"):
			ids, err := parseIDList(strings.TrimPrefix(f, "cpu:"))
			if err != nil {
				return Scope{}, errors.Wrapf(ErrBadScope, "cpu list %q", f)
			}
			s.Cpus = append(s.Cpus, ids...)
		default:
			return Scope{}, errors.Wrapf(ErrBadScope, "unrecognized token %q", f)
		}
	}

	if s.All && (len(s.Pids) > 0 || len(s.Cpus) > 0) {
		return Scope{}, errors.Wrap(ErrBadScope, "-a cannot be combined with pid or cpu lists")
	}

	return s, nil
}

func parseIDList(list string) ([]int32, error) {
	if list == "" {
		return nil, errors.New("empty list")
	}

	var ids []int32
	for _, part := range strings.Split(list, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, errors.Errorf("negative id %d", n)
		}
		ids = append(ids, int32(n))
	}

	return ids, nil
}

// Allows reports whether a record attributed to pid and cpu falls
// inside the scope. Unknown attribution is encoded as -1 and passes
// the corresponding restriction, so records a source cannot attribute
// are kept rather than silently dropped.
func (s Scope) Allows(pid, cpu int32) bool {
	if s.All {
		return true
	}

	if len(s.Pids) > 0 && pid >= 0 && !containsID(s.Pids, pid) {
		return false
	}
	if len(s.Cpus) > 0 && cpu >= 0 && !containsID(s.Cpus, cpu) {
		return false
	}

	return true
}

// TargetPid returns the single focus pid for sources that can only
// trace one process, or -1 when the scope is system-wide or lists no
// pids.
func (s Scope) TargetPid() int32 {
	if s.All || len(s.Pids) == 0 {
		return -1
	}

	return s.Pids[0]
}

// String renders the scope back into token form.
func (s Scope) String() string {
	if s.All {
		return "-a"
	}

	var fields []string
	if len(s.Pids) > 0 {
		fields = append(fields, "pid:"+joinIDs(s.Pids))
	}
	if len(s.Cpus) > 0 {
		fields = append(fields, "cpu:"+joinIDs(s.Cpus))
	}

	return strings.Join(fields, " ")
}

func joinIDs(ids []int32) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(int64(id), 10))
	}

	return strings.Join(parts, ",")
}

func containsID(ids []int32, id int32) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}

	return false
}
