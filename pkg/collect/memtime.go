package collect

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

const systemMemLabel = "used"

// MemTime samples memory usage over time from procfs. Pid-scoped runs
// record each target's resident set; system-wide runs record the
// machine's used memory. Values are kilobytes.
type MemTime struct {
	pageKB int64
	comms  map[int32]string

	base
}

func NewMemTime(opts ...Option) *MemTime {
	return &MemTime{
		base:   newBase(config.MemTime, newOptions(opts...)),
		pageKB: int64(os.Getpagesize()) / 1024,
		comms:  make(map[int32]string),
	}
}

// Attach verifies the procfs entries the sampler will read. A fully
// absent target set is an attach failure; individual targets may still
// exit mid-run and simply stop producing samples.
func (m *MemTime) Attach(_ context.Context) error {
	pids := m.scope().Pids
	if len(pids) == 0 {
		if _, err := os.Stat(filepath.Join(m.procRoot, "meminfo")); err != nil {
			return errors.Wrap(err, "reading meminfo")
		}

		return nil
	}

	alive := 0
	for _, pid := range pids {
		if _, err := os.Stat(m.pidPath(pid, "")); err == nil {
			alive++
		}
	}
	if alive == 0 {
		return errors.Errorf("none of the target processes exist under %s", m.procRoot)
	}

	return nil
}

func (m *MemTime) Collect(ctx context.Context) error {
	ticker := time.NewTicker(sampleInterval(m.config.General.Frequency))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *MemTime) sample() {
	now := m.clock.Now()

	pids := m.scope().Pids
	if len(pids) == 0 {
		used, err := m.usedMemKB()
		if err != nil {
			m.logger.Debug().Err(err).Msg("sampling meminfo")
			return
		}
		m.emit(stream.Record{
			Ts:    now,
			Pid:   -1,
			Tid:   -1,
			Cpu:   -1,
			Stack: []string{systemMemLabel},
			Value: float64(used),
		})

		return
	}

	for _, pid := range pids {
		resident, err := m.residentKB(pid)
		if err != nil {
			// Target likely exited.
			continue
		}
		m.emit(stream.Record{
			Ts:    now,
			Pid:   pid,
			Tid:   -1,
			Cpu:   -1,
			Stack: []string{m.comm(pid)},
			Value: float64(resident),
		})
	}
}

func (m *MemTime) Detach() error {
	return nil
}

func (m *MemTime) pidPath(pid int32, file string) string {
	return filepath.Join(m.procRoot, strconv.FormatInt(int64(pid), 10), file)
}

// residentKB reads the resident set size from statm, which is
// available on every kernel marple supports.
func (m *MemTime) residentKB(pid int32) (int64, error) {
	data, err := os.ReadFile(m.pidPath(pid, "statm"))
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, errors.Errorf("malformed statm for pid %d", pid)
	}

	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing statm for pid %d", pid)
	}

	return pages * m.pageKB, nil
}

func (m *MemTime) comm(pid int32) string {
	if name, ok := m.comms[pid]; ok {
		return name
	}

	name := strconv.FormatInt(int64(pid), 10)
	if data, err := os.ReadFile(m.pidPath(pid, "comm")); err == nil {
		if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
			name = trimmed
		}
	}
	m.comms[pid] = name

	return name
}

// usedMemKB derives used memory the way free(1) does, from total and
// available.
func (m *MemTime) usedMemKB() (int64, error) {
	data, err := os.ReadFile(filepath.Join(m.procRoot, "meminfo"))
	if err != nil {
		return 0, err
	}

	var total, available int64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseInt(fields[1], 10, 64)
		case "MemAvailable:":
			available, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}
	if total == 0 {
		return 0, errors.New("meminfo reports no MemTotal")
	}

	return total - available, nil
}
