package collect

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/probe"
	"github.com/ensoft/marple/pkg/stream"
)

// IPC traces local TCP traffic with the tcptracer BCC tool and joins
// both connection ends into one record per message. The join runs
// after collection: the first pass maps each loopback source port to
// its owning process, the second resolves every loopback destination
// through that map.
type IPC struct {
	tool    *probe.Exec
	startNs int64

	base
}

// tcpRow is one parsed tcptracer -tv table row.
type tcpRow struct {
	Ts    float64
	Type  string
	Pid   int32
	Comm  string
	SAddr string
	DAddr string
	SPort string
	DPort string
	Size  float64
	NetNS string
}

func NewIPC(opts ...Option) *IPC {
	return &IPC{base: newBase(config.IPC, newOptions(opts...))}
}

func (i *IPC) Attach(ctx context.Context) error {
	if err := i.checkKernel("4.4.0"); err != nil {
		return err
	}

	args := []string{"-t", "-v"}
	if pid := i.scope().TargetPid(); pid >= 0 {
		args = append(args, "-p", strconv.FormatInt(int64(pid), 10))
	}

	i.tool = probe.NewExec(filepath.Join(i.bccToolsDir, "tcptracer"), args,
		probe.WithLogger(i.logger), probe.WithGracePeriod(i.grace))

	if err := i.tool.Attach(ctx); err != nil {
		return errors.Wrap(err, "starting tcptracer")
	}
	i.startNs = i.clock.Now()

	return nil
}

func (i *IPC) Collect(_ context.Context) error {
	var rows []tcpRow
	for line := range i.tool.Lines() {
		if row, ok := parseTCPRow(line); ok {
			rows = append(rows, row)
		}
	}
	if err := i.tool.Err(); err != nil {
		return err
	}

	return i.join(rows)
}

// join resolves loopback destinations to their owning processes and
// emits one record per local message. An unresolved or ambiguous port
// poisons the whole interface, since silently misattributed traffic
// would be worse than none.
func (i *IPC) join(rows []tcpRow) error {
	if len(rows) == 0 {
		return nil
	}

	// Traffic from other network namespaces is someone else's story.
	netns := rows[0].NetNS
	owners := make(map[string]tcpRow, len(rows))
	for _, row := range rows {
		if row.NetNS != netns || !loopback(row.SAddr) {
			continue
		}
		if prev, ok := owners[row.SPort]; ok && prev.Pid != row.Pid {
			return errors.Wrapf(ErrAmbiguousPort, "port %s claimed by pid %d and pid %d",
				row.SPort, prev.Pid, row.Pid)
		}
		owners[row.SPort] = row
	}

	for _, row := range rows {
		if row.NetNS != netns || !loopback(row.DAddr) {
			continue
		}
		dest, ok := owners[row.DPort]
		if !ok {
			return errors.Wrapf(ErrUnresolvedPort, "port %s", row.DPort)
		}

		// Stack layout: source endpoint, destination endpoint, message
		// type. The tcpplot renderer expects exactly this shape.
		i.emit(stream.Record{
			Ts:  i.startNs + int64(row.Ts*1e9),
			Pid: row.Pid,
			Tid: -1,
			Cpu: -1,
			Stack: []string{
				endpointLabel(row.Pid, row.Comm, row.SPort),
				endpointLabel(dest.Pid, dest.Comm, row.DPort),
				row.Type,
			},
			Value: row.Size,
		})
	}

	return nil
}

func (i *IPC) Detach() error {
	if i.tool == nil {
		return nil
	}

	return errors.Wrap(i.tool.Detach(), "stopping tcptracer")
}

// endpointLabel renders one connection end as pid:comm:port.
func endpointLabel(pid int32, comm, port string) string {
	return fmt.Sprintf("%d:%s:%s", pid, comm, port)
}

// parseTCPRow reads one tcptracer -tv row:
//
//	TIME TYPE PID COMM IP SADDR DADDR SPORT DPORT SIZE NETNS
func parseTCPRow(line string) (tcpRow, bool) {
	fields := strings.Fields(line)
	if len(fields) < 11 {
		return tcpRow{}, false
	}

	ts, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		// Header row.
		return tcpRow{}, false
	}
	pid, err := strconv.ParseInt(fields[2], 10, 32)
	if err != nil {
		return tcpRow{}, false
	}
	size, err := strconv.ParseFloat(fields[9], 64)
	if err != nil {
		return tcpRow{}, false
	}

	return tcpRow{
		Ts:    ts,
		Type:  fields[1],
		Pid:   int32(pid),
		Comm:  fields[3],
		SAddr: fields[5],
		DAddr: fields[6],
		SPort: fields[7],
		DPort: fields[8],
		Size:  size,
		NetNS: fields[10],
	}, true
}

func loopback(addr string) bool {
	return strings.HasPrefix(addr, "127.") || addr == "::1" || addr == "[::1]"
}
