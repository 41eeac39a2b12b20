package collect

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/probe"
	"github.com/ensoft/marple/pkg/stream"
)

const (
	dlopenObject  = "dlopen.bpf.o"
	dlopenProgram = "trace_dlopen"
	dlopenMap     = "events"
)

// dlopenEvent mirrors the ring buffer payload of the dlopen probe.
type dlopenEvent struct {
	Ts   uint64
	Pid  uint32
	Tid  uint32
	Comm [16]byte
	Path [256]byte
}

// Lib traces runtime library loading by hooking the dynamic loader's
// entry points in libc with a multi-uprobe BPF program. Each dlopen
// call becomes a record whose stack names the loaded path and the
// calling process.
type Lib struct {
	uprobe *probe.BPF

	base
}

func NewLib(opts ...Option) *Lib {
	return &Lib{base: newBase(config.Lib, newOptions(opts...))}
}

func (l *Lib) Attach(ctx context.Context) error {
	if err := l.checkKernel("6.6.0"); err != nil {
		return err
	}

	libc, err := libcPath()
	if err != nil {
		return err
	}

	l.uprobe = probe.NewBPF(probe.BPFSpec{
		Object:  filepath.Join(l.bpfObjectDir, dlopenObject),
		Program: dlopenProgram,
		Map:     dlopenMap,
		Binary:  libc,
		Symbols: []string{"dlopen", "dlmopen"},
		Pid:     l.scope().TargetPid(),
	}, probe.WithLogger(l.logger), probe.WithGracePeriod(l.grace))

	return errors.Wrap(l.uprobe.Attach(ctx), "attaching dlopen probe")
}

func (l *Lib) Collect(_ context.Context) error {
	for payload := range l.uprobe.Events() {
		ev, err := decodeDlopenEvent(payload)
		if err != nil {
			l.logger.Debug().Err(err).Msg("skipping malformed dlopen event")
			continue
		}
		l.emit(stream.Record{
			Ts:    l.clock.FromMonotonic(int64(ev.Ts)),
			Pid:   int32(ev.Pid),
			Tid:   int32(ev.Tid),
			Cpu:   -1,
			Stack: []string{cString(ev.Path[:]), cString(ev.Comm[:])},
			Value: 1,
		})
	}

	return nil
}

func (l *Lib) Detach() error {
	if l.uprobe == nil {
		return nil
	}

	return errors.Wrap(l.uprobe.Detach(), "detaching dlopen probe")
}

func decodeDlopenEvent(payload []byte) (dlopenEvent, error) {
	var ev dlopenEvent
	if err := binary.Read(bytes.NewReader(payload), binary.NativeEndian, &ev); err != nil {
		return ev, errors.Wrap(err, "decoding dlopen event")
	}

	return ev, nil
}

func cString(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		b = b[:idx]
	}

	return string(b)
}
