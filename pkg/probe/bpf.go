package probe

import (
	"context"

	"github.com/aquasecurity/libbpfgo/helpers"
	bpf "github.com/maxgio92/libbpfgo"
	"github.com/pkg/errors"
)

// ringBufPollTimeoutMs is the libbpf ring_buffer__poll timeout.
const ringBufPollTimeoutMs = 60

// BPFSpec names the pieces of one uprobe attachment: a compiled BPF
// object on disk, the program and ring buffer map inside it, and the
// binary plus symbols to hook.
type BPFSpec struct {
	Object  string
	Program string
	Map     string
	Binary  string
	Symbols []string

	// Pid narrows the uprobe to one process, -1 traces every process
	// that executes the binary.
	Pid int32
}

// BPF attaches a BPF program to userspace functions through the
// multi-uprobe link and delivers its ring buffer payloads.
type BPF struct {
	spec BPFSpec

	mod     *bpf.Module
	prog    *bpf.BPFProg
	ringBuf *bpf.RingBuffer
	events  chan []byte

	lifecycle
	*Options
}

// NewBPF prepares a uprobe handle. Nothing touches the kernel until
// Attach.
func NewBPF(spec BPFSpec, opts ...Option) *BPF {
	return &BPF{
		spec:    spec,
		Options: newOptions(opts...),
	}
}

// Events delivers raw ring buffer payloads. The channel closes on
// Detach once polling has stopped.
func (b *BPF) Events() <-chan []byte {
	return b.events
}

// Attach loads the object, hooks the symbols and starts polling the
// ring buffer.
func (b *BPF) Attach(_ context.Context) error {
	if err := b.beginAttach(); err != nil {
		return err
	}
	if err := b.load(); err != nil {
		b.close()
		b.failAttach()

		return err
	}

	return nil
}

func (b *BPF) load() error {
	b.configureBPFLogger()

	var err error
	b.mod, err = bpf.NewModuleFromFile(b.spec.Object)
	if err != nil {
		return errors.Wrapf(err, "loading bpf object %s", b.spec.Object)
	}

	b.prog, err = b.mod.GetProgram(b.spec.Program)
	if err != nil {
		return errors.Wrapf(err, "getting bpf program %s", b.spec.Program)
	}

	if err := b.prog.SetExpectedAttachType(bpf.BPFAttachTypeTraceUprobeMulti); err != nil {
		return errors.Wrapf(err, "setting attach type %s", bpf.BPFAttachTypeTraceUprobeMulti)
	}

	if err := b.mod.BPFLoadObject(); err != nil {
		return errors.Wrapf(err, "loading bpf object %s into the kernel", b.spec.Object)
	}

	offsets, cookies, err := b.resolveSymbols()
	if err != nil {
		return err
	}

	if _, err := b.prog.AttachUprobeMulti(int(b.spec.Pid), b.spec.Binary, offsets, cookies); err != nil {
		return errors.Wrapf(err, "attaching uprobes to %s", b.spec.Binary)
	}

	b.events = make(chan []byte, b.chanSize)
	b.ringBuf, err = b.mod.InitRingBuf(b.spec.Map, b.events)
	if err != nil {
		return errors.Wrapf(err, "initializing ring buffer %s", b.spec.Map)
	}

	// Poll runs the libbpf loop on its own thread-locked goroutine
	// and forwards payloads to the events channel.
	b.ringBuf.Poll(ringBufPollTimeoutMs)

	return nil
}

// resolveSymbols maps the requested symbols to offsets in the target
// binary. The cookie of each uprobe is its index into spec.Symbols so
// payloads can name the function that fired.
func (b *BPF) resolveSymbols() (offsets, cookies []uint64, err error) {
	for i, sym := range b.spec.Symbols {
		off, err := helpers.SymbolToOffset(b.spec.Binary, sym)
		if err != nil {
			b.logger.Warn().Err(err).Str("symbol", sym).Str("binary", b.spec.Binary).Msg("skipping unresolved symbol")
			continue
		}
		offsets = append(offsets, uint64(off))
		cookies = append(cookies, uint64(i))
	}

	if len(offsets) == 0 {
		return nil, nil, errors.Wrapf(ErrNoSymbols, "in %s", b.spec.Binary)
	}

	return offsets, cookies, nil
}

func (b *BPF) configureBPFLogger() {
	bpf.SetLoggerCbs(bpf.Callbacks{
		Log: func(level int, msg string) {
			if level == bpf.LibbpfWarnLevel {
				b.logger.Debug().Msgf("libbpf: %s", msg)
			}
		},
	})
}

// Detach stops polling, closes the ring buffer and unloads the
// program.
func (b *BPF) Detach() error {
	if !b.beginDetach() {
		return nil
	}

	b.close()
	if b.events != nil {
		close(b.events)
	}

	return nil
}

func (b *BPF) close() {
	if b.ringBuf != nil {
		b.ringBuf.Close()
		b.ringBuf = nil
	}
	if b.mod != nil {
		b.mod.Close()
		b.mod = nil
	}
}
