package collect

import (
	"github.com/pkg/errors"

	"github.com/ensoft/marple/internal/utils"
	"github.com/ensoft/marple/pkg/config"
)

// factories is the closed set of collector constructors, one per
// interface.
var factories = map[config.Interface]func(opts ...Option) Collector{
	config.CPUSched:     func(opts ...Option) Collector { return NewCPUSched(opts...) },
	config.DiskLatency:  func(opts ...Option) Collector { return NewDiskLatency(opts...) },
	config.MallocStacks: func(opts ...Option) Collector { return NewMallocStacks(opts...) },
	config.MemLeak:      func(opts ...Option) Collector { return NewMemLeak(opts...) },
	config.MemTime:      func(opts ...Option) Collector { return NewMemTime(opts...) },
	config.CallStack:    func(opts ...Option) Collector { return NewCallStack(opts...) },
	config.IPC:          func(opts ...Option) Collector { return NewIPC(opts...) },
	config.MemEvents:    func(opts ...Option) Collector { return NewMemEvents(opts...) },
	config.DiskBlockRQ:  func(opts ...Option) Collector { return NewDiskBlockRQ(opts...) },
	config.PerfMalloc:   func(opts ...Option) Collector { return NewPerfMalloc(opts...) },
	config.Lib:          func(opts ...Option) Collector { return NewLib(opts...) },
}

// New builds the collector for one interface.
func New(kind config.Interface, opts ...Option) (Collector, error) {
	factory, ok := factories[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownInterface, "%s", kind)
	}

	return factory(opts...), nil
}

// Resolve expands interface names and aliases into a deduplicated
// interface list, preserving the order the user gave.
func Resolve(cfg *config.Config, names []string) ([]config.Interface, error) {
	var out []config.Interface
	for _, name := range names {
		if ifaces, ok := cfg.ResolveAlias(name); ok {
			out = append(out, ifaces...)
			continue
		}
		if !config.KnownInterface(name) {
			return nil, errors.Wrapf(ErrUnknownInterface, "%q", name)
		}
		out = append(out, config.Interface(name))
	}

	return utils.Dedupe(out), nil
}
