package collect

import (
	"os"
	"time"

	log "github.com/rs/zerolog"

	"github.com/ensoft/marple/internal/settings"
	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// Options carry the run configuration and the tool locations shared by
// all collectors. Tests override the locations to point at fixtures.
type Options struct {
	config *config.Config
	clock  *stream.Clock
	logger log.Logger

	bufferSize int
	grace      time.Duration

	perfPath     string
	bccToolsDir  string
	perfToolsDir string
	bpfObjectDir string
	tracefsRoot  string
	procRoot     string

	factory func(config.Interface, ...Option) (Collector, error)
	onReady func()
	status  bool
}

type Option func(*Options)

func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		o.config = cfg
	}
}

func WithClock(clock *stream.Clock) Option {
	return func(o *Options) {
		o.clock = clock
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

func WithBufferSize(size int) Option {
	return func(o *Options) {
		o.bufferSize = size
	}
}

func WithGracePeriod(grace time.Duration) Option {
	return func(o *Options) {
		o.grace = grace
	}
}

func WithPerfPath(path string) Option {
	return func(o *Options) {
		o.perfPath = path
	}
}

func WithBCCToolsDir(dir string) Option {
	return func(o *Options) {
		o.bccToolsDir = dir
	}
}

func WithPerfToolsDir(dir string) Option {
	return func(o *Options) {
		o.perfToolsDir = dir
	}
}

func WithBPFObjectDir(dir string) Option {
	return func(o *Options) {
		o.bpfObjectDir = dir
	}
}

func WithTracefsRoot(root string) Option {
	return func(o *Options) {
		o.tracefsRoot = root
	}
}

func WithProcRoot(root string) Option {
	return func(o *Options) {
		o.procRoot = root
	}
}

func newOptions(opts ...Option) *Options {
	o := &Options{
		config:       config.Default(),
		logger:       log.New(log.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
		bufferSize:   stream.DefaultBufferSize,
		grace:        5 * time.Second,
		perfPath:     "perf",
		bccToolsDir:  settings.BCCToolsDir,
		perfToolsDir: settings.PerfToolsDir,
		bpfObjectDir: settings.BPFObjectDir,
		procRoot:     settings.ProcDir,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.clock == nil {
		if clock, err := stream.NewClock(); err == nil {
			o.clock = clock
		} else {
			o.clock = &stream.Clock{}
		}
	}

	return o
}
