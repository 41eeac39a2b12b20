package probe

import (
	"os"
	"time"

	log "github.com/rs/zerolog"
)

const (
	// DefaultChannelSize buffers output channels so short consumer
	// stalls do not back-pressure the source.
	DefaultChannelSize = 4096

	// DefaultGracePeriod is how long Detach waits for a source to
	// flush and exit before forcing it down.
	DefaultGracePeriod = 5 * time.Second

	defaultPollInterval = 250 * time.Millisecond
)

// Options tune the shared mechanics of the handle types.
type Options struct {
	logger       log.Logger
	grace        time.Duration
	chanSize     int
	pollInterval time.Duration
}

type Option func(*Options)

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

func WithGracePeriod(grace time.Duration) Option {
	return func(o *Options) {
		o.grace = grace
	}
}

func WithChannelSize(size int) Option {
	return func(o *Options) {
		o.chanSize = size
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.pollInterval = interval
	}
}

func newOptions(opts ...Option) *Options {
	o := &Options{
		logger:       log.New(log.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
		grace:        DefaultGracePeriod,
		chanSize:     DefaultChannelSize,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}
