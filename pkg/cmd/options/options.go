package options

import (
	"context"

	log "github.com/rs/zerolog"
)

// CommonOptions travel from Execute down into every subcommand: the
// signal-aware context, the root logger, and the values of the
// persistent flags the root command owns.
type CommonOptions struct {
	Ctx        context.Context
	Logger     log.Logger
	LogLevel   string
	ConfigFile string
}

type Option func(o *CommonOptions)

func NewCommonOptions(opts ...Option) *CommonOptions {
	o := new(CommonOptions)
	for _, f := range opts {
		f(o)
	}

	return o
}

func WithContext(ctx context.Context) Option {
	return func(o *CommonOptions) {
		o.Ctx = ctx
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *CommonOptions) {
		o.Logger = logger
	}
}

func WithLogLevel(level string) Option {
	return func(o *CommonOptions) {
		o.LogLevel = level
	}
}
