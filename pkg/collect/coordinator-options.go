package collect

import (
	"github.com/ensoft/marple/pkg/config"
)

// WithReadyCallback registers a hook invoked once every requested
// collector has settled its attach, successfully or not. The readiness
// socket uses it to unblock waiters.
func WithReadyCallback(ready func()) Option {
	return func(o *Options) {
		o.onReady = ready
	}
}

// WithFactory overrides how the coordinator builds collectors. Tests
// inject fakes through it.
func WithFactory(factory func(config.Interface, ...Option) (Collector, error)) Option {
	return func(o *Options) {
		o.factory = factory
	}
}

// WithStatus toggles the live status bar during collection.
func WithStatus(status bool) Option {
	return func(o *Options) {
		o.status = status
	}
}
