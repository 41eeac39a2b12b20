package probe

import (
	"context"
	"sync"
)

// Handle is one armed data source. Attach arms it and starts delivery
// on the handle's output channel; Detach disarms it, releases every
// kernel and process resource it holds, and closes the output channel
// once the source has flushed. Detach is idempotent: the second and
// later calls return nil without side effects.
//
// Consumers must keep draining the output channel after calling Detach
// until it closes. Sources that print a summary on shutdown deliver it
// between the Detach call and the channel close.
type Handle interface {
	Attach(ctx context.Context) error
	Detach() error
}

// lifecycle is the attach state machine shared by every handle type.
// A handle moves through created, attached and detached exactly once;
// a failed attach parks it in detached so a later Detach is a no-op.
type lifecycle struct {
	mu       sync.Mutex
	attached bool
	done     bool
}

func (l *lifecycle) beginAttach() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return ErrDetached
	}
	if l.attached {
		return ErrAlreadyAttached
	}
	l.attached = true

	return nil
}

func (l *lifecycle) failAttach() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attached = false
	l.done = true
}

func (l *lifecycle) beginDetach() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.attached || l.done {
		return false
	}
	l.done = true

	return true
}

func (l *lifecycle) isAttached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.attached && !l.done
}
