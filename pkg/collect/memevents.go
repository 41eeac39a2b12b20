package collect

import (
	"github.com/ensoft/marple/pkg/config"
)

// MemEvents traces page allocation and free events through the kmem
// tracepoints.
type MemEvents struct {
	tracepoints
}

func NewMemEvents(opts ...Option) *MemEvents {
	return &MemEvents{
		tracepoints: tracepoints{
			events:    []string{"kmem/mm_page_alloc", "kmem/mm_page_free"},
			minKernel: "2.6.31",
			base:      newBase(config.MemEvents, newOptions(opts...)),
		},
	}
}
