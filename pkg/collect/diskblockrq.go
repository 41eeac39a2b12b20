package collect

import (
	"github.com/ensoft/marple/pkg/config"
)

// DiskBlockRQ traces block request issue and completion through the
// block tracepoints.
type DiskBlockRQ struct {
	tracepoints
}

func NewDiskBlockRQ(opts ...Option) *DiskBlockRQ {
	return &DiskBlockRQ{
		tracepoints: tracepoints{
			events:    []string{"block/block_rq_issue", "block/block_rq_complete"},
			minKernel: "2.6.31",
			base:      newBase(config.DiskBlockRQ, newOptions(opts...)),
		},
	}
}
