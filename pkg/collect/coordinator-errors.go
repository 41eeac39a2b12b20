package collect

import (
	"fmt"
	"strings"

	"github.com/ensoft/marple/pkg/config"
)

// Lifecycle stages a collector can fail in.
const (
	StageAttach  = "attach"
	StageCollect = "collect"
	StageDetach  = "detach"
)

// Failure records one collector that could not deliver, without
// discarding what the others collected.
type Failure struct {
	Interface config.Interface
	Stage     string
	Err       error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s (%s): %v", f.Interface, f.Stage, f.Err)
}

// PartialFailure reports that some collectors failed while the run as
// a whole still produced data. Callers decide whether warnings
// escalate to a failed exit.
type PartialFailure struct {
	Total    int
	Failures []Failure
}

func (e *PartialFailure) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.String())
	}

	return fmt.Sprintf("%d of %d collectors failed: %s",
		len(e.Failures), e.Total, strings.Join(parts, "; "))
}
