package collect

import "github.com/pkg/errors"

var (
	ErrUnknownInterface = errors.New("no collector for interface")
	ErrNothingToCollect = errors.New("no collectors attached")
	ErrAmbiguousPort    = errors.New("loopback port maps to more than one process")
	ErrUnresolvedPort   = errors.New("loopback port maps to no process")
)
