package probe

import "github.com/pkg/errors"

var (
	ErrAlreadyAttached = errors.New("probe already attached")
	ErrNotAttached     = errors.New("probe not attached")
	ErrDetached        = errors.New("probe already detached")
	ErrNoTracefs       = errors.New("tracefs not mounted")
	ErrNoSymbols       = errors.New("no symbols resolved")
)
