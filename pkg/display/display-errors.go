package display

import "github.com/pkg/errors"

var (
	// ErrSchema reports an event stream missing fields the resolved
	// display mode needs. Raised before any artifact is written.
	ErrSchema = errors.New("event stream does not satisfy display mode schema")

	// ErrRender reports input that passed schema validation but still
	// cannot be rendered, such as an empty stream.
	ErrRender = errors.New("cannot render event stream")
)
