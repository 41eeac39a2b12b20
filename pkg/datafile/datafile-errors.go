package datafile

import "github.com/pkg/errors"

var (
	ErrBadHeader = errors.New("malformed data file header")
	ErrVersion   = errors.New("unsupported data file version")
)
