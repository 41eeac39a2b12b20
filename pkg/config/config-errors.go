package config

import "github.com/pkg/errors"

var (
	ErrUnknownInterface = errors.New("unknown interface")
	ErrUnknownMode      = errors.New("unknown display mode")
	ErrUnknownOption    = errors.New("unknown option")
	ErrBadScope         = errors.New("malformed scope")
	ErrBadValue         = errors.New("option value out of range")
	ErrAliasCollision   = errors.New("alias name collides with an interface name")
)
