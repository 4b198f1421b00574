package store

import "errors"

var (
	ErrConfigExists   = errors.New("channel already configured")
	ErrConfigNotFound = errors.New("no config for channel")
)
