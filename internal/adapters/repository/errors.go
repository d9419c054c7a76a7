package repository

import "errors"

// Sentinel kinds for take store errors.
var (
	ErrNotFound      = errors.New("take not found")
	ErrInvalidName   = errors.New("invalid take name")
	ErrEmptyTake     = errors.New("empty take")
	ErrUnknownDriver = errors.New("unknown store driver")
)
