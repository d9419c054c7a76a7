package queue

import "errors"

var (
	ErrFull    = errors.New("command queue full")
	ErrClosed  = errors.New("command queue closed")
	ErrStopped = errors.New("session driver stopped")
)
