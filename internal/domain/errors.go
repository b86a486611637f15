package domain

import "errors"

var (
	ErrAlreadyExists  = errors.New("already exists")
	ErrSourceNotFound = errors.New("source not found")
	ErrSinkClosed     = errors.New("sink closed")
	ErrQueueFull      = errors.New("broadcast queue full")
	ErrInvalidConfig  = errors.New("invalid configuration")
)
