package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyProcessing = errors.New("already processing")
	ErrInvalidInput      = errors.New("invalid input")
)
