package model

import (
	"errors"
	"strings"
)

// InitializationError is fatal: the process must not serve requests.
type InitializationError struct {
	Missing []string
	Err     error
}

func (e *InitializationError) Error() string {
	if len(e.Missing) > 0 {
		return "required model file/directory not found: " + strings.Join(e.Missing, ", ")
	}
	if e.Err == nil {
		return "failed to initialize model"
	}
	return "failed to initialize model: " + e.Err.Error()
}

func (e *InitializationError) Unwrap() error { return e.Err }

// GenerationError is a per-request failure inside the model call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "error during image generation: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func IsInitialization(err error) bool {
	var e *InitializationError
	return errors.As(err, &e)
}

func IsGeneration(err error) bool {
	var e *GenerationError
	return errors.As(err, &e)
}
