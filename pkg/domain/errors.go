package domain

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrDuplicateServer    = errors.New("duplicate server name")
	ErrServerNotFound     = errors.New("server not found")
	ErrNotConnected       = errors.New("not connected")
	ErrGenerationFailed   = errors.New("text generation failed")
	ErrProviderNotFound   = errors.New("provider not available")
	ErrServiceUnavailable = errors.New("service unavailable")
)
