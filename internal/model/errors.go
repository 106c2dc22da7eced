package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrAuth is returned when registry credentials are rejected.
	ErrAuth = errors.New("authentication failed")
	// ErrEngineUnavailable is returned when the container engine daemon is unreachable.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrTimeout is returned when an execution exceeds its allowed run time.
	ErrTimeout = errors.New("timed out")
)
