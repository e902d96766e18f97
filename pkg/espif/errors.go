package espif

import "errors"

var (
	// ErrNotRunning indicates the co-processor does not accept the request
	// in its current mode.
	ErrNotRunning = errors.New("co-processor not running")
	// ErrNotInitialized indicates the bridge was not initialized.
	ErrNotInitialized = errors.New("bridge not initialized")
	// ErrAlreadyInitialized indicates Init was called twice.
	ErrAlreadyInitialized = errors.New("bridge already initialized")
)
