package hypervisor

import "errors"

// Configuration errors
var (
	ErrInvalidCPUCount    = errors.New("hypervisor: CPU count must be at least 1")
	ErrInsufficientMemory = errors.New("hypervisor: memory must be at least 128MB")
	ErrMissingKernel      = errors.New("hypervisor: kernel path is required")
)

// Runtime errors
var (
	ErrNotCreated     = errors.New("hypervisor: machine not created")
	ErrAlreadyRunning = errors.New("hypervisor: machine is already running")
	ErrNotRunning     = errors.New("hypervisor: machine is not running")
)

// Platform errors
var (
	ErrUnsupportedPlatform = errors.New("hypervisor: platform not supported")
)
