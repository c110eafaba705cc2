package kernelrun

import "errors"

// Sentinel errors for engine operations.
var (
	// ErrUnavailable indicates the kernel cannot be launched
	// (binary not found, connection dir not writable, etc.).
	ErrUnavailable = errors.New("kernelrun: kernel unavailable")

	// ErrSpawn indicates the kernel process failed to start or failed its
	// readiness handshake. The session is left in a not-started state; no
	// half-initialized worker reference is retained.
	ErrSpawn = errors.New("kernelrun: kernel spawn failed")

	// ErrChannelClosed indicates the transport to the kernel was severed.
	// During an execution this is folded into the Result as a synthetic
	// error entry; it surfaces as a call error only during startup.
	ErrChannelClosed = errors.New("kernelrun: channel closed")
)
