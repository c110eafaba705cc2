package kernelrun

import "time"

// SessionInfo describes one kernel lifetime.
//
// SessionInfo is a value type — a snapshot taken under the engine's lock.
// The zero value means no kernel is running. The ID is regenerated on every
// start and restart, so callers can detect a restart by comparing IDs.
type SessionInfo struct {
	// ID uniquely identifies this kernel lifetime.
	ID string `json:"id"`

	// StartedAt is when the kernel process was started.
	StartedAt time.Time `json:"started_at"`

	// Running reports whether a live kernel backs this session.
	Running bool `json:"running"`
}

// Uptime returns the session's age, or zero if no kernel is running.
func (s SessionInfo) Uptime() time.Duration {
	if !s.Running {
		return 0
	}
	return time.Since(s.StartedAt)
}
