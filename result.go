package kernelrun

import "time"

// Status is the completion state of one execution.
type Status string

const (
	// StatusCompleted means the kernel finished the request without
	// reporting a fault.
	StatusCompleted Status = "completed"

	// StatusErrored means the executed code raised a fault, or the
	// channel was severed mid-execution. The Result still carries any
	// output produced before the fault.
	StatusErrored Status = "errored"

	// StatusTimedOut means no message arrived within the per-message
	// receive budget. The worker is left running; later calls may succeed.
	StatusTimedOut Status = "timed_out"
)

// Artifact is a binary payload produced by the executed code, typically
// an inline image from a plotting library.
type Artifact struct {
	// MIMEType declares the payload's media type (e.g. "image/png").
	MIMEType string `json:"mime_type"`

	// Data is the base64-encoded payload, as published by the kernel.
	Data string `json:"data"`
}

// Result is the aggregated outcome of one execution request.
//
// Within each list, order reflects message arrival order — interleaved
// prints stay interleaved, and an expression value lands after the stream
// output that preceded it. No ordering across lists is defined; consumers
// render each list independently.
//
// A Result is returned once and never mutated afterwards.
type Result struct {
	// Code is the code string that was executed.
	Code string `json:"code"`

	// Outputs holds text output fragments: stream chunks and the final
	// expression value, in arrival order.
	Outputs []string `json:"outputs,omitempty"`

	// Errors holds traceback lines and synthetic error notices
	// (timeout, severed channel), in arrival order.
	Errors []string `json:"errors,omitempty"`

	// Artifacts holds binary payloads, in arrival order.
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// Status is the completion state.
	Status Status `json:"status"`

	// SessionID identifies the kernel lifetime that served the request.
	SessionID string `json:"session_id"`

	// Uptime is the kernel's age when the result was assembled.
	Uptime time.Duration `json:"uptime"`
}

// OK reports whether the execution completed without fault or timeout.
func (r Result) OK() bool {
	return r.Status == StatusCompleted
}
