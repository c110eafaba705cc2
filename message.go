package kernelrun

import "time"

// MessageType identifies the kind of message published by a kernel.
//
// The constants mirror the kernel's broadcast vocabulary: text streams,
// expression results, rich display payloads, errors, and execution-state
// announcements. Engines translate their wire format into these kinds.
type MessageType string

const (
	// MessageStream is stdout/stderr text produced while code runs.
	MessageStream MessageType = "stream"

	// MessageResult is the text representation of the executed
	// expression's final value.
	MessageResult MessageType = "execute_result"

	// MessageDisplay is a rich display payload (e.g. an inline image).
	MessageDisplay MessageType = "display_data"

	// MessageError carries a traceback from a fault inside the kernel.
	MessageError MessageType = "error"

	// MessageStatus announces an execution-state change. A status message
	// with [StateIdle] tagged to a request is the kernel's signal that it
	// finished processing that request.
	MessageStatus MessageType = "status"
)

// Execution states carried by MessageStatus messages.
const (
	StateStarting = "starting"
	StateBusy     = "busy"
	StateIdle     = "idle"
)

// Message is a single unit published by the kernel on its broadcast
// channel. Messages are transient: the engine folds them into a [Result]
// and discards them.
type Message struct {
	// ParentID is the request identifier this message answers.
	// Empty or foreign values mark out-of-band chatter that must be
	// filtered out, never folded into the current result.
	ParentID string `json:"parent_id,omitempty"`

	// Type identifies the kind of message.
	Type MessageType `json:"type"`

	// Text is the payload for Stream and Result messages.
	Text string `json:"text,omitempty"`

	// Traceback holds error lines, in kernel order (Error messages).
	Traceback []string `json:"traceback,omitempty"`

	// Artifact is the decoded payload of a Display message that carried
	// a renderable binary, nil otherwise.
	Artifact *Artifact `json:"artifact,omitempty"`

	// State is the execution state for Status messages.
	State string `json:"state,omitempty"`

	// Timestamp is when the message was received.
	Timestamp time.Time `json:"timestamp"`
}
