package jupyter

import (
	"context"
	"errors"
	"time"

	"github.com/dmora/kernelrun"
)

// runState is the correlator's explicit state. The receive loop stays in
// stateAwaiting until exactly one terminal transition fires, keeping each
// termination condition independently testable.
type runState int

const (
	stateAwaiting runState = iota
	stateDone              // kernel reported idle for this request
	stateTimedOut          // a single receive exceeded the wait budget
	stateClosed            // transport severed mid-execution
	stateCanceled          // caller's context ended between messages
)

// correlate drains channel messages belonging to reqID and hands them to
// yield in arrival order, then returns the terminal state.
//
// The wait budget applies to each receive call individually — it resets
// on every message, it is not a cumulative execution deadline. Messages
// tagged with a stale or foreign request id (prior requests, priming
// statements, out-of-band broadcast chatter) are discarded without
// terminating: the loop keeps waiting for its own request's traffic.
func correlate(ctx context.Context, ch channel, reqID string, budget time.Duration, yield func(kernelrun.Message)) runState {
	state := stateAwaiting
	for state == stateAwaiting {
		if ctx.Err() != nil {
			return stateCanceled
		}

		msg, err := ch.recv(budget)
		switch {
		case errors.Is(err, errRecvTimeout):
			state = stateTimedOut
		case err != nil:
			// ErrChannelClosed, or any other transport fault: the
			// aggregation terminates, the engine does not crash.
			state = stateClosed
		case msg.ParentID != reqID:
			// Foreign tag — keep waiting.
		default:
			yield(msg)
			if msg.Type == kernelrun.MessageStatus && msg.State == kernelrun.StateIdle {
				state = stateDone
			}
		}
	}
	return state
}
