package jupyter

import (
	"fmt"
	"time"

	"github.com/dmora/kernelrun"
)

// aggregator folds one execution's correlated message sequence into a
// Result. Arrival order is authoritative within each list: interleaved
// stream chunks stay interleaved, and the final expression value lands
// after whatever stream output preceded it.
type aggregator struct {
	res kernelrun.Result
}

func newAggregator(code string) *aggregator {
	return &aggregator{res: kernelrun.Result{
		Code:   code,
		Status: kernelrun.StatusCompleted,
	}}
}

// fold merges one message into the result. An error message marks the
// result errored but does not stop the fold — the kernel keeps emitting
// status chatter after a fault, and the idle marker still terminates the
// sequence normally.
func (a *aggregator) fold(msg kernelrun.Message) {
	switch msg.Type {
	case kernelrun.MessageStream, kernelrun.MessageResult:
		a.res.Outputs = append(a.res.Outputs, msg.Text)
	case kernelrun.MessageDisplay:
		if msg.Artifact != nil {
			a.res.Artifacts = append(a.res.Artifacts, *msg.Artifact)
		}
	case kernelrun.MessageError:
		a.res.Errors = append(a.res.Errors, msg.Traceback...)
		a.res.Status = kernelrun.StatusErrored
	}
	// Status messages carry no payload to fold.
}

// timeout records an exhausted receive budget: a fixed human-readable
// notice in the error list and terminal status timed_out.
func (a *aggregator) timeout(budget time.Duration) {
	a.res.Errors = append(a.res.Errors,
		fmt.Sprintf("Execution timed out after %.0f seconds", budget.Seconds()))
	a.res.Status = kernelrun.StatusTimedOut
}

// disconnected records a transport severed mid-execution.
func (a *aggregator) disconnected() {
	a.res.Errors = append(a.res.Errors, "Kernel connection closed during execution")
	a.res.Status = kernelrun.StatusErrored
}

// canceled records a caller-side context cancellation.
func (a *aggregator) canceled(err error) {
	notice := "Execution canceled"
	if err != nil {
		notice = "Execution canceled: " + err.Error()
	}
	a.res.Errors = append(a.res.Errors, notice)
	a.res.Status = kernelrun.StatusErrored
}

// result stamps session metadata and returns the finished Result.
// The aggregator must not be reused afterwards.
func (a *aggregator) result(sessionID string, uptime time.Duration) kernelrun.Result {
	a.res.SessionID = sessionID
	a.res.Uptime = uptime
	return a.res
}
