package kernelrun

import "context"

// Engine is a stateful code-execution session backed by one worker process.
//
// Implementations own the worker's lifecycle: Execute starts the worker on
// first use, Restart replaces it wholesale, Shutdown tears it down. Execute
// and Restart against the same engine are strictly serialized — concurrent
// callers queue rather than interleave, because reply attribution assumes a
// single outstanding request.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Once the worker is up, Execute always returns a structured Result for
//     code-level faults and timeouts (status Errored/TimedOut), never an
//     error. Errors are reserved for engine-level failures: the worker
//     could not be started or restarted.
//   - Status performs no worker I/O and never blocks on a running execution.
type Engine interface {
	// Execute runs a code string in the worker and returns the aggregated
	// result, tagged with the session's identity and uptime at call time.
	// The worker is started on demand.
	Execute(ctx context.Context, code string) (Result, error)

	// Status returns a snapshot of the current session. The zero
	// SessionInfo means no worker is running.
	Status() SessionInfo

	// Restart tears the worker down (best effort) and starts a fresh one,
	// discarding all worker state. It returns the new session's info.
	// Restart blocks until any in-flight Execute finishes or times out.
	Restart(ctx context.Context) (SessionInfo, error)

	// Shutdown stops the worker if one is running. Shutting down an
	// already-stopped engine is a no-op.
	Shutdown(ctx context.Context) error
}
