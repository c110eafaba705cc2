package jupyter

import (
	"context"
	"sync"
	"time"

	"github.com/dmora/kernelrun"
)

// Kernel is the Jupyter implementation of kernelrun.Engine: one session
// backed by one kernel process, started on demand, replaced wholesale on
// restart.
//
// Two locks split the engine's concerns. execMu serializes Execute,
// Restart and Shutdown end to end — the protocol attributes broadcast
// messages to requests by parent id, and the engine awaits one terminal
// idle marker at a time, so concurrent calls must queue rather than
// interleave. mu guards only the worker reference, which keeps Status
// non-blocking while an execution is draining messages.
type Kernel struct {
	opts   Options
	launch launcher

	execMu sync.Mutex
	mu     sync.Mutex
	w      *worker
}

var _ kernelrun.Engine = (*Kernel)(nil)

// NewKernel creates a Kernel. Use Option functions to customize the
// kernel command, timeouts, and priming statements. No process is
// spawned until the first Execute or Restart.
func NewKernel(opts ...Option) *Kernel {
	return &Kernel{
		opts:   resolveOptions(opts...),
		launch: launchKernel,
	}
}

// Validate checks that the configured kernel binary is available on PATH
// without spawning anything.
func (k *Kernel) Validate() error {
	_, err := lookKernelBinary(k.opts.Argv)
	return err
}

// Execute runs code in the kernel and returns the aggregated result.
// The kernel is started on first use. Once the kernel is up, faults in
// the executed code and receive timeouts are reported inside the Result
// (status Errored/TimedOut), never as an error return.
func (k *Kernel) Execute(ctx context.Context, code string) (kernelrun.Result, error) {
	k.execMu.Lock()
	defer k.execMu.Unlock()

	w, err := k.ensureStarted(ctx)
	if err != nil {
		return kernelrun.Result{}, err
	}

	agg := newAggregator(code)
	reqID, err := w.ch.execute(code, false)
	if err != nil {
		// Send failed on a live session: the transport is gone. Fold it
		// into a structured result — the caller asked for an execution,
		// not a transport diagnosis.
		k.opts.Logger.Warn("execute send failed", "session_id", w.id, "error", err)
		agg.disconnected()
		return agg.result(w.id, time.Since(w.started)), nil
	}

	k.opts.Logger.Debug("executing", "session_id", w.id, "request_id", reqID)
	switch correlate(ctx, w.ch, reqID, k.opts.ReceiveBudget, agg.fold) {
	case stateTimedOut:
		k.opts.Logger.Warn("execution timed out", "session_id", w.id, "request_id", reqID)
		agg.timeout(k.opts.ReceiveBudget)
	case stateClosed:
		k.opts.Logger.Warn("channel closed mid-execution", "session_id", w.id)
		agg.disconnected()
	case stateCanceled:
		agg.canceled(ctx.Err())
	}

	return agg.result(w.id, time.Since(w.started)), nil
}

// Status returns a snapshot of the current session. It performs no
// channel I/O and does not wait for an in-flight execution.
func (k *Kernel) Status() kernelrun.SessionInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.w == nil {
		return kernelrun.SessionInfo{}
	}
	return kernelrun.SessionInfo{
		ID:        k.w.id,
		StartedAt: k.w.started,
		Running:   true,
	}
}

// Restart tears down the current kernel (best effort) and starts a fresh
// one with a new session id. It queues behind any in-flight Execute; a
// failed teardown of the old kernel never prevents the fresh start.
func (k *Kernel) Restart(ctx context.Context) (kernelrun.SessionInfo, error) {
	k.execMu.Lock()
	defer k.execMu.Unlock()

	k.stopCurrent()
	if _, err := k.ensureStarted(ctx); err != nil {
		return kernelrun.SessionInfo{}, err
	}
	return k.Status(), nil
}

// Shutdown stops the kernel if one is running. Shutting down an
// already-stopped engine is a no-op.
func (k *Kernel) Shutdown(_ context.Context) error {
	k.execMu.Lock()
	defer k.execMu.Unlock()
	k.stopCurrent()
	return nil
}

// ensureStarted launches a worker if none is live. Idempotent: a live
// worker makes it a no-op. On launch failure no worker reference is
// retained. Caller holds execMu.
func (k *Kernel) ensureStarted(ctx context.Context) (*worker, error) {
	k.mu.Lock()
	w := k.w
	k.mu.Unlock()
	if w != nil {
		return w, nil
	}

	w, err := k.launch(ctx, k.opts)
	if err != nil {
		return nil, err
	}
	k.opts.Logger.Info("kernel started", "session_id", w.id)

	k.mu.Lock()
	k.w = w
	k.mu.Unlock()
	return w, nil
}

// stopCurrent tears down the live worker, if any. The reference is
// cleared before the teardown ladder runs, so the session identifier is
// invalid the moment shutdown begins. Caller holds execMu.
func (k *Kernel) stopCurrent() {
	k.mu.Lock()
	w := k.w
	k.w = nil
	k.mu.Unlock()
	if w == nil {
		return
	}
	w.stop(k.opts.GracePeriod)
	k.opts.Logger.Info("kernel stopped", "session_id", w.id)
}
