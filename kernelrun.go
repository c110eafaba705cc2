// Package kernelrun provides a session engine for stateful compute kernels.
//
// kernelrun owns a long-lived worker process (a Jupyter/IPython kernel),
// submits execution requests over its multiplexed message channel, and
// aggregates the kernel's asynchronous, tagged replies into structured
// results. Variables and imports persist inside the worker across calls;
// restarting the session discards them and assigns a fresh identity.
//
// # Core Types
//
//   - [Engine] — the session surface: Execute, Status, Restart, Shutdown
//   - [Message] — one typed, tagged reply published by the kernel
//   - [Result] — the aggregated outcome of one execution
//   - [SessionInfo] — identity and uptime of one kernel lifetime
//
// # Vocabulary
//
// The root package defines the shared vocabulary for all engines:
// [MessageType] constants name what a kernel publishes, [Status] constants
// name how an execution ended. The jupyter subpackage implements [Engine]
// against a real kernel process over ZeroMQ; consumers that only render
// results (markup, mcpserver) depend on this package alone.
//
// # Quick Start
//
//	k := jupyter.NewKernel()
//	defer k.Shutdown(context.Background())
//
//	res, err := k.Execute(ctx, "print('hello')")
//	if err != nil { log.Fatal(err) }
//	for _, out := range res.Outputs {
//	    fmt.Print(out)
//	}
package kernelrun
