// Package jupyter implements kernelrun.Engine against a real Jupyter
// kernel process over ZeroMQ.
//
// The package is organized around the pieces of one kernel lifetime:
//
//   - process.go — spawns the kernel subprocess, writes its connection
//     file, performs the readiness handshake, and tears it down
//   - conn.go — the multiplexed message channel (shell, control and
//     iopub sockets) bound to one kernel
//   - protocol.go — the Jupyter wire protocol v5.3 codec and signing
//   - execution.go — the receive loop correlating broadcast messages to
//     one request
//   - aggregate.go — the fold from correlated messages to a Result
//   - kernel.go — Kernel, the session engine composing the above
//
// A Kernel serializes executions: the kernel protocol attributes broadcast
// messages to requests by parent id, and the engine awaits one terminal
// idle marker at a time. Concurrent Execute calls queue.
package jupyter
