package jupyter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dmora/kernelrun"
)

// connectionInfo mirrors the Jupyter connection file handed to the
// kernel at spawn time: the loopback ports of its five sockets and the
// shared HMAC key.
type connectionInfo struct {
	IP              string `json:"ip"`
	Transport       string `json:"transport"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
	KernelName      string `json:"kernel_name"`
}

func (ci connectionInfo) addr(port int) string {
	return fmt.Sprintf("%s://%s:%d", ci.Transport, ci.IP, port)
}

// worker bundles everything owned for one kernel lifetime: the process,
// its channel, the connection file, and the session identity. A worker is
// created whole by launchKernel and replaced or discarded whole — no
// partial mutation survives a restart.
type worker struct {
	ch       channel
	cmd      *exec.Cmd
	connFile string

	id      string
	started time.Time

	exited  chan struct{} // closed by the waiter goroutine
	waitErr error         // set before exited closes
}

// launcher starts a kernel worker. Kernel's tests swap in fakes.
type launcher func(ctx context.Context, opts Options) (*worker, error)

// launchKernel allocates ports, writes the connection file, spawns the
// kernel process, performs the readiness handshake, and runs the priming
// statements. Any failure tears down whatever was built so far and
// returns an ErrSpawn-wrapped error — the caller never sees a
// half-initialized worker.
func launchKernel(ctx context.Context, opts Options) (*worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := newConnectionInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: allocate ports: %w", kernelrun.ErrSpawn, err)
	}

	resolved, err := lookKernelBinary(opts.Argv)
	if err != nil {
		return nil, err
	}

	connFile, err := writeConnectionFile(opts.ConnDir, info)
	if err != nil {
		return nil, fmt.Errorf("%w: connection file: %w", kernelrun.ErrSpawn, err)
	}

	argv := buildArgv(opts.Argv, connFile)
	cmd := exec.Command(resolved, argv[1:]...)
	if err := cmd.Start(); err != nil {
		_ = os.Remove(connFile)
		return nil, fmt.Errorf("%w: start %s: %w", kernelrun.ErrSpawn, resolved, err)
	}

	w := &worker{
		cmd:      cmd,
		connFile: connFile,
		id:       uuid.NewString(),
		started:  time.Now(),
		exited:   make(chan struct{}),
	}
	go func() {
		w.waitErr = cmd.Wait()
		close(w.exited)
	}()

	conn, err := dialConn(info, opts.IOPubBuffer)
	if err != nil {
		w.teardown()
		return nil, fmt.Errorf("%w: %w", kernelrun.ErrSpawn, err)
	}
	w.ch = conn

	if err := conn.waitReady(opts.StartupTimeout); err != nil {
		w.teardown()
		return nil, fmt.Errorf("%w: %w", kernelrun.ErrSpawn, err)
	}

	// Priming statements are fire-and-forget: their request ids are never
	// awaited, so their output is dropped by the correlator's tag filter.
	// Only a transport-level send failure aborts the start.
	for _, stmt := range opts.Priming {
		if _, err := conn.execute(stmt, true); err != nil {
			w.teardown()
			return nil, fmt.Errorf("%w: priming: %w", kernelrun.ErrSpawn, err)
		}
	}

	return w, nil
}

// stop runs the graceful teardown ladder: shutdown_request on the control
// socket, then SIGTERM, then SIGKILL, escalating after each grace period.
// Safe to call on a worker whose process already exited.
func (w *worker) stop(grace time.Duration) {
	if w.ch != nil {
		_ = w.ch.shutdown() // best-effort; the ladder below is authoritative
	}

	if w.cmd != nil && w.cmd.Process != nil {
		select {
		case <-w.exited:
		case <-time.After(grace):
			_ = signalProcess(w.cmd.Process, syscall.SIGTERM)
			select {
			case <-w.exited:
			case <-time.After(grace):
				_ = signalProcess(w.cmd.Process, os.Kill)
				<-w.exited
			}
		}
	}

	if w.ch != nil {
		_ = w.ch.close()
	}
	if w.connFile != "" {
		_ = os.Remove(w.connFile)
	}
}

// teardown releases a partially built worker after a failed launch.
// Unlike stop it does not wait politely — the kernel never became ready.
func (w *worker) teardown() {
	if w.ch != nil {
		_ = w.ch.close()
	}
	if w.cmd != nil && w.cmd.Process != nil {
		_ = signalProcess(w.cmd.Process, os.Kill)
		<-w.exited
	}
	if w.connFile != "" {
		_ = os.Remove(w.connFile)
	}
}

// lookKernelBinary resolves the kernel binary from argv via PATH.
func lookKernelBinary(argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("%w: no kernel command configured", kernelrun.ErrUnavailable)
	}
	resolved, err := exec.LookPath(argv[0])
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", kernelrun.ErrUnavailable, argv[0], err)
	}
	return resolved, nil
}

// signalProcess sends sig to a process, returning nil if the process
// has already exited (os.ErrProcessDone).
func signalProcess(proc *os.Process, sig os.Signal) error {
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// newConnectionInfo reserves five loopback ports and generates the HMAC
// key for one kernel lifetime.
func newConnectionInfo() (connectionInfo, error) {
	ports, err := freePorts(5)
	if err != nil {
		return connectionInfo{}, err
	}
	return connectionInfo{
		IP:              "127.0.0.1",
		Transport:       "tcp",
		ShellPort:       ports[0],
		IOPubPort:       ports[1],
		StdinPort:       ports[2],
		ControlPort:     ports[3],
		HBPort:          ports[4],
		Key:             uuid.NewString(),
		SignatureScheme: "hmac-sha256",
		KernelName:      "python3",
	}, nil
}

// freePorts reserves n distinct loopback TCP ports by binding and
// releasing listeners. All listeners stay open until every port is
// chosen, so the same port is never handed out twice.
func freePorts(n int) ([]int, error) {
	listeners := make([]net.Listener, 0, n)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	ports := make([]int, 0, n)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, l)
		ports = append(ports, l.Addr().(*net.TCPAddr).Port)
	}
	return ports, nil
}

// writeConnectionFile writes info as JSON into dir (or the OS temp dir)
// and returns the file's path. The file is owner-readable only — it
// contains the signing key.
func writeConnectionFile(dir string, info connectionInfo) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "kernelrun-*.json")
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(info)
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// buildArgv substitutes the connection-file placeholder into the kernel
// command line. If the placeholder is absent, "-f <file>" is appended.
// An empty connFile leaves the placeholder untouched (used for binary
// validation before the file exists).
func buildArgv(argv []string, connFile string) []string {
	out := make([]string, len(argv))
	replaced := false
	for i, a := range argv {
		if connFile != "" && strings.Contains(a, ConnectionFileToken) {
			out[i] = strings.ReplaceAll(a, ConnectionFileToken, connFile)
			replaced = true
			continue
		}
		out[i] = a
	}
	if connFile != "" && !replaced {
		out = append(out, "-f", connFile)
	}
	return out
}
