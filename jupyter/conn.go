package jupyter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"

	"github.com/dmora/kernelrun"
)

// errRecvTimeout signals that a single receive call exhausted its wait
// budget. Distinct from kernelrun.ErrChannelClosed: the transport is still
// up, the kernel just went quiet.
var errRecvTimeout = errors.New("jupyter: receive timed out")

// channel is the engine-side contract of the kernel transport: submit a
// tagged request, drain the kernel's broadcast traffic, ask for shutdown,
// tear down. *conn implements it over ZeroMQ; tests substitute scripted
// fakes.
type channel interface {
	// execute submits code and returns the request id that tags every
	// reply belonging to it.
	execute(code string, silent bool) (string, error)

	// recv returns the next broadcast message, waiting at most timeout.
	// It returns errRecvTimeout when the budget elapses and
	// kernelrun.ErrChannelClosed when the transport is severed. recv
	// blocks only its caller.
	recv(timeout time.Duration) (kernelrun.Message, error)

	// shutdown asks the kernel to terminate gracefully.
	shutdown() error

	// close tears down the transport. Blocked recv calls fail with
	// kernelrun.ErrChannelClosed.
	close() error
}

// conn is the multiplexed ZeroMQ transport to one kernel process.
//
// Requests go out on the shell and control sockets. The kernel's
// broadcast traffic (iopub) is pumped by a single goroutine into a
// buffered Go channel that recv drains; closing the sockets ends the
// pump, and the drained-out channel converts blocked recv calls into
// ErrChannelClosed. Shell replies are never surfaced — everything the
// engine aggregates arrives on iopub — so a background loop discards
// them after the readiness handshake.
type conn struct {
	sig     signer
	session string

	shell   zmq4.Socket
	control zmq4.Socket
	iopub   zmq4.Socket

	msgs chan kernelrun.Message

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

var _ channel = (*conn)(nil)

// dialConn connects the three sockets described by the connection file
// and starts the iopub pump. The kernel may not have bound its ports yet;
// ZeroMQ queues and retries underneath, so dialing before the kernel is
// up is fine.
func dialConn(info connectionInfo, bufSize int) (*conn, error) {
	ctx := context.Background()
	c := &conn{
		sig:     signer{key: []byte(info.Key)},
		session: uuid.NewString(),
		shell:   zmq4.NewDealer(ctx),
		control: zmq4.NewDealer(ctx),
		iopub:   zmq4.NewSub(ctx),
		msgs:    make(chan kernelrun.Message, bufSize),
		closed:  make(chan struct{}),
	}

	if err := c.shell.Dial(info.addr(info.ShellPort)); err != nil {
		_ = c.close()
		return nil, fmt.Errorf("jupyter: dial shell: %w", err)
	}
	if err := c.control.Dial(info.addr(info.ControlPort)); err != nil {
		_ = c.close()
		return nil, fmt.Errorf("jupyter: dial control: %w", err)
	}
	if err := c.iopub.Dial(info.addr(info.IOPubPort)); err != nil {
		_ = c.close()
		return nil, fmt.Errorf("jupyter: dial iopub: %w", err)
	}
	if err := c.iopub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		_ = c.close()
		return nil, fmt.Errorf("jupyter: subscribe iopub: %w", err)
	}

	go c.pump()
	return c, nil
}

// pump reads iopub frames for the connection's lifetime. Unsigned,
// malformed, or unmodeled traffic is dropped; everything else is parsed
// into the root vocabulary and handed to recv callers in arrival order.
func (c *conn) pump() {
	defer close(c.msgs)
	for {
		m, err := c.iopub.Recv()
		if err != nil {
			return // socket closed or severed
		}
		wm, err := parseWire(c.sig, m.Frames)
		if err != nil {
			continue
		}
		msg, ok := parseBroadcast(wm)
		if !ok {
			continue
		}
		select {
		case c.msgs <- msg:
		case <-c.closed:
			return
		}
	}
}

// execute submits an execute_request on the shell socket. Priming
// statements pass silent == true: the kernel suppresses history and the
// caller never reads their output.
func (c *conn) execute(code string, silent bool) (string, error) {
	hdr := newHeader(c.session, msgExecuteRequest)
	content := executeRequestContent{
		Code:            code,
		Silent:          silent,
		StoreHistory:    !silent,
		UserExpressions: map[string]any{},
		AllowStdin:      false,
		StopOnError:     true,
	}
	frames, err := marshalWire(c.sig, hdr, content)
	if err != nil {
		return "", err
	}

	c.sendMu.Lock()
	err = c.shell.Send(zmq4.NewMsgFrom(frames...))
	c.sendMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("jupyter: send execute_request: %w", err)
	}
	return hdr.MsgID, nil
}

// recv returns the next broadcast message, waiting at most timeout.
func (c *conn) recv(timeout time.Duration) (kernelrun.Message, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case msg, ok := <-c.msgs:
		if !ok {
			return kernelrun.Message{}, kernelrun.ErrChannelClosed
		}
		return msg, nil
	case <-t.C:
		return kernelrun.Message{}, errRecvTimeout
	}
}

// waitReady performs the readiness handshake: a kernel_info round-trip on
// the shell socket, bounded by timeout. On success the goroutine keeps
// draining shell replies for the connection's lifetime so the socket's
// queue never grows. On timeout the caller closes the conn, which
// unblocks the pending shell read.
func (c *conn) waitReady(timeout time.Duration) error {
	hdr := newHeader(c.session, msgKernelInfoRequest)
	frames, err := marshalWire(c.sig, hdr, struct{}{})
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	err = c.shell.Send(zmq4.NewMsgFrom(frames...))
	c.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("jupyter: send kernel_info_request: %w", err)
	}

	ready := make(chan error, 1)
	go func() {
		signaled := false
		for {
			m, err := c.shell.Recv()
			if err != nil {
				if !signaled {
					ready <- fmt.Errorf("jupyter: shell receive: %w", err)
				}
				return
			}
			if signaled {
				continue // discard execute replies
			}
			wm, err := parseWire(c.sig, m.Frames)
			if err != nil {
				continue
			}
			if wm.Header.MsgType == msgKernelInfoReply {
				signaled = true
				ready <- nil
			}
		}
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-ready:
		return err
	case <-t.C:
		return fmt.Errorf("jupyter: no kernel_info_reply within %v", timeout)
	}
}

// shutdown asks the kernel to terminate via the control socket.
func (c *conn) shutdown() error {
	hdr := newHeader(c.session, msgShutdownRequest)
	frames, err := marshalWire(c.sig, hdr, shutdownRequestContent{Restart: false})
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.control.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return fmt.Errorf("jupyter: send shutdown_request: %w", err)
	}
	return nil
}

// close tears down all sockets. Safe to call multiple times.
func (c *conn) close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = errors.Join(
			c.shell.Close(),
			c.control.Close(),
			c.iopub.Close(),
		)
	})
	return c.closeErr
}
