package jupyter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/dmora/kernelrun"
)

func TestConnRecvTimeout(t *testing.T) {
	c := &conn{msgs: make(chan kernelrun.Message)}
	start := time.Now()
	_, err := c.recv(10 * time.Millisecond)
	if !errors.Is(err, errRecvTimeout) {
		t.Fatalf("recv() error = %v, want errRecvTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("recv() took %v, want ~10ms", elapsed)
	}
}

func TestConnRecvDelivers(t *testing.T) {
	c := &conn{msgs: make(chan kernelrun.Message, 1)}
	c.msgs <- streamMsg("r1", "hello")

	msg, err := c.recv(testTimeout)
	if err != nil {
		t.Fatalf("recv() error = %v", err)
	}
	if msg.Text != "hello" {
		t.Errorf("recv() = %+v, want the queued message", msg)
	}
}

func TestConnRecvAfterPumpExit(t *testing.T) {
	c := &conn{msgs: make(chan kernelrun.Message)}
	close(c.msgs) // what the pump does on socket teardown

	_, err := c.recv(testTimeout)
	if !errors.Is(err, kernelrun.ErrChannelClosed) {
		t.Fatalf("recv() error = %v, want ErrChannelClosed", err)
	}
}

// fakeKernelPeer is a scripted Jupyter kernel over real ZeroMQ sockets:
// a ROUTER for shell, a ROUTER for control, and a PUB for iopub. It
// answers kernel_info_request, replays execute_request content as one
// stream chunk followed by the idle marker, and publishes a steady
// heartbeat of status messages so tests can wait for the iopub
// subscription to settle.
type fakeKernelPeer struct {
	info  connectionInfo
	sig   signer
	shell zmq4.Socket
	ctl   zmq4.Socket
	iopub zmq4.Socket
	done  chan struct{}
}

const heartbeatParent = "boot"

func startFakeKernelPeer(t *testing.T) *fakeKernelPeer {
	t.Helper()
	info, err := newConnectionInfo()
	if err != nil {
		t.Fatalf("newConnectionInfo() error = %v", err)
	}

	ctx := context.Background()
	fk := &fakeKernelPeer{
		info:  info,
		sig:   signer{key: []byte(info.Key)},
		shell: zmq4.NewRouter(ctx),
		ctl:   zmq4.NewRouter(ctx),
		iopub: zmq4.NewPub(ctx),
		done:  make(chan struct{}),
	}
	if err := fk.shell.Listen(info.addr(info.ShellPort)); err != nil {
		t.Fatalf("listen shell: %v", err)
	}
	if err := fk.ctl.Listen(info.addr(info.ControlPort)); err != nil {
		t.Fatalf("listen control: %v", err)
	}
	if err := fk.iopub.Listen(info.addr(info.IOPubPort)); err != nil {
		t.Fatalf("listen iopub: %v", err)
	}

	go fk.serveShell()
	go fk.heartbeat()
	t.Cleanup(func() {
		close(fk.done)
		_ = fk.shell.Close()
		_ = fk.ctl.Close()
		_ = fk.iopub.Close()
	})
	return fk
}

func (fk *fakeKernelPeer) serveShell() {
	for {
		m, err := fk.shell.Recv()
		if err != nil {
			return
		}
		if len(m.Frames) == 0 {
			continue
		}
		identity := m.Frames[0]
		wm, err := parseWire(fk.sig, m.Frames)
		if err != nil {
			continue
		}
		switch wm.Header.MsgType {
		case msgKernelInfoRequest:
			fk.reply(identity, msgKernelInfoReply, wm.Header, map[string]any{"status": "ok"})
		case msgExecuteRequest:
			var c executeRequestContent
			if err := json.Unmarshal(wm.Content, &c); err != nil {
				continue
			}
			fk.reply(identity, "execute_reply", wm.Header, map[string]any{"status": "ok"})
			fk.publish(msgStream, wm.Header, streamContent{Name: "stdout", Text: "ran:" + c.Code})
			fk.publish(msgStatus, wm.Header, statusContent{ExecutionState: "idle"})
		}
	}
}

// heartbeat publishes status messages tagged with a sentinel parent id
// until the peer shuts down.
func (fk *fakeKernelPeer) heartbeat() {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	parent := wireHeader{MsgID: heartbeatParent}
	for {
		select {
		case <-fk.done:
			return
		case <-tick.C:
			fk.publish(msgStatus, parent, statusContent{ExecutionState: "busy"})
		}
	}
}

func (fk *fakeKernelPeer) reply(identity []byte, msgType string, parent wireHeader, content any) {
	frames := fk.frames(msgType, parent, content)
	full := append([][]byte{identity}, frames...)
	_ = fk.shell.Send(zmq4.NewMsgFrom(full...))
}

func (fk *fakeKernelPeer) publish(msgType string, parent wireHeader, content any) {
	frames := fk.frames(msgType, parent, content)
	full := append([][]byte{[]byte("kernel." + msgType)}, frames...)
	_ = fk.iopub.Send(zmq4.NewMsgFrom(full...))
}

func (fk *fakeKernelPeer) frames(msgType string, parent wireHeader, content any) [][]byte {
	hdrB, _ := json.Marshal(newHeader("fake-kernel", msgType))
	parentB, _ := json.Marshal(parent)
	metaB := []byte("{}")
	contentB, _ := json.Marshal(content)
	return [][]byte{
		wireDelimiter,
		fk.sig.sign(hdrB, parentB, metaB, contentB),
		hdrB,
		parentB,
		metaB,
		contentB,
	}
}

// waitSubscribed drains broadcasts until a heartbeat arrives, proving
// the iopub subscription is live.
func waitSubscribed(t *testing.T, c *conn) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		msg, err := c.recv(testTimeout)
		if err != nil {
			t.Fatalf("recv() while settling: %v", err)
		}
		if msg.ParentID == heartbeatParent {
			return
		}
	}
	t.Fatal("iopub subscription never settled")
}

func TestConnLoopback(t *testing.T) {
	fk := startFakeKernelPeer(t)

	c, err := dialConn(fk.info, defaultIOPubBuffer)
	if err != nil {
		t.Fatalf("dialConn() error = %v", err)
	}
	t.Cleanup(func() { _ = c.close() })

	if err := c.waitReady(testTimeout); err != nil {
		t.Fatalf("waitReady() error = %v", err)
	}
	waitSubscribed(t, c)

	reqID, err := c.execute("print(1)", false)
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if reqID == "" {
		t.Fatal("execute() returned empty request id")
	}

	var got []kernelrun.Message
	state := correlate(testContext(t), c, reqID, testTimeout, func(m kernelrun.Message) {
		got = append(got, m)
	})
	if state != stateDone {
		t.Fatalf("correlate state = %v, want stateDone", state)
	}
	if len(got) != 2 {
		t.Fatalf("yielded %d messages, want stream + idle", len(got))
	}
	if got[0].Type != kernelrun.MessageStream || got[0].Text != "ran:print(1)" {
		t.Errorf("got[0] = %+v, want stream echo", got[0])
	}
	if got[1].Type != kernelrun.MessageStatus || got[1].State != kernelrun.StateIdle {
		t.Errorf("got[1] = %+v, want idle status", got[1])
	}
}

func TestConnCloseUnblocksRecv(t *testing.T) {
	fk := startFakeKernelPeer(t)

	c, err := dialConn(fk.info, defaultIOPubBuffer)
	if err != nil {
		t.Fatalf("dialConn() error = %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		for {
			if _, err := c.recv(testTimeout); err != nil {
				errc <- err
				return
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := c.close(); err != nil {
		t.Fatalf("close() error = %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, kernelrun.ErrChannelClosed) {
			t.Errorf("recv() error = %v, want ErrChannelClosed", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("recv() still blocked after close")
	}
}

func TestConnCloseIdempotent(t *testing.T) {
	fk := startFakeKernelPeer(t)
	c, err := dialConn(fk.info, defaultIOPubBuffer)
	if err != nil {
		t.Fatalf("dialConn() error = %v", err)
	}
	if err := c.close(); err != nil {
		t.Fatalf("close() error = %v", err)
	}
	if err := c.close(); err != nil {
		t.Fatalf("second close() error = %v", err)
	}
}
