package jupyter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmora/kernelrun"
)

// script maps one executed code string to the broadcast replies the fake
// kernel publishes for it, already tagged with the generated request id.
type script func(code, reqID string) []kernelrun.Message

// fakeChannel is a scripted channel implementation. execute records the
// code and enqueues the scripted replies; recv pops the queue. An empty
// queue reports a receive timeout immediately, so timeout paths are
// exercised without real waiting.
type fakeChannel struct {
	mu        sync.Mutex
	script    script
	queue     []kernelrun.Message
	executed  []string
	sendErr   error
	closed    bool
	shutdowns int
}

var _ channel = (*fakeChannel)(nil)

func (f *fakeChannel) execute(code string, silent bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	id := fmt.Sprintf("req-%d", len(f.executed)+1)
	f.executed = append(f.executed, code)
	if f.script != nil {
		f.queue = append(f.queue, f.script(code, id)...)
	}
	return id, nil
}

func (f *fakeChannel) recv(time.Duration) (kernelrun.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return kernelrun.Message{}, kernelrun.ErrChannelClosed
	}
	if len(f.queue) == 0 {
		return kernelrun.Message{}, errRecvTimeout
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, nil
}

func (f *fakeChannel) shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeChannel) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) push(msgs ...kernelrun.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, msgs...)
}

// Message constructors for scripts.

func streamMsg(id, text string) kernelrun.Message {
	return kernelrun.Message{ParentID: id, Type: kernelrun.MessageStream, Text: text}
}

func resultMsg(id, text string) kernelrun.Message {
	return kernelrun.Message{ParentID: id, Type: kernelrun.MessageResult, Text: text}
}

func displayMsg(id, mime, data string) kernelrun.Message {
	return kernelrun.Message{
		ParentID: id,
		Type:     kernelrun.MessageDisplay,
		Artifact: &kernelrun.Artifact{MIMEType: mime, Data: data},
	}
}

func errorMsg(id string, traceback ...string) kernelrun.Message {
	return kernelrun.Message{ParentID: id, Type: kernelrun.MessageError, Traceback: traceback}
}

func busyMsg(id string) kernelrun.Message {
	return kernelrun.Message{ParentID: id, Type: kernelrun.MessageStatus, State: kernelrun.StateBusy}
}

func idleMsg(id string) kernelrun.Message {
	return kernelrun.Message{ParentID: id, Type: kernelrun.MessageStatus, State: kernelrun.StateIdle}
}

// echoScript answers every request with a busy marker, one stream chunk
// echoing the code, and the idle marker.
func echoScript(code, reqID string) []kernelrun.Message {
	return []kernelrun.Message{
		busyMsg(reqID),
		streamMsg(reqID, "out:"+code),
		idleMsg(reqID),
	}
}

// launchRecorder builds fake workers and remembers every channel it
// handed out, mimicking launchKernel's priming behavior.
type launchRecorder struct {
	mu       sync.Mutex
	script   script
	channels []*fakeChannel
	launches int
	err      error
}

func (r *launchRecorder) launch(_ context.Context, opts Options) (*worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	fc := &fakeChannel{script: r.script}
	for _, stmt := range opts.Priming {
		if _, err := fc.execute(stmt, true); err != nil {
			return nil, err
		}
	}
	r.launches++
	r.channels = append(r.channels, fc)
	return &worker{
		ch:      fc,
		id:      uuid.NewString(),
		started: time.Now(),
	}, nil
}

func (r *launchRecorder) last(t *testing.T) *fakeChannel {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.channels) == 0 {
		t.Fatal("no worker launched")
	}
	return r.channels[len(r.channels)-1]
}

// newTestKernel returns a Kernel whose launcher builds scripted fake
// workers instead of spawning processes.
func newTestKernel(t *testing.T, s script, opts ...Option) (*Kernel, *launchRecorder) {
	t.Helper()
	rec := &launchRecorder{script: s}
	k := NewKernel(opts...)
	k.launch = rec.launch
	t.Cleanup(func() { _ = k.Shutdown(context.Background()) })
	return k, rec
}
