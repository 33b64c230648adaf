package chat

import (
	"context"
	"fmt"
	"sync"
)

type event struct {
	kind string // append, show, clear, rec
	msg  Message
	id   PendingID
	on   bool
}

func (e event) String() string {
	switch e.kind {
	case "append":
		return fmt.Sprintf("%s:%s", e.msg.Sender, e.msg.Text)
	case "show":
		return fmt.Sprintf("show#%d", e.id)
	case "clear":
		return fmt.Sprintf("clear#%d", e.id)
	default:
		return fmt.Sprintf("rec:%v", e.on)
	}
}

type fakeTranscript struct {
	mu     sync.Mutex
	events []event
	nextID PendingID
}

func (t *fakeTranscript) Append(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event{kind: "append", msg: m})
}

func (t *fakeTranscript) ShowPending() PendingID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.events = append(t.events, event{kind: "show", id: t.nextID})
	return t.nextID
}

func (t *fakeTranscript) ClearPending(id PendingID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event{kind: "clear", id: id})
}

func (t *fakeTranscript) SetRecording(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event{kind: "rec", on: on})
}

func (t *fakeTranscript) log() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.events))
	for i, e := range t.events {
		out[i] = e.String()
	}
	return out
}

func (t *fakeTranscript) messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Message
	for _, e := range t.events {
		if e.kind == "append" {
			out = append(out, e.msg)
		}
	}
	return out
}

// fakeCapture hands fragments to the flow as the test pushes them. Stop
// closes the channel asynchronously, like a device finishing its last read.
type fakeCapture struct {
	frags chan []byte
	err   error

	mu      sync.Mutex
	live    bool
	stopped bool
	stops   int
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{frags: make(chan []byte, 16), live: true}
}

func (c *fakeCapture) Fragments() <-chan []byte { return c.frags }
func (c *fakeCapture) MediaType() string        { return "audio/flac" }

func (c *fakeCapture) push(b []byte) { c.frags <- b }

func (c *fakeCapture) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *fakeCapture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	if c.stopped {
		return
	}
	c.stopped = true
	c.live = false
	go close(c.frags)
}

// fail ends the capture as if the device went away mid-recording.
func (c *fakeCapture) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.Stop()
}

type fakeMic struct {
	err     error
	gate    chan struct{} // when set, Open blocks until closed
	capture *fakeCapture

	mu    sync.Mutex
	opens int
}

func (m *fakeMic) Open(ctx context.Context) (CaptureSession, error) {
	m.mu.Lock()
	m.opens++
	m.mu.Unlock()
	if m.gate != nil {
		<-m.gate
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.capture, nil
}

func (m *fakeMic) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}
