package nova

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTransport records every outbound frame per session and lets tests feed
// inbound frames. Closing the inbound channel simulates the upstream ending
// the stream.
type fakeTransport struct {
	mu      sync.Mutex
	openErr error
	// openGate, when set, delays Open until closed. Tests use it to register
	// handlers before establishment can fail.
	openGate chan struct{}
	conns    map[string]*fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(map[string]*fakeConn)}
}

type fakeConn struct {
	in      chan []byte
	inOnce  sync.Once
	mu      sync.Mutex
	sent    [][]byte
	drained chan struct{}
}

func (c *fakeConn) Recv() ([]byte, error) {
	b, ok := <-c.in
	if !ok {
		return nil, io.EOF
	}
	return b, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) feed(raw string) {
	c.in <- []byte(raw)
}

func (c *fakeConn) endStream() {
	c.inOnce.Do(func() { close(c.in) })
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) waitDrained(t *testing.T) {
	t.Helper()
	select {
	case <-c.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("outbound pump did not finish draining")
	}
}

func (t *fakeTransport) Open(ctx context.Context, sessionID string, outbound OutboundSource) (InboundStream, error) {
	t.mu.Lock()
	gate := t.openGate
	t.mu.Unlock()
	if gate != nil {
		<-gate
	}

	t.mu.Lock()
	if t.openErr != nil {
		t.mu.Unlock()
		return nil, t.openErr
	}
	c := &fakeConn{in: make(chan []byte, 64), drained: make(chan struct{})}
	t.conns[sessionID] = c
	t.mu.Unlock()

	go func() {
		defer close(c.drained)
		defer c.endStream()
		for {
			b, err := outbound.Next(ctx)
			if err != nil {
				return
			}
			c.mu.Lock()
			c.sent = append(c.sent, b)
			c.mu.Unlock()
		}
	}()
	return c, nil
}

// conn polls for the async establishment to finish.
func (t *fakeTransport) conn(tb testing.TB, sessionID string) *fakeConn {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		t.mu.Lock()
		c := t.conns[sessionID]
		t.mu.Unlock()
		if c != nil {
			return c
		}
		time.Sleep(time.Millisecond)
	}
	tb.Fatalf("transport never opened for session %s", sessionID)
	return nil
}

type stubResolver struct {
	tools map[string]Tool
}

func (r stubResolver) Resolve(name string) (Tool, bool) {
	tool, ok := r.tools[strings.ToLower(name)]
	return tool, ok
}

func (r stubResolver) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec)
	}
	return specs
}

// frameKind extracts the single discriminant member of an outbound frame.
func frameKind(t *testing.T, raw []byte) string {
	t.Helper()
	var env struct {
		Event map[string]json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal outbound frame %s: %v", raw, err)
	}
	if len(env.Event) != 1 {
		t.Fatalf("outbound frame has %d members, want 1: %s", len(env.Event), raw)
	}
	for k := range env.Event {
		return k
	}
	return ""
}

func frameField(t *testing.T, raw []byte, kind, field string) string {
	t.Helper()
	var env struct {
		Event map[string]map[string]any `json:"event"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal outbound frame %s: %v", raw, err)
	}
	v, _ := env.Event[kind][field].(string)
	return v
}

func assertKinds(t *testing.T, frames [][]byte, want ...string) {
	t.Helper()
	if len(frames) != len(want) {
		got := make([]string, 0, len(frames))
		for _, f := range frames {
			got = append(got, frameKind(t, f))
		}
		t.Fatalf("got %d outbound frames %v, want %d %v", len(frames), got, len(want), want)
	}
	for i, f := range frames {
		if k := frameKind(t, f); k != want[i] {
			t.Fatalf("frame %d kind = %q, want %q", i, k, want[i])
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
