package nova

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func collectEvents(m *Manager, id string) <-chan Event {
	out := make(chan Event, 64)
	m.RegisterHandler(id, EventAny, func(ev Event) { out <- ev })
	return out
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched event")
		return Event{}
	}
}

func TestInboundDispatchPreservesOrder(t *testing.T) {
	m, tr := newTestManager(Config{}, nil)
	id, _ := m.CreateSession("s1", nil)
	c := tr.conn(t, id)
	events := collectEvents(m, id)

	c.feed(`{"event":{"contentStart":{"promptName":"p","contentName":"c1","type":"TEXT","role":"ASSISTANT"}}}`)
	c.feed(`{"event":{"textOutput":{"promptName":"p","contentName":"c1","role":"ASSISTANT","content":"hello"}}}`)
	c.feed(`{"event":{"audioOutput":{"promptName":"p","contentName":"c2","content":"AQID"}}}`)
	c.feed(`{"event":{"contentEnd":{"promptName":"p","contentName":"c1","stopReason":"END_TURN"}}}`)

	want := []EventType{EventContentStart, EventTextOutput, EventAudioOutput, EventContentEnd}
	for i, w := range want {
		ev := nextEvent(t, events)
		if ev.Type != w {
			t.Fatalf("event %d type = %q, want %q", i, ev.Type, w)
		}
	}

	m.EndSession(id)
}

func TestInboundDecodedPayloads(t *testing.T) {
	m, tr := newTestManager(Config{}, nil)
	id, _ := m.CreateSession("s1", nil)
	c := tr.conn(t, id)

	texts := make(chan *TextOutput, 1)
	m.RegisterHandler(id, EventTextOutput, func(ev Event) {
		texts <- ev.Data.(*TextOutput)
	})

	c.feed(`{"event":{"textOutput":{"promptName":"p","contentName":"c1","role":"ASSISTANT","content":"bonjour"}}}`)

	select {
	case to := <-texts:
		if to.Content != "bonjour" || to.Role != "ASSISTANT" {
			t.Fatalf("decoded textOutput = %+v", to)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("textOutput never dispatched")
	}
	m.EndSession(id)
}

func TestUnknownDiscriminantPassthrough(t *testing.T) {
	m, tr := newTestManager(Config{}, nil)
	id, _ := m.CreateSession("s1", nil)
	c := tr.conn(t, id)
	events := collectEvents(m, id)

	c.feed(`{"event":{"usageEvent":{"totalTokens":128}}}`)

	ev := nextEvent(t, events)
	if ev.Type != EventType("usageEvent") {
		t.Fatalf("event type = %q, want usageEvent", ev.Type)
	}
	raw, ok := ev.Data.(json.RawMessage)
	if !ok {
		t.Fatalf("passthrough data = %T, want json.RawMessage", ev.Data)
	}
	if !strings.Contains(string(raw), "totalTokens") {
		t.Fatalf("passthrough payload = %s", raw)
	}
	m.EndSession(id)
}

func TestMalformedFrameSkipped(t *testing.T) {
	m, tr := newTestManager(Config{}, nil)
	id, _ := m.CreateSession("s1", nil)
	c := tr.conn(t, id)
	events := collectEvents(m, id)

	c.feed(`this is not json`)
	c.feed(`{"event":{"textOutput":{"content":"still alive"}}}`)

	ev := nextEvent(t, events)
	if ev.Type != EventTextOutput {
		t.Fatalf("event after malformed frame = %q, want textOutput", ev.Type)
	}
	if !m.IsActive(id) {
		t.Fatal("session torn down by a malformed frame")
	}
	m.EndSession(id)
}

func TestToolInputAccumulatesAcrossChunks(t *testing.T) {
	var mu sync.Mutex
	var gotInput map[string]string

	resolver := stubResolver{tools: map[string]Tool{
		"lookupweather": {
			Spec: ToolSpec{Name: "lookupWeather", Description: "weather lookup", InputSchema: json.RawMessage(`{}`)},
			Run: func(ctx context.Context, input map[string]string) (any, error) {
				mu.Lock()
				gotInput = input
				mu.Unlock()
				return map[string]string{"forecast": "sunny"}, nil
			},
		},
	}}

	m, tr := newTestManager(Config{}, resolver)
	id, _ := m.CreateSession("s1", nil)
	c := tr.conn(t, id)
	events := collectEvents(m, id)

	c.feed(`{"event":{"toolUse":{"toolUseId":"t1","toolName":"lookupWeather","content":"{\"city\":\"Par"}}}`)
	c.feed(`{"event":{"toolUse":{"toolUseId":"t1","toolName":"lookupWeather","content":"is\"}"}}}`)
	c.feed(`{"event":{"contentEnd":{"promptName":"p","contentName":"c1","type":"TOOL"}}}`)

	want := []EventType{EventToolUse, EventToolInput, EventToolUseEnd, EventToolResult, EventContentEnd}
	var invocation *ToolInvocation
	for i, w := range want {
		ev := nextEvent(t, events)
		if ev.Type != w {
			t.Fatalf("event %d type = %q, want %q", i, ev.Type, w)
		}
		if w == EventToolUseEnd {
			invocation = ev.Data.(*ToolInvocation)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got := gotInput["content"]; got != `{"city":"Paris"}` {
		t.Fatalf("accumulated tool input = %q, want %q", got, `{"city":"Paris"}`)
	}
	if invocation.ToolName != "lookupWeather" || invocation.ToolUseID != "t1" {
		t.Fatalf("invocation = %+v", invocation)
	}

	m.EndSession(id)
	c.waitDrained(t)
	// Tool result goes out as its own content segment.
	frames := c.frames()
	assertKinds(t, frames, "sessionStart", "contentStart", "toolResult", "contentEnd", "sessionEnd")
	if got := frameField(t, frames[2], "toolResult", "content"); got != `{"forecast":"sunny"}` {
		t.Fatalf("toolResult content = %q", got)
	}
}

func TestUnsupportedToolProducesErrorResult(t *testing.T) {
	m, tr := newTestManager(Config{}, stubResolver{tools: map[string]Tool{}})
	id, _ := m.CreateSession("s1", nil)
	c := tr.conn(t, id)
	events := collectEvents(m, id)

	c.feed(`{"event":{"toolUse":{"toolUseId":"t1","toolName":"noSuchTool","content":"{}"}}}`)
	c.feed(`{"event":{"contentEnd":{"promptName":"p","contentName":"c1","type":"TOOL"}}}`)

	want := []EventType{EventToolUse, EventToolUseEnd, EventToolError, EventContentEnd}
	for i, w := range want {
		ev := nextEvent(t, events)
		if ev.Type != w {
			t.Fatalf("event %d type = %q, want %q", i, ev.Type, w)
		}
		if w == EventToolError {
			outcome := ev.Data.(*ToolOutcome)
			if outcome.Err == "" {
				t.Fatal("tool error outcome carries no message")
			}
		}
	}

	// Session survives the tool failure.
	if !m.IsActive(id) {
		t.Fatal("session torn down by unsupported tool")
	}

	m.EndSession(id)
	c.waitDrained(t)
	frames := c.frames()
	assertKinds(t, frames, "sessionStart", "contentStart", "toolResult", "contentEnd", "sessionEnd")
	if got := frameField(t, frames[2], "toolResult", "status"); got != "error" {
		t.Fatalf("toolResult status = %q, want error", got)
	}
}

func TestToolFailureKeepsSessionAlive(t *testing.T) {
	resolver := stubResolver{tools: map[string]Tool{
		"flaky": {
			Spec: ToolSpec{Name: "flaky"},
			Run: func(ctx context.Context, input map[string]string) (any, error) {
				return nil, errors.New("backend unavailable")
			},
		},
	}}
	m, tr := newTestManager(Config{}, resolver)
	id, _ := m.CreateSession("s1", nil)
	c := tr.conn(t, id)
	events := collectEvents(m, id)

	c.feed(`{"event":{"toolUse":{"toolUseId":"t9","toolName":"Flaky","content":"{}"}}}`)
	c.feed(`{"event":{"contentEnd":{"type":"TOOL"}}}`)

	for {
		ev := nextEvent(t, events)
		if ev.Type == EventToolError {
			outcome := ev.Data.(*ToolOutcome)
			if outcome.Err != "backend unavailable" {
				t.Fatalf("outcome err = %q", outcome.Err)
			}
			break
		}
	}
	if !m.IsActive(id) {
		t.Fatal("session torn down by tool failure")
	}
	m.EndSession(id)
}

func TestUnexpectedStreamTermination(t *testing.T) {
	m, tr := newTestManager(Config{}, nil)
	id, _ := m.CreateSession("s1", nil)
	c := tr.conn(t, id)

	ended := make(chan struct{}, 1)
	m.RegisterHandler(id, EventStreamEnded, func(Event) { ended <- struct{}{} })

	// Upstream hangs up while the session is still live.
	c.endStream()

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("streamEndedUnexpectedly never dispatched")
	}
	waitFor(t, "session removal after stream end", func() bool {
		return !m.IsActive(id) && m.ActiveCount() == 0
	})
}

func TestGracefulEndYieldsStreamComplete(t *testing.T) {
	m, tr := newTestManager(Config{}, nil)
	id, _ := m.CreateSession("s1", nil)
	c := tr.conn(t, id)

	m.EndSession(id)
	c.waitDrained(t)
	// clearHandlers ran during EndSession, so nothing to observe here beyond
	// the session being gone without a failure path.
	if m.IsActive(id) {
		t.Fatal("session active after graceful end")
	}
}
