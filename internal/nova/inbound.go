package nova

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"

	"github.com/google/uuid"
)

// runSession owns the session's stream lifetime: it opens the transport,
// consumes inbound frames until the stream ends, and guarantees removal of
// the session state on every exit path.
func (m *Manager) runSession(ctx context.Context, s *session) {
	defer s.cancel()

	stream, err := m.transport.Open(ctx, s.id, &outboundSource{s: s})
	if err != nil {
		log.Printf("nova: session %s stream establishment failed: %v", s.id, err)
		m.metrics.IncStreamFailure("establish")
		m.dispatch(s, EventError, &ErrorEvent{Source: "establish", Detail: err.Error()})
		m.forceRemove(s.id, "establish_failed")
		return
	}
	defer stream.Close()

	m.processInbound(ctx, s, stream)
}

func (m *Manager) processInbound(ctx context.Context, s *session, stream InboundStream) {
	for {
		raw, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if s.isActive() {
					// Upstream hung up while we still considered the session
					// live.
					m.metrics.IncStreamFailure("unexpected_end")
					m.dispatch(s, EventStreamEnded, nil)
					m.forceRemove(s.id, "stream_error")
				} else {
					m.dispatch(s, EventStreamComplete, nil)
				}
				return
			}
			if ctx.Err() != nil {
				// Canceled by forceRemove or shutdown; nothing to report.
				return
			}
			log.Printf("nova: session %s inbound stream error: %v", s.id, err)
			m.metrics.IncStreamFailure("recv")
			m.dispatch(s, EventError, &ErrorEvent{Source: "stream", Detail: err.Error()})
			m.forceRemove(s.id, "stream_error")
			return
		}

		if !s.isActive() {
			// Frames racing the teardown are dropped; the registry has or is
			// about to forget this session.
			continue
		}

		t, data, err := decodeFrame(raw)
		if err != nil {
			log.Printf("nova: session %s dropping malformed frame: %v", s.id, err)
			continue
		}
		s.touch()
		m.handleFrame(ctx, s, t, data)
	}
}

func (m *Manager) handleFrame(ctx context.Context, s *session, t EventType, data any) {
	switch t {
	case EventToolUse:
		tu := data.(*ToolUse)
		if tu.ToolUseID != s.currentToolUseID() {
			s.beginToolUse(tu.ToolUseID, tu.ToolName)
			m.dispatch(s, EventToolUse, tu)
		} else {
			m.dispatch(s, EventToolInput, tu)
		}
		if tu.Content != "" {
			s.appendToolInput("content", tu.Content)
		}

	case EventContentEnd:
		ce := data.(*ContentEnd)
		if ce.Type == "TOOL" && s.currentToolUseID() != "" {
			m.finishToolUse(ctx, s)
		}
		m.dispatch(s, EventContentEnd, ce)

	default:
		m.dispatch(s, t, data)
	}
}

// finishToolUse runs the tool bridge synchronously on the inbound goroutine:
// the model is waiting for the result and will not speak again until it
// arrives, so there is nothing to gain from concurrency here.
func (m *Manager) finishToolUse(ctx context.Context, s *session) {
	inv := s.takeToolUse()
	m.dispatch(s, EventToolUseEnd, &inv)
	m.metrics.IncToolInvocation(inv.ToolName)

	result, err := m.executeTool(ctx, inv.ToolName, inv.Input)
	if err != nil {
		log.Printf("nova: session %s tool %s failed: %v", s.id, inv.ToolName, err)
		m.sendToolResult(s, inv.ToolUseID, map[string]string{"error": err.Error()}, "error")
		m.dispatch(s, EventToolError, &ToolOutcome{ToolUseID: inv.ToolUseID, ToolName: inv.ToolName, Err: err.Error()})
		return
	}
	m.sendToolResult(s, inv.ToolUseID, result, "")
	m.dispatch(s, EventToolResult, &ToolOutcome{ToolUseID: inv.ToolUseID, ToolName: inv.ToolName, Result: result})
}

// sendToolResult queues the three-event tool result segment. The session may
// have ended while the tool ran; enqueue checks liveness per event.
func (m *Manager) sendToolResult(s *session, toolUseID string, result any, status string) {
	content, err := json.Marshal(result)
	if err != nil {
		log.Printf("nova: session %s tool result for %s not serializable: %v", s.id, toolUseID, err)
		content = []byte(`{"error":"tool result not serializable"}`)
		status = "error"
	}

	contentID := uuid.NewString()
	cfg := textPlain
	m.enqueue(s, outboundBody{ContentStart: &contentStartEvent{
		PromptName:  s.promptName,
		ContentName: contentID,
		Type:        "TOOL",
		Interactive: false,
		Role:        "TOOL",
		ToolResultInputConfig: &toolResultConf{
			ToolUseID:              toolUseID,
			Type:                   "TEXT",
			TextInputConfiguration: cfg,
		},
	}}, false)
	m.enqueue(s, outboundBody{ToolResult: &toolResultEvent{
		PromptName:  s.promptName,
		ContentName: contentID,
		Content:     string(content),
		Status:      status,
	}}, false)
	m.enqueue(s, outboundBody{ContentEnd: &contentEndEvent{
		PromptName:  s.promptName,
		ContentName: contentID,
	}}, false)
}
