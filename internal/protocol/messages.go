package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientText       MessageType = "client_text"
	TypeClientControl    MessageType = "client_control"
	TypeAssistantText    MessageType = "assistant_text"
	TypeAssistantAudio   MessageType = "assistant_audio_chunk"
	TypeToolUse          MessageType = "tool_use"
	TypeToolResult       MessageType = "tool_result"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Control actions accepted in client_control messages.
const (
	ActionStartAudio = "start_audio"
	ActionEndAudio   = "end_audio"
	ActionEndSession = "end_session"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientText struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type AssistantText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
}

type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type ToolUse struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	ToolUseID string      `json:"tool_use_id"`
	ToolName  string      `json:"tool_name"`
}

type ToolResult struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	ToolUseID string      `json:"tool_use_id"`
	ToolName  string      `json:"tool_name"`
	Error     string      `json:"error,omitempty"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Source    string      `json:"source"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates one client->server message.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Content == "" {
			return nil, errors.New("invalid client_text")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionStartAudio, ActionEndAudio, ActionEndSession:
			return msg, nil
		}
		return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
	default:
		return nil, ErrUnsupportedType
	}
}
