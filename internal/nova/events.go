package nova

import (
	"encoding/json"
)

// EventType names an inbound event class for handler registration. The
// enumeration is closed on the manager side; frames whose discriminant is
// not listed here are still dispatched under their own discriminant key so
// callers can subscribe to metadata events (completionStart, usageEvent, …)
// without the manager interpreting them.
type EventType string

const (
	EventContentStart EventType = "contentStart"
	EventContentEnd   EventType = "contentEnd"
	EventTextOutput   EventType = "textOutput"
	EventAudioOutput  EventType = "audioOutput"
	EventToolUse      EventType = "toolUse"
	EventToolInput    EventType = "toolInput"
	EventToolUseEnd   EventType = "toolUseEnd"
	EventToolResult   EventType = "toolResult"
	EventToolError    EventType = "toolError"
	EventError        EventType = "error"

	// EventStreamComplete fires when the upstream stream ends after the
	// session was closed on our side; EventStreamEnded fires when it ends
	// while the session still believed itself active.
	EventStreamComplete EventType = "streamComplete"
	EventStreamEnded    EventType = "streamEndedUnexpectedly"

	EventUnknown EventType = "unknown"

	// EventAny is the wildcard registration key: its handler receives every
	// event dispatched to the session, after the type-specific handler.
	EventAny EventType = "any"
)

// Event is what handlers receive. Data holds the decoded payload for the
// closed event kinds and json.RawMessage for passthrough/unknown ones.
type Event struct {
	SessionID string
	Type      EventType
	Data      any
}

// Handler consumes dispatched events. Handlers run on the session's inbound
// goroutine; a slow handler delays subsequent dispatches for that session
// only.
type Handler func(Event)

// Inbound payloads.

type ContentStart struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Type        string `json:"type"`
	Role        string `json:"role"`
}

type ContentEnd struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Type        string `json:"type"`
	StopReason  string `json:"stopReason"`
}

type TextOutput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Role        string `json:"role"`
	Content     string `json:"content"`
}

type AudioOutput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	// Content is base64 PCM as emitted by the service; forwarded verbatim.
	Content string `json:"content"`
}

type ToolUse struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	ToolUseID   string `json:"toolUseId"`
	ToolName    string `json:"toolName"`
	Content     string `json:"content"`
}

// ToolInvocation is dispatched on toolUseEnd with the fully assembled input.
type ToolInvocation struct {
	ToolUseID string
	ToolName  string
	Input     map[string]string
}

// ToolOutcome is dispatched after the tool bridge runs.
type ToolOutcome struct {
	ToolUseID string
	ToolName  string
	Result    any
	Err       string
}

// ErrorEvent is dispatched for upstream faults and establishment failures.
type ErrorEvent struct {
	Source string
	Detail string
}

// InferenceConfig is copied into each session at creation.
type InferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

// Outbound wire envelope. Exactly one member of the body is set per event;
// the upstream treats the member name as the discriminant.
type outboundEvent struct {
	Event outboundBody `json:"event"`
}

type outboundBody struct {
	SessionStart *sessionStartEvent `json:"sessionStart,omitempty"`
	PromptStart  *promptStartEvent  `json:"promptStart,omitempty"`
	ContentStart *contentStartEvent `json:"contentStart,omitempty"`
	TextInput    *textInputEvent    `json:"textInput,omitempty"`
	AudioInput   *audioInputEvent   `json:"audioInput,omitempty"`
	ToolResult   *toolResultEvent   `json:"toolResult,omitempty"`
	ContentEnd   *contentEndEvent   `json:"contentEnd,omitempty"`
	PromptEnd    *promptEndEvent    `json:"promptEnd,omitempty"`
	SessionEnd   *struct{}          `json:"sessionEnd,omitempty"`
}

type sessionStartEvent struct {
	InferenceConfiguration InferenceConfig `json:"inferenceConfiguration"`
}

type promptStartEvent struct {
	PromptName                 string          `json:"promptName"`
	TextOutputConfiguration    mediaTypeConfig `json:"textOutputConfiguration"`
	AudioOutputConfiguration   audioOutputConf `json:"audioOutputConfiguration"`
	ToolUseOutputConfiguration mediaTypeConfig `json:"toolUseOutputConfiguration"`
	ToolConfiguration          *toolConfig     `json:"toolConfiguration,omitempty"`
}

type toolConfig struct {
	Tools []wireToolSpec `json:"tools"`
}

type wireToolSpec struct {
	ToolSpec wireToolSpecBody `json:"toolSpec"`
}

type wireToolSpecBody struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema wireToolSchema `json:"inputSchema"`
}

type wireToolSchema struct {
	JSON json.RawMessage `json:"json"`
}

type contentStartEvent struct {
	PromptName              string           `json:"promptName"`
	ContentName             string           `json:"contentName"`
	Type                    string           `json:"type"`
	Interactive             bool             `json:"interactive"`
	Role                    string           `json:"role,omitempty"`
	TextInputConfiguration  *mediaTypeConfig `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration *audioInputConf  `json:"audioInputConfiguration,omitempty"`
	ToolResultInputConfig   *toolResultConf  `json:"toolResultInputConfiguration,omitempty"`
}

type textInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

type audioInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

type toolResultEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
	Status      string `json:"status,omitempty"`
}

type contentEndEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
}

type promptEndEvent struct {
	PromptName string `json:"promptName"`
}

type mediaTypeConfig struct {
	MediaType string `json:"mediaType"`
}

type audioInputConf struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	AudioType       string `json:"audioType"`
	Encoding        string `json:"encoding"`
}

type audioOutputConf struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId"`
	Encoding        string `json:"encoding"`
	AudioType       string `json:"audioType"`
}

type toolResultConf struct {
	ToolUseID              string          `json:"toolUseId"`
	Type                   string          `json:"type"`
	TextInputConfiguration mediaTypeConfig `json:"textInputConfiguration"`
}

var defaultAudioInput = audioInputConf{
	MediaType:       "audio/lpcm",
	SampleRateHertz: 16000,
	SampleSizeBits:  16,
	ChannelCount:    1,
	AudioType:       "SPEECH",
	Encoding:        "base64",
}

var defaultAudioOutput = audioOutputConf{
	MediaType:       "audio/lpcm",
	SampleRateHertz: 24000,
	SampleSizeBits:  16,
	ChannelCount:    1,
	VoiceID:         "matthew",
	Encoding:        "base64",
	AudioType:       "SPEECH",
}

var textPlain = mediaTypeConfig{MediaType: "text/plain"}
var applicationJSON = mediaTypeConfig{MediaType: "application/json"}

func marshalEvent(body outboundBody) []byte {
	b, err := json.Marshal(outboundEvent{Event: body})
	if err != nil {
		// All outbound payloads are plain structs and strings; a marshal
		// failure would be a programming error.
		panic(err)
	}
	return b
}

// inboundFrame carries the raw discriminant map of one inbound wire frame.
type inboundFrame struct {
	Event map[string]json.RawMessage `json:"event"`
}

// decodeFrame classifies one raw frame. The returned Data is a decoded
// struct for the closed kinds and the raw payload otherwise. An error means
// the frame was not deserializable at all.
func decodeFrame(raw []byte) (EventType, any, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", nil, err
	}
	if len(frame.Event) == 0 {
		return EventUnknown, json.RawMessage(raw), nil
	}

	decodeInto := func(key string, out any) (EventType, any, error) {
		if err := json.Unmarshal(frame.Event[key], out); err != nil {
			return "", nil, err
		}
		return EventType(key), out, nil
	}

	for key := range frame.Event {
		switch EventType(key) {
		case EventContentStart:
			return decodeInto(key, &ContentStart{})
		case EventContentEnd:
			return decodeInto(key, &ContentEnd{})
		case EventTextOutput:
			return decodeInto(key, &TextOutput{})
		case EventAudioOutput:
			return decodeInto(key, &AudioOutput{})
		case EventToolUse:
			return decodeInto(key, &ToolUse{})
		}
	}

	// Single unrecognized discriminant: pass it through under its own name
	// so callers can subscribe to metadata events.
	for key, payload := range frame.Event {
		return EventType(key), json.RawMessage(payload), nil
	}
	return EventUnknown, json.RawMessage(raw), nil
}
