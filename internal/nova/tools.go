package nova

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ToolFunc executes one tool invocation. Input is the accumulated keyed
// argument map assembled from streamed tool-input chunks; for the Nova wire
// protocol the arguments arrive under the "content" key as a JSON document.
// Tools are pure functions of their input and must not reach back into
// session state.
type ToolFunc func(ctx context.Context, input map[string]string) (any, error)

// ToolSpec describes a tool to the model inside the promptStart event.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Tool pairs a spec with its implementation.
type Tool struct {
	Spec ToolSpec
	Run  ToolFunc
}

// ToolResolver supplies tool implementations by name. Lookup is
// case-insensitive.
type ToolResolver interface {
	Resolve(name string) (Tool, bool)
	Specs() []ToolSpec
}

// executeTool runs the bridge lookup and invocation. Failures are returned
// to the inbound loop, which converts them into a tool-error result instead
// of tearing down the session.
func (m *Manager) executeTool(ctx context.Context, name string, input map[string]string) (any, error) {
	if m.tools == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTool, name)
	}
	tool, ok := m.tools.Resolve(strings.ToLower(name))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTool, name)
	}
	return tool.Run(ctx, input)
}
