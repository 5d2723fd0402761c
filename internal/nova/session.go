package nova

import (
	"context"
	"sync"
	"time"
)

// session is the registry-owned state for one live conversation. It is never
// handed outside the package; all access goes through Manager operations
// keyed by session id.
type session struct {
	id         string
	promptName string

	queue  *eventQueue
	cancel context.CancelFunc

	handlerMu sync.RWMutex
	handlers  map[EventType]Handler

	mu            sync.Mutex
	active        bool
	promptStarted bool
	audioStarted  bool
	// audioContentID scopes audio chunks to the current audio segment. It is
	// rotated on every content end so a late chunk from a finished segment
	// can never be attributed to the next one.
	audioContentID string
	inference      InferenceConfig
	lastActivity   time.Time

	toolUseID   string
	toolName    string
	toolInput   map[string]string
}

func (s *session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *session) deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// beginToolUse resets accumulation state for a new tool invocation. At most
// one tool call is in flight per session.
func (s *session) beginToolUse(useID, name string) {
	s.mu.Lock()
	s.toolUseID = useID
	s.toolName = name
	s.toolInput = make(map[string]string)
	s.mu.Unlock()
}

// appendToolInput concatenates a partial argument chunk under its key.
func (s *session) appendToolInput(key, value string) {
	s.mu.Lock()
	if s.toolInput == nil {
		s.toolInput = make(map[string]string)
	}
	s.toolInput[key] += value
	s.mu.Unlock()
}

// takeToolUse returns and clears the accumulated invocation.
func (s *session) takeToolUse() ToolInvocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := ToolInvocation{
		ToolUseID: s.toolUseID,
		ToolName:  s.toolName,
		Input:     s.toolInput,
	}
	s.toolUseID = ""
	s.toolName = ""
	s.toolInput = nil
	if inv.Input == nil {
		inv.Input = map[string]string{}
	}
	return inv
}

func (s *session) currentToolUseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolUseID
}

func (s *session) setHandler(t EventType, h Handler) {
	s.handlerMu.Lock()
	if h == nil {
		delete(s.handlers, t)
	} else {
		s.handlers[t] = h
	}
	s.handlerMu.Unlock()
}

func (s *session) handler(t EventType) (Handler, bool) {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	h, ok := s.handlers[t]
	return h, ok
}

func (s *session) clearHandlers() {
	s.handlerMu.Lock()
	s.handlers = make(map[EventType]Handler)
	s.handlerMu.Unlock()
}
