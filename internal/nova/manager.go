package nova

import (
	"context"
	"encoding/base64"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/novagate/internal/observability"
)

// Config tunes the protocol manager. Zero values fall back to upstream
// defaults at construction.
type Config struct {
	// Inference is copied into every session at creation.
	Inference InferenceConfig
	// AudioQueueCapacity bounds pending audio chunks per session; once full
	// the oldest unsent chunk is dropped. <=0 disables eviction.
	AudioQueueCapacity int
	// InactivityTimeout is how long a session may sit idle before the
	// reaper force-ends it.
	InactivityTimeout time.Duration
	// ReaperInterval is the sweep period.
	ReaperInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Inference.MaxTokens <= 0 {
		c.Inference = InferenceConfig{MaxTokens: 1024, TopP: 0.9, Temperature: 0.7}
	}
	if c.AudioQueueCapacity == 0 {
		c.AudioQueueCapacity = 200
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 5 * time.Minute
	}
	if c.ReaperInterval <= 0 {
		c.ReaperInterval = time.Minute
	}
	return c
}

// Manager multiplexes independent protocol sessions over the transport.
// It owns the session registry; sessions are only reachable through
// id-keyed operations, and every operation against an absent or inactive
// session is a logged no-op rather than an error.
type Manager struct {
	cfg       Config
	transport Transport
	tools     ToolResolver
	metrics   *observability.Metrics

	mu       sync.RWMutex
	sessions map[string]*session
	cleanup  map[string]struct{}

	closeHook func(sessionID, reason string)
}

func NewManager(cfg Config, transport Transport, tools ToolResolver, metrics *observability.Metrics) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		transport: transport,
		tools:     tools,
		metrics:   metrics,
		sessions:  make(map[string]*session),
		cleanup:   make(map[string]struct{}),
	}
}

// SetCloseHook registers a callback invoked once per session removal with
// a reason of "ended", "expired", "establish_failed" or "stream_error".
func (m *Manager) SetCloseHook(hook func(sessionID, reason string)) {
	m.mu.Lock()
	m.closeHook = hook
	m.mu.Unlock()
}

// CreateSession registers a new session and immediately starts connection
// establishment in the background. An empty id gets a fresh UUID. A non-nil
// inference overrides the manager default for this session only; it cannot
// change once the sessionStart event is queued.
func (m *Manager) CreateSession(id string, inference *InferenceConfig) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	inf := m.cfg.Inference
	if inference != nil {
		inf = *inference
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:             id,
		promptName:     uuid.NewString(),
		queue:          newEventQueue(m.cfg.AudioQueueCapacity),
		cancel:         cancel,
		handlers:       make(map[EventType]Handler),
		active:         true,
		audioContentID: uuid.NewString(),
		inference:      inf,
		lastActivity:   time.Now().UTC(),
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		cancel()
		return "", ErrSessionExists
	}
	m.sessions[id] = s
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(active)
	m.metrics.IncSessionEvent("created")
	log.Printf("nova: session %s created", id)

	// The session start event must be first on the wire.
	m.enqueue(s, outboundBody{SessionStart: &sessionStartEvent{InferenceConfiguration: inf}}, false)

	go m.runSession(ctx, s)
	return id, nil
}

// RegisterHandler binds a callback for one event type on one session.
// Re-registration replaces the previous handler (last write wins); a nil
// handler unregisters. EventAny receives every event for the session.
func (m *Manager) RegisterHandler(sessionID string, t EventType, h Handler) {
	s := m.lookup(sessionID)
	if s == nil {
		log.Printf("nova: register handler %s on unknown session %s ignored", t, sessionID)
		return
	}
	s.setHandler(t, h)
	s.touch()
}

// IsActive reports whether the session exists and has not begun teardown.
func (m *Manager) IsActive(sessionID string) bool {
	s := m.lookup(sessionID)
	return s != nil && s.isActive()
}

// ListActiveSessions returns the ids of all live sessions.
func (m *Manager) ListActiveSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id, s := range m.sessions {
		if s.isActive() {
			ids = append(ids, id)
		}
	}
	return ids
}

// ActiveCount is ListActiveSessions without the allocation.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.isActive() {
			n++
		}
	}
	return n
}

// LastActivity returns the session's last activity timestamp, or zero time
// if the session is unknown.
func (m *Manager) LastActivity(sessionID string) time.Time {
	s := m.lookup(sessionID)
	if s == nil {
		return time.Time{}
	}
	return s.idleSince()
}

// StartPrompt opens the prompt container. Duplicate calls are ignored with
// a warning; the upstream would reject a second promptStart.
func (m *Manager) StartPrompt(sessionID string) {
	s := m.lookup(sessionID)
	if s == nil || !s.isActive() {
		log.Printf("nova: startPrompt on missing/inactive session %s ignored", sessionID)
		return
	}

	s.mu.Lock()
	if s.promptStarted {
		s.mu.Unlock()
		log.Printf("nova: prompt already started for session %s, ignoring", sessionID)
		return
	}
	s.promptStarted = true
	s.mu.Unlock()

	ev := &promptStartEvent{
		PromptName:                 s.promptName,
		TextOutputConfiguration:    textPlain,
		AudioOutputConfiguration:   defaultAudioOutput,
		ToolUseOutputConfiguration: applicationJSON,
	}
	if m.tools != nil {
		specs := m.tools.Specs()
		if len(specs) > 0 {
			tc := &toolConfig{Tools: make([]wireToolSpec, 0, len(specs))}
			for _, spec := range specs {
				tc.Tools = append(tc.Tools, wireToolSpec{ToolSpec: wireToolSpecBody{
					Name:        spec.Name,
					Description: spec.Description,
					InputSchema: wireToolSchema{JSON: spec.InputSchema},
				}})
			}
			ev.ToolConfiguration = tc
		}
	}
	m.enqueue(s, outboundBody{PromptStart: ev}, false)
}

// SendSystemPrompt emits a system text segment. Requires an open prompt.
func (m *Manager) SendSystemPrompt(sessionID, content string) {
	m.SendTextContent(sessionID, "SYSTEM", content)
}

// SendTextContent emits a complete text content segment (start/body/end)
// scoped to a fresh content id. Role is SYSTEM, USER or ASSISTANT.
func (m *Manager) SendTextContent(sessionID, role, content string) {
	s := m.lookup(sessionID)
	if s == nil || !s.isActive() {
		log.Printf("nova: text content on missing/inactive session %s ignored", sessionID)
		return
	}
	s.mu.Lock()
	started := s.promptStarted
	s.mu.Unlock()
	if !started {
		log.Printf("nova: text content before prompt start on session %s ignored", sessionID)
		return
	}

	contentID := uuid.NewString()
	cfg := textPlain
	m.enqueue(s, outboundBody{ContentStart: &contentStartEvent{
		PromptName:             s.promptName,
		ContentName:            contentID,
		Type:                   "TEXT",
		Interactive:            true,
		Role:                   role,
		TextInputConfiguration: &cfg,
	}}, false)
	m.enqueue(s, outboundBody{TextInput: &textInputEvent{
		PromptName:  s.promptName,
		ContentName: contentID,
		Content:     content,
	}}, false)
	m.enqueue(s, outboundBody{ContentEnd: &contentEndEvent{
		PromptName:  s.promptName,
		ContentName: contentID,
	}}, false)
}

// StartAudioContent opens the audio segment for the session's current audio
// content id. Requires an open prompt; duplicate calls are ignored.
func (m *Manager) StartAudioContent(sessionID string) {
	s := m.lookup(sessionID)
	if s == nil || !s.isActive() {
		log.Printf("nova: startAudioContent on missing/inactive session %s ignored", sessionID)
		return
	}

	s.mu.Lock()
	if !s.promptStarted {
		s.mu.Unlock()
		log.Printf("nova: startAudioContent before prompt start on session %s ignored", sessionID)
		return
	}
	if s.audioStarted {
		s.mu.Unlock()
		log.Printf("nova: audio content already started for session %s, ignoring", sessionID)
		return
	}
	s.audioStarted = true
	contentID := s.audioContentID
	s.mu.Unlock()

	cfg := defaultAudioInput
	m.enqueue(s, outboundBody{ContentStart: &contentStartEvent{
		PromptName:              s.promptName,
		ContentName:             contentID,
		Type:                    "AUDIO",
		Interactive:             true,
		Role:                    "USER",
		AudioInputConfiguration: &cfg,
	}}, false)
}

// StreamAudioChunk enqueues one PCM chunk for the open audio segment. It
// never returns an error: audio producers must not block on transient
// protocol state, so out-of-order chunks are silently dropped.
func (m *Manager) StreamAudioChunk(sessionID string, pcm []byte) {
	s := m.lookup(sessionID)
	if s == nil || !s.isActive() {
		return
	}
	s.mu.Lock()
	if !s.audioStarted {
		s.mu.Unlock()
		return
	}
	contentID := s.audioContentID
	s.mu.Unlock()

	m.enqueue(s, outboundBody{AudioInput: &audioInputEvent{
		PromptName:  s.promptName,
		ContentName: contentID,
		Content:     base64.StdEncoding.EncodeToString(pcm),
	}}, true)
}

// EndAudioContent closes the open audio segment and rotates the audio
// content id so any chunk still referencing the old segment stays
// attributable to it.
func (m *Manager) EndAudioContent(sessionID string) {
	s := m.lookup(sessionID)
	if s == nil {
		log.Printf("nova: endAudioContent on unknown session %s ignored", sessionID)
		return
	}
	m.endAudio(s)
}

func (m *Manager) endAudio(s *session) {
	s.mu.Lock()
	if !s.audioStarted {
		s.mu.Unlock()
		return
	}
	s.audioStarted = false
	contentID := s.audioContentID
	s.audioContentID = uuid.NewString()
	s.mu.Unlock()

	m.enqueue(s, outboundBody{ContentEnd: &contentEndEvent{
		PromptName:  s.promptName,
		ContentName: contentID,
	}}, false)
}

// EndPrompt closes the prompt container, implicitly ending an open audio
// segment first.
func (m *Manager) EndPrompt(sessionID string) {
	s := m.lookup(sessionID)
	if s == nil {
		log.Printf("nova: endPrompt on unknown session %s ignored", sessionID)
		return
	}
	m.endPrompt(s)
}

func (m *Manager) endPrompt(s *session) {
	m.endAudio(s)

	s.mu.Lock()
	if !s.promptStarted {
		s.mu.Unlock()
		return
	}
	s.promptStarted = false
	s.mu.Unlock()

	m.enqueue(s, outboundBody{PromptEnd: &promptEndEvent{PromptName: s.promptName}}, false)
}

// EndSession tears the session down: open audio and prompt containers are
// closed first, the session end marker is queued, the queue is closed so the
// drain pump flushes and finishes, and the registry entry is removed last so
// concurrent readers observe closure before the state disappears. Safe to
// call any number of times and on unknown ids.
func (m *Manager) EndSession(sessionID string) {
	if !m.beginCleanup(sessionID) {
		return
	}
	defer m.endCleanup(sessionID)
	m.closeSession(sessionID, "ended")
}

func (m *Manager) closeSession(sessionID, reason string) {
	s := m.lookup(sessionID)
	if s == nil {
		return
	}

	m.endPrompt(s)
	m.enqueue(s, outboundBody{SessionEnd: &struct{}{}}, false)

	s.deactivate()
	s.queue.close()
	s.clearHandlers()
	m.remove(sessionID, reason)
	log.Printf("nova: session %s closed (%s)", sessionID, reason)
}

// forceRemove skips the graceful wire sequence: the session is deactivated,
// its stream context canceled, and its state dropped.
func (m *Manager) forceRemove(sessionID, reason string) {
	s := m.lookup(sessionID)
	if s == nil {
		return
	}
	s.deactivate()
	s.queue.close()
	s.clearHandlers()
	s.cancel()
	m.remove(sessionID, reason)
	log.Printf("nova: session %s force removed (%s)", sessionID, reason)
}

func (m *Manager) remove(sessionID, reason string) {
	m.mu.Lock()
	_, existed := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	active := len(m.sessions)
	hook := m.closeHook
	m.mu.Unlock()

	if !existed {
		return
	}
	m.metrics.SetActiveSessions(active)
	m.metrics.IncSessionEvent(reason)
	if hook != nil {
		hook(sessionID, reason)
	}
}

// StartReaper sweeps for idle sessions until ctx is canceled.
func (m *Manager) StartReaper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReaperInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reapIdle()
			}
		}
	}()
}

func (m *Manager) reapIdle() {
	now := time.Now().UTC()

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if _, busy := m.cleanup[id]; busy {
			continue
		}
		if now.Sub(s.idleSince()) > m.cfg.InactivityTimeout {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		if !m.beginCleanup(id) {
			continue
		}
		log.Printf("nova: session %s idle beyond %s, reaping", id, m.cfg.InactivityTimeout)
		m.closeSession(id, "expired")
		// Graceful close must never leave residue behind.
		if m.lookup(id) != nil {
			m.forceRemove(id, "expired")
		}
		m.endCleanup(id)
	}
}

// CloseAll ends every session; used on shutdown.
func (m *Manager) CloseAll() {
	for _, id := range m.ListActiveSessions() {
		m.EndSession(id)
	}
}

func (m *Manager) lookup(sessionID string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

func (m *Manager) beginCleanup(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.cleanup[sessionID]; busy {
		return false
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	m.cleanup[sessionID] = struct{}{}
	return true
}

func (m *Manager) endCleanup(sessionID string) {
	m.mu.Lock()
	delete(m.cleanup, sessionID)
	m.mu.Unlock()
}

func (m *Manager) enqueue(s *session, body outboundBody, evictable bool) {
	if !s.isActive() {
		log.Printf("nova: enqueue on inactive session %s skipped", s.id)
		return
	}
	if dropped := s.queue.push(marshalEvent(body), evictable); dropped {
		m.metrics.IncAudioDropped()
		log.Printf("nova: session %s audio queue full, dropped oldest chunk", s.id)
	}
	s.touch()
	m.metrics.IncOutboundEvent(body.kind())
}

// kind names the set member for metrics labels.
func (b outboundBody) kind() string {
	switch {
	case b.SessionStart != nil:
		return "sessionStart"
	case b.PromptStart != nil:
		return "promptStart"
	case b.ContentStart != nil:
		return "contentStart"
	case b.TextInput != nil:
		return "textInput"
	case b.AudioInput != nil:
		return "audioInput"
	case b.ToolResult != nil:
		return "toolResult"
	case b.ContentEnd != nil:
		return "contentEnd"
	case b.PromptEnd != nil:
		return "promptEnd"
	case b.SessionEnd != nil:
		return "sessionEnd"
	}
	return "unknown"
}

// dispatch routes one event to the session's type handler, then its
// wildcard handler. Handler panics are contained; one misbehaving callback
// must not take down the inbound loop.
func (m *Manager) dispatch(s *session, t EventType, data any) {
	ev := Event{SessionID: s.id, Type: t, Data: data}
	if h, ok := s.handler(t); ok {
		safeInvoke(s.id, t, h, ev)
	}
	if h, ok := s.handler(EventAny); ok {
		safeInvoke(s.id, EventAny, h, ev)
	}
	m.metrics.IncInboundEvent(string(t))
}

func safeInvoke(sessionID string, t EventType, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("nova: handler %s for session %s panicked: %v", t, sessionID, r)
		}
	}()
	h(ev)
}
