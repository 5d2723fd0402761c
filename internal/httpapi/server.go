package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/novagate/internal/analytics"
	"github.com/ent0n29/novagate/internal/audio"
	"github.com/ent0n29/novagate/internal/config"
	"github.com/ent0n29/novagate/internal/knowledge"
	"github.com/ent0n29/novagate/internal/nova"
	"github.com/ent0n29/novagate/internal/observability"
	"github.com/ent0n29/novagate/internal/protocol"
)

type Server struct {
	cfg      config.Config
	manager  *nova.Manager
	store    analytics.Store
	kb       *knowledge.Manager
	metrics  *observability.Metrics
	latency  *observability.LatencyWindow
	upgrader websocket.Upgrader

	mu    sync.Mutex
	calls map[string]*callState
}

// callState accumulates per-session counters for the call record written at
// teardown.
type callState struct {
	started        time.Time
	userTurns      int
	assistantTurns int
	toolCalls      int
}

func New(cfg config.Config, manager *nova.Manager, store analytics.Store, kb *knowledge.Manager, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		manager: manager,
		store:   store,
		kb:      kb,
		metrics: metrics,
		latency: observability.NewLatencyWindow(256),
		calls:   make(map[string]*callState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections by default, so another
				// site cannot drive a visitor's mic session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Get("/v1/sessions/ws", s.handleSessionWS)

	s.adminRoutes(r)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.manager.ActiveCount(),
	})
}

type createSessionRequest struct {
	SessionID   string   `json:"session_id"`
	MaxTokens   int      `json:"max_tokens"`
	TopP        *float64 `json:"top_p"`
	Temperature *float64 `json:"temperature"`
}

type createSessionResponse struct {
	SessionID       string `json:"session_id"`
	InactivityTTLMS int64  `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var inference *nova.InferenceConfig
	if req.MaxTokens > 0 || req.TopP != nil || req.Temperature != nil {
		inf := nova.InferenceConfig{
			MaxTokens:   s.cfg.MaxTokens,
			TopP:        s.cfg.TopP,
			Temperature: s.cfg.Temperature,
		}
		if req.MaxTokens > 0 {
			inf.MaxTokens = req.MaxTokens
		}
		if req.TopP != nil {
			inf.TopP = *req.TopP
		}
		if req.Temperature != nil {
			inf.Temperature = *req.Temperature
		}
		inference = &inf
	}

	start := time.Now()
	id, err := s.manager.CreateSession(strings.TrimSpace(req.SessionID), inference)
	if err != nil {
		if errors.Is(err, nova.ErrSessionExists) {
			respondError(w, http.StatusConflict, "session_exists", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}
	s.latency.Observe("stream_establish", time.Since(start))
	s.trackSession(id)

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:       id,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.manager.ListActiveSessions()
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	if !s.manager.IsActive(id) {
		respondError(w, http.StatusNotFound, "session_not_found", "no active session "+id)
		return
	}
	s.manager.EndSession(id)
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "status": "ended"})
}

// handleSessionWS bridges one websocket connection to one protocol session.
// The session must already exist (POST /v1/sessions first).
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if !s.manager.IsActive(sessionID) {
		respondError(w, http.StatusNotFound, "session_not_found", "no active session "+sessionID)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.IncSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	s.registerSessionHandlers(sessionID, outbound, cancel)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.IncWSMessage("outbound", string(t))
				}
			}
		}
	}()

	// Drive the prompt open as soon as the client attaches.
	s.manager.StartPrompt(sessionID)
	s.manager.SendSystemPrompt(sessionID, s.systemPrompt())

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.send(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Source:    "gateway",
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.IncWSMessage("inbound", string(t))
		}
		if done := s.handleClientMessage(r.Context(), sessionID, parsed, outbound); done {
			break
		}
	}

	cancel()
	<-writerDone
	s.metrics.IncSessionEvent("ws_disconnected")
}

func (s *Server) handleClientMessage(ctx context.Context, sessionID string, msg any, outbound chan<- any) (done bool) {
	switch m := msg.(type) {
	case protocol.ClientAudioChunk:
		pcm, err := audio.DecodeChunk(m.PCM16Base64, m.SampleRate)
		if err != nil {
			s.send(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Source:    "audio",
				Detail:    err.Error(),
			})
			return false
		}
		s.manager.StreamAudioChunk(sessionID, pcm)

	case protocol.ClientText:
		s.bumpCall(sessionID, func(c *callState) { c.userTurns++ })
		s.manager.SendTextContent(sessionID, "USER", m.Content)
		s.recordGapIfAny(ctx, sessionID, m.Content)

	case protocol.ClientControl:
		switch m.Action {
		case protocol.ActionStartAudio:
			s.manager.StartAudioContent(sessionID)
		case protocol.ActionEndAudio:
			s.bumpCall(sessionID, func(c *callState) { c.userTurns++ })
			s.manager.EndAudioContent(sessionID)
		case protocol.ActionEndSession:
			s.manager.EndSession(sessionID)
			return true
		}
	}
	return false
}

// recordGapIfAny logs a knowledge gap when the FAQ has no answer for a
// user's typed question.
func (s *Server) recordGapIfAny(ctx context.Context, sessionID, query string) {
	if s.kb == nil || s.store == nil || !strings.Contains(query, "?") {
		return
	}
	if _, gap := s.kb.SearchFAQ(query); !gap {
		return
	}
	if err := s.store.SaveKnowledgeGap(ctx, analytics.KnowledgeGap{SessionID: sessionID, Query: query}); err != nil {
		log.Printf("httpapi: save knowledge gap: %v", err)
	}
}

// registerSessionHandlers forwards protocol events to the websocket client.
func (s *Server) registerSessionHandlers(sessionID string, outbound chan<- any, cancel context.CancelFunc) {
	s.manager.RegisterHandler(sessionID, nova.EventTextOutput, func(ev nova.Event) {
		to := ev.Data.(*nova.TextOutput)
		if strings.EqualFold(to.Role, "ASSISTANT") {
			s.bumpCall(sessionID, func(c *callState) { c.assistantTurns++ })
		}
		s.send(outbound, protocol.AssistantText{
			Type:      protocol.TypeAssistantText,
			SessionID: sessionID,
			Role:      to.Role,
			Content:   to.Content,
		})
	})
	s.manager.RegisterHandler(sessionID, nova.EventAudioOutput, func(ev nova.Event) {
		ao := ev.Data.(*nova.AudioOutput)
		s.send(outbound, protocol.AssistantAudioChunk{
			Type:        protocol.TypeAssistantAudio,
			SessionID:   sessionID,
			Format:      "pcm16_24000",
			AudioBase64: ao.Content,
		})
	})
	s.manager.RegisterHandler(sessionID, nova.EventToolUse, func(ev nova.Event) {
		tu := ev.Data.(*nova.ToolUse)
		s.bumpCall(sessionID, func(c *callState) { c.toolCalls++ })
		s.send(outbound, protocol.ToolUse{
			Type:      protocol.TypeToolUse,
			SessionID: sessionID,
			ToolUseID: tu.ToolUseID,
			ToolName:  tu.ToolName,
		})
	})
	toolOutcome := func(ev nova.Event) {
		oc := ev.Data.(*nova.ToolOutcome)
		s.send(outbound, protocol.ToolResult{
			Type:      protocol.TypeToolResult,
			SessionID: sessionID,
			ToolUseID: oc.ToolUseID,
			ToolName:  oc.ToolName,
			Error:     oc.Err,
		})
	}
	s.manager.RegisterHandler(sessionID, nova.EventToolResult, toolOutcome)
	s.manager.RegisterHandler(sessionID, nova.EventToolError, toolOutcome)
	s.manager.RegisterHandler(sessionID, nova.EventError, func(ev nova.Event) {
		ee := ev.Data.(*nova.ErrorEvent)
		s.send(outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Source:    ee.Source,
			Detail:    ee.Detail,
		})
	})
	s.manager.RegisterHandler(sessionID, nova.EventStreamEnded, func(nova.Event) {
		s.send(outbound, protocol.SystemEvent{
			Type:      protocol.TypeSystemEvent,
			SessionID: sessionID,
			Code:      "stream_ended",
		})
		cancel()
	})
	s.manager.RegisterHandler(sessionID, nova.EventStreamComplete, func(nova.Event) {
		s.send(outbound, protocol.SystemEvent{
			Type:      protocol.TypeSystemEvent,
			SessionID: sessionID,
			Code:      "stream_complete",
		})
		cancel()
	})
}

// send never blocks the protocol's inbound loop; the websocket writer is the
// only consumer and a saturated client loses frames rather than stalling the
// session.
func (s *Server) send(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		log.Print("httpapi: ws outbound buffer full, dropping message")
	}
}

func (s *Server) systemPrompt() string {
	if s.cfg.SystemPrompt != "" {
		return s.cfg.SystemPrompt
	}
	if s.kb != nil {
		return s.kb.SystemPrompt()
	}
	return "You are a friendly assistant. Keep responses short."
}

func (s *Server) trackSession(id string) {
	s.mu.Lock()
	s.calls[id] = &callState{started: time.Now().UTC()}
	s.mu.Unlock()
}

func (s *Server) bumpCall(id string, fn func(*callState)) {
	s.mu.Lock()
	if c, ok := s.calls[id]; ok {
		fn(c)
	}
	s.mu.Unlock()
}

// OnSessionClosed is the manager close hook: it turns the accumulated call
// state into an analytics record.
func (s *Server) OnSessionClosed(sessionID, reason string) {
	s.mu.Lock()
	c, ok := s.calls[sessionID]
	delete(s.calls, sessionID)
	s.mu.Unlock()
	if !ok || s.store == nil {
		return
	}

	ended := time.Now().UTC()
	record := analytics.CallRecord{
		SessionID:       sessionID,
		StartedAt:       c.started,
		EndedAt:         ended,
		DurationSeconds: int(ended.Sub(c.started).Seconds()),
		EndReason:       reason,
		UserTurns:       c.userTurns,
		AssistantTurns:  c.assistantTurns,
		ToolCalls:       c.toolCalls,
		Qualified:       analytics.Qualify(c.userTurns, c.toolCalls),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveCall(ctx, record); err != nil {
		log.Printf("httpapi: save call record for %s: %v", sessionID, err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantText:
		return m.Type, true
	case protocol.AssistantAudioChunk:
		return m.Type, true
	case protocol.ToolUse:
		return m.Type, true
	case protocol.ToolResult:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
