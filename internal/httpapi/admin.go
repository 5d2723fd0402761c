package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/novagate/internal/knowledge"
)

func (s *Server) adminRoutes(r chi.Router) {
	r.Get("/v1/admin/stats", s.handleAdminStats)
	r.Get("/v1/admin/calls", s.handleAdminCalls)
	r.Get("/v1/admin/gaps", s.handleAdminGaps)
	r.Get("/v1/admin/latency", s.handleAdminLatency)

	r.Get("/v1/admin/knowledge", s.handleGetKnowledge)
	r.Put("/v1/admin/knowledge", s.handleUpdateKnowledge)
	r.Get("/v1/admin/knowledge/templates", s.handleListTemplates)
	r.Post("/v1/admin/knowledge/templates", s.handleSaveTemplate)
	r.Delete("/v1/admin/knowledge/templates/{id}", s.handleDeleteTemplate)
	r.Post("/v1/admin/knowledge/templates/{id}/apply", s.handleApplyTemplate)
	r.Get("/v1/knowledge/faq/search", s.handleSearchFAQ)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	daily, err := s.store.Daily(r.Context(), days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"active_sessions": s.manager.ActiveCount(),
		"daily":           daily,
	})
}

func (s *Server) handleAdminCalls(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	calls, err := s.store.RecentCalls(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "calls_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func (s *Server) handleAdminGaps(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	gaps, err := s.store.KnowledgeGaps(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "gaps_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"gaps": gaps})
}

func (s *Server) handleAdminLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.latency.Snapshot())
}

func (s *Server) handleGetKnowledge(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.kb.Current())
}

func (s *Server) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	var base knowledge.Base
	if err := decodeJSON(r, &base); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(base.CompanyName) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "company_name is required")
		return
	}
	if err := s.kb.UpdateBase(base); err != nil {
		respondError(w, http.StatusInternalServerError, "update_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.kb.Current())
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"templates": s.kb.Templates()})
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl knowledge.Template
	if err := decodeJSON(r, &tpl); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(tpl.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	saved, err := s.kb.SaveTemplate(tpl)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.kb.DeleteTemplate(id); err != nil {
		respondError(w, http.StatusNotFound, "template_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.kb.ApplyTemplate(id); err != nil {
		respondError(w, http.StatusNotFound, "template_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.kb.Current())
}

func (s *Server) handleSearchFAQ(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "missing_query", "query parameter q is required")
		return
	}
	hits, gap := s.kb.SearchFAQ(query)
	if hits == nil {
		hits = []knowledge.FAQ{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": hits, "gap": gap})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
