package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/normalize"
	"github.com/voicebridge/leadlink/internal/store"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLink runs the matcher for one lead and persists the winner.
// POST /api/link
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadID string `json:"lead_id"`
		Force  bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LeadID == "" {
		writeError(w, http.StatusBadRequest, "lead_id is required")
		return
	}

	lead, err := s.store.GetLead(r.Context(), req.LeadID)
	if err != nil {
		zap.L().Error("server: get lead failed", zap.String("lead_id", req.LeadID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	if lead.Linked() && !req.Force {
		writeError(w, http.StatusConflict, "lead already linked")
		return
	}

	res, err := s.linker.Link(r.Context(), *lead)
	if err != nil {
		zap.L().Error("server: link failed", zap.String("lead_id", lead.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "link attempt failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": res.Matched,
		"result":  res,
	})
}

// handleWebhookLead receives a lead from the call widget or an external
// form, stores it, and schedules a link attempt in the background.
// POST /webhook/lead
func (s *Server) handleWebhookLead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Phone  string `json:"phone"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" && req.Phone == "" {
		writeError(w, http.StatusBadRequest, "name or phone is required")
		return
	}

	source := model.LeadSource(req.Source)
	switch source {
	case model.LeadSourceWebhook, model.LeadSourceWidget, model.LeadSourceManual:
	case "":
		source = model.LeadSourceWebhook
	default:
		writeError(w, http.StatusBadRequest, "unknown source")
		return
	}

	lead, err := s.store.CreateLead(r.Context(), req.Name, normalize.Phone(req.Phone), source)
	if err != nil {
		zap.L().Error("server: create lead failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create lead failed")
		return
	}

	s.linkInBackground(*lead)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"lead":   lead,
	})
}

// handleLinkBatch schedules link attempts for unlinked leads.
// POST /api/link/batch
func (s *Server) handleLinkBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit int `json:"limit"`
	}
	// An empty body means "all unlinked leads, default limit".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	unlinked := false
	leads, err := s.store.ListLeads(r.Context(), store.LeadFilter{Linked: &unlinked, Limit: req.Limit})
	if err != nil {
		zap.L().Error("server: list unlinked leads failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}

	for _, lead := range leads {
		s.linkInBackground(lead)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"queued": len(leads),
	})
}

// handleListLeads lists leads with optional link-state and source filters.
// GET /api/leads
func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	filter := store.LeadFilter{}

	if v := r.URL.Query().Get("linked"); v != "" {
		linked, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "linked must be true or false")
			return
		}
		filter.Linked = &linked
	}
	if v := r.URL.Query().Get("source"); v != "" {
		filter.Source = model.LeadSource(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	leads, err := s.store.ListLeads(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list leads failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

// handleGetLead returns one lead by id.
// GET /api/leads/{leadID}
func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")

	lead, err := s.store.GetLead(r.Context(), leadID)
	if err != nil {
		zap.L().Error("server: get lead failed", zap.String("lead_id", leadID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}

	writeJSON(w, http.StatusOK, lead)
}

// handleDLQStatus reports how many failed link attempts are waiting.
// GET /api/dlq
func (s *Server) handleDLQStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountDLQ(r.Context())
	if err != nil {
		zap.L().Error("server: count dlq failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "dlq count failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"pending": count})
}
