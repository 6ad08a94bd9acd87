package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	contractx "github.com/waritk/agentwidget/agent/contract"
	sessionx "github.com/waritk/agentwidget/agent/session"
)

type chatRequest struct {
	TenantID  string `json:"tenant_id"`
	AgentName string `json:"agent_name"`
	SessionID string `json:"session_id"`
	UserInput string `json:"user_input"`
}

type chatResponse struct {
	Reply       string `json:"reply"`
	NotesForCRM string `json:"notes_for_crm"`
	AgentID     string `json:"agent_id"`
	SessionID   string `json:"session_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := strings.TrimSpace(req.UserInput)
	if input == "" {
		writeError(w, http.StatusBadRequest, "user_input is required")
		return
	}
	if len(input) > maxUserInputLen {
		writeError(w, http.StatusBadRequest, "user_input exceeds maximum length")
		return
	}

	agent, err := s.directory.GetAgent(r.Context(), req.TenantID, req.AgentName)
	if err != nil {
		if errors.Is(err, contractx.ErrUnknownAgent) {
			writeError(w, http.StatusNotFound, "agent '"+req.AgentName+"' not found for tenant "+req.TenantID)
			return
		}
		log.Error().Err(err).Msg("agent lookup failed")
		writeError(w, http.StatusInternalServerError, "agent lookup failed")
		return
	}

	key, err := sessionx.Resolve(req.TenantID, agent.ID, req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.turns.Run(r.Context(), contractx.AgentContext{
		Key:           key,
		SystemPrompt:  agent.SystemPrompt,
		PersistMemory: agent.PersistsMemory(),
		Input:         input,
	})
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("session", key.String()).Msg("chat turn failed")
		writeError(w, http.StatusInternalServerError, "chat processing failed")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:       result.Reply,
		NotesForCRM: result.NotesForCRM,
		AgentID:     result.AgentID,
		SessionID:   result.SessionID,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	key, err := sessionx.Resolve(
		chi.URLParam(r, "tenantID"),
		chi.URLParam(r, "agentID"),
		chi.URLParam(r, "sessionID"),
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.history.Clear(key)
	w.WriteHeader(http.StatusNoContent)
}
