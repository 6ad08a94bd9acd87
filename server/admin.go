package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	contractx "github.com/waritk/agentwidget/agent/contract"
	storex "github.com/waritk/agentwidget/store"
)

type agentBuilderRequest struct {
	TenantID     string         `json:"tenant_id"`
	Name         string         `json:"name"`
	AvatarURL    string         `json:"avatar_url,omitempty"`
	SystemPrompt string         `json:"system_prompt"`
	Identity     map[string]any `json:"identity"`
	Mission      map[string]any `json:"mission"`
	MemoryMode   string         `json:"memory_mode"`
}

func (req *agentBuilderRequest) validate() string {
	if strings.TrimSpace(req.TenantID) == "" {
		return "tenant_id is required"
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return "name must be between 1 and 100 characters"
	}
	if len(strings.TrimSpace(req.SystemPrompt)) < 10 {
		return "system_prompt must be at least 10 characters"
	}
	if req.MemoryMode != storex.MemoryModeThread && req.MemoryMode != storex.MemoryModePersistent {
		return "memory_mode must be 'thread' or 'persistent'"
	}
	return ""
}

func (s *Server) handleUpsertAgent(w http.ResponseWriter, r *http.Request) {
	var req agentBuilderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	storagePath, err := s.writeAgentFiles(req)
	if err != nil {
		log.Error().Err(err).Str("tenant", req.TenantID).Msg("failed to write agent files")
		writeError(w, http.StatusInternalServerError, "failed to write agent files")
		return
	}

	agent, err := s.directory.UpsertAgent(r.Context(), &storex.Agent{
		TenantID:     req.TenantID,
		Name:         strings.TrimSpace(req.Name),
		AvatarURL:    req.AvatarURL,
		SystemPrompt: req.SystemPrompt,
		Identity:     req.Identity,
		Mission:      req.Mission,
		MemoryMode:   req.MemoryMode,
	})
	if err != nil {
		log.Error().Err(err).Str("tenant", req.TenantID).Msg("agent upsert failed")
		writeError(w, http.StatusInternalServerError, "agent upsert failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":     agent.ID,
		"updated_at":   time.Now().UTC().Format(time.RFC3339),
		"storage_path": storagePath,
		"memory_mode":  agent.MemoryMode,
	})
}

// writeAgentFiles stores the identity and mission documents under the
// tenant's storage directory.
func (s *Server) writeAgentFiles(req agentBuilderRequest) (string, error) {
	storagePath, err := filepath.Abs(filepath.Join(s.cfg.StoragePath, req.TenantID))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return "", err
	}

	docs := map[string]map[string]any{
		"identity.json": req.Identity,
		"mission.json":  req.Mission,
	}
	for name, doc := range docs {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(storagePath, name), data, 0o644); err != nil {
			return "", err
		}
	}
	return storagePath, nil
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	agentName := chi.URLParam(r, "agentName")

	agent, err := s.directory.GetAgent(r.Context(), tenantID, agentName)
	if err != nil {
		if errors.Is(err, contractx.ErrUnknownAgent) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		log.Error().Err(err).Msg("agent lookup failed")
		writeError(w, http.StatusInternalServerError, "agent lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            agent.ID,
		"name":          agent.Name,
		"avatar_url":    agent.AvatarURL,
		"system_prompt": agent.SystemPrompt,
		"identity":      agent.Identity,
		"mission":       agent.Mission,
		"memory_mode":   agent.MemoryMode,
	})
}
