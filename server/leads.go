package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	crmx "github.com/waritk/agentwidget/pkg/crm"
	storex "github.com/waritk/agentwidget/store"
)

type leadRequest struct {
	TenantID  string `json:"tenant_id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Notes     string `json:"notes,omitempty"`
	PushToCRM *bool  `json:"push_to_crm,omitempty"` // default true
}

func (s *Server) handleUpsertLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.TenantID) == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if strings.TrimSpace(req.Email) == "" && strings.TrimSpace(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "either email or phone is required")
		return
	}

	lead, err := s.directory.UpsertLead(r.Context(), &storex.Lead{
		TenantID:  req.TenantID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Notes:     req.Notes,
	})
	if err != nil {
		log.Error().Err(err).Str("tenant", req.TenantID).Msg("lead upsert failed")
		writeError(w, http.StatusInternalServerError, "lead upsert failed")
		return
	}

	// Best effort: a CRM failure never fails the lead request.
	if s.crm != nil && (req.PushToCRM == nil || *req.PushToCRM) {
		contactID, err := s.crm.PushContact(r.Context(), crmx.Contact{
			FirstName: lead.FirstName,
			LastName:  lead.LastName,
			Email:     lead.Email,
			Phone:     lead.Phone,
			Notes:     lead.Notes,
		})
		if err != nil {
			log.Warn().Err(err).Str("lead", lead.ID).Msg("crm push failed")
		} else if err := s.directory.UpdateLeadCRMRef(r.Context(), lead.ID, contactID); err != nil {
			log.Warn().Err(err).Str("lead", lead.ID).Msg("failed to record crm contact id")
		} else {
			lead.CRMContactID = contactID
			log.Info().Str("lead", lead.ID).Str("crm_contact", contactID).Msg("lead pushed to crm")
		}
	}

	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	leads, err := s.directory.LeadsByTenant(r.Context(), tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantID).Msg("lead listing failed")
		writeError(w, http.StatusInternalServerError, "lead listing failed")
		return
	}
	if leads == nil {
		leads = []storex.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}
