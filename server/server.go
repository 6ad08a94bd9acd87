// Package server exposes the chat, admin, and leads HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	contractx "github.com/waritk/agentwidget/agent/contract"
	sessionx "github.com/waritk/agentwidget/agent/session"
	crmx "github.com/waritk/agentwidget/pkg/crm"
	storex "github.com/waritk/agentwidget/store"
)

const maxUserInputLen = 1000

type Config struct {
	Port           int           `envconfig:"PORT" split_words:"true" default:"8000"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" split_words:"true" default:"http://localhost:5173"`
	StoragePath    string        `envconfig:"STORAGE_PATH" split_words:"true" default:"./storage"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"60s"`
}

// Directory is the slice of the relational store the handlers need.
type Directory interface {
	GetAgent(ctx context.Context, tenantID, agentName string) (*storex.Agent, error)
	UpsertAgent(ctx context.Context, agent *storex.Agent) (*storex.Agent, error)
	UpsertLead(ctx context.Context, lead *storex.Lead) (*storex.Lead, error)
	UpdateLeadCRMRef(ctx context.Context, leadID, crmContactID string) error
	LeadsByTenant(ctx context.Context, tenantID string) ([]storex.Lead, error)
}

// TurnRunner runs one chat turn.
type TurnRunner interface {
	Run(ctx context.Context, actx contractx.AgentContext) (contractx.TurnResult, error)
}

// ContactPusher forwards a lead to the external CRM.
type ContactPusher interface {
	PushContact(ctx context.Context, contact crmx.Contact) (string, error)
}

type Server struct {
	directory Directory
	turns     TurnRunner
	history   *sessionx.Store
	crm       ContactPusher // nil disables CRM pushes
	cfg       Config
}

func New(directory Directory, turns TurnRunner, history *sessionx.Store, crm ContactPusher, cfg Config) *Server {
	return &Server{
		directory: directory,
		turns:     turns,
		history:   history,
		crm:       crm,
		cfg:       cfg,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Delete("/chat/{tenantID}/{agentID}/{sessionID}", s.handleClearSession)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/agent", s.handleUpsertAgent)
			r.Get("/agent/{tenantID}/{agentName}", s.handleGetAgent)
		})

		r.Route("/leads", func(r chi.Router) {
			r.Post("/", s.handleUpsertLead)
			r.Get("/{tenantID}", s.handleListLeads)
		})
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Agentic Widget API",
		"version": "1.0.0",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "agentic-widget-api",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
