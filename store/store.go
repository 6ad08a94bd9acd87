// Package store holds the relational layer: tenants, agents, leads, and
// long-term memory rows in Postgres via bun.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/waritk/agentwidget/agent/contract"
)

type Config struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"20"`
	PingTimeout  time.Duration `envconfig:"PING_TIMEOUT" split_words:"true" default:"5s"`
}

type Store struct {
	db  *bun.DB
	now func() time.Time
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// NewWithDB wraps an existing bun.DB. Used by tests and by callers that
// manage the connection themselves.
func NewWithDB(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureTenant creates the tenant if it does not exist and returns it.
func (s *Store) EnsureTenant(ctx context.Context, tenantID, name string) (*Tenant, error) {
	tenant := new(Tenant)
	err := s.db.NewSelect().Model(tenant).Where("id = ?", tenantID).Scan(ctx)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select tenant: %w", err)
	}

	if strings.TrimSpace(name) == "" {
		name = "Tenant " + tenantID
	}
	tenant = &Tenant{ID: tenantID, Name: name, CreatedAt: s.now().UTC()}
	if _, err := s.db.NewInsert().Model(tenant).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return tenant, nil
}

// GetAgent looks up an agent by tenant and name. Returns ErrUnknownAgent
// when no such agent exists.
func (s *Store) GetAgent(ctx context.Context, tenantID, agentName string) (*Agent, error) {
	agent := new(Agent)
	err := s.db.NewSelect().
		Model(agent).
		Where("tenant_id = ?", tenantID).
		Where("name = ?", agentName).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s (tenant %s)", contractx.ErrUnknownAgent, agentName, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("select agent: %w", err)
	}
	return agent, nil
}

// UpsertAgent creates or updates an agent keyed by (tenant_id, name),
// ensuring the tenant first. A fresh UUID is assigned on create.
func (s *Store) UpsertAgent(ctx context.Context, agent *Agent) (*Agent, error) {
	if agent == nil {
		return nil, errors.New("nil agent")
	}
	if _, err := s.EnsureTenant(ctx, agent.TenantID, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.MemoryMode == "" {
		agent.MemoryMode = MemoryModeThread
	}
	agent.CreatedAt = now
	agent.UpdatedAt = now

	_, err := s.db.NewInsert().
		Model(agent).
		On("CONFLICT (tenant_id, name) DO UPDATE").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("system_prompt = EXCLUDED.system_prompt").
		Set("identity_json = EXCLUDED.identity_json").
		Set("mission_json = EXCLUDED.mission_json").
		Set("memory_mode = EXCLUDED.memory_mode").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("upsert agent: %w", err)
	}

	return s.GetAgent(ctx, agent.TenantID, agent.Name)
}

// UpsertLead creates or updates a lead, matching an existing lead by email
// within the tenant when one is provided.
func (s *Store) UpsertLead(ctx context.Context, lead *Lead) (*Lead, error) {
	if lead == nil {
		return nil, errors.New("nil lead")
	}
	if _, err := s.EnsureTenant(ctx, lead.TenantID, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()

	if lead.Email != "" {
		existing := new(Lead)
		err := s.db.NewSelect().
			Model(existing).
			Where("tenant_id = ?", lead.TenantID).
			Where("email = ?", lead.Email).
			Scan(ctx)
		if err == nil {
			existing.FirstName = lead.FirstName
			existing.LastName = lead.LastName
			existing.Phone = lead.Phone
			existing.Notes = lead.Notes
			existing.UpdatedAt = now
			_, err = s.db.NewUpdate().
				Model(existing).
				WherePK().
				Column("first_name", "last_name", "phone", "notes", "updated_at").
				Exec(ctx)
			if err != nil {
				return nil, fmt.Errorf("update lead: %w", err)
			}
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("select lead: %w", err)
		}
	}

	lead.ID = uuid.NewString()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	if _, err := s.db.NewInsert().Model(lead).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}
	return lead, nil
}

// UpdateLeadCRMRef records the external CRM contact id on a lead.
func (s *Store) UpdateLeadCRMRef(ctx context.Context, leadID, crmContactID string) error {
	_, err := s.db.NewUpdate().
		Model((*Lead)(nil)).
		Set("crm_contact_id = ?", crmContactID).
		Where("id = ?", leadID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update lead crm ref: %w", err)
	}
	return nil
}

// LeadsByTenant returns all leads for a tenant, newest first.
func (s *Store) LeadsByTenant(ctx context.Context, tenantID string) ([]Lead, error) {
	var leads []Lead
	err := s.db.NewSelect().
		Model(&leads).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select leads: %w", err)
	}
	return leads, nil
}
