package store

import (
	"time"

	"github.com/uptrace/bun"
)

// MemoryMode controls whether an agent's turns feed long-term memory.
const (
	MemoryModeThread     = "thread"
	MemoryModePersistent = "persistent"
)

type Tenant struct {
	bun.BaseModel `bun:"table:tenants"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type Agent struct {
	bun.BaseModel `bun:"table:agents"`

	ID           string         `bun:"id,pk" json:"id"`
	TenantID     string         `bun:"tenant_id,notnull" json:"tenant_id"`
	Name         string         `bun:"name,notnull" json:"name"`
	AvatarURL    string         `bun:"avatar_url" json:"avatar_url,omitempty"`
	SystemPrompt string         `bun:"system_prompt,notnull" json:"system_prompt"`
	Identity     map[string]any `bun:"identity_json,type:jsonb" json:"identity"`
	Mission      map[string]any `bun:"mission_json,type:jsonb" json:"mission"`
	MemoryMode   string         `bun:"memory_mode,notnull,default:'thread'" json:"memory_mode"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// PersistsMemory reports whether turns for this agent go through the
// long-term memory gateway.
func (a *Agent) PersistsMemory() bool {
	return a != nil && a.MemoryMode == MemoryModePersistent
}

type Lead struct {
	bun.BaseModel `bun:"table:leads"`

	ID           string    `bun:"id,pk" json:"id"`
	TenantID     string    `bun:"tenant_id,notnull" json:"tenant_id"`
	FirstName    string    `bun:"first_name" json:"first_name,omitempty"`
	LastName     string    `bun:"last_name" json:"last_name,omitempty"`
	Email        string    `bun:"email" json:"email,omitempty"`
	Phone        string    `bun:"phone" json:"phone,omitempty"`
	Notes        string    `bun:"notes" json:"notes,omitempty"`
	CRMContactID string    `bun:"crm_contact_id" json:"crm_contact_id,omitempty"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// MemoryEntry is one stored long-term memory chunk for a tenant+agent.
type MemoryEntry struct {
	bun.BaseModel `bun:"table:agent_memory"`

	ID        string            `bun:"id,pk" json:"id"`
	TenantID  string            `bun:"tenant_id,notnull" json:"tenant_id"`
	AgentID   string            `bun:"agent_id,notnull" json:"agent_id"`
	Content   string            `bun:"content,notnull" json:"content"`
	Metadata  map[string]string `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
