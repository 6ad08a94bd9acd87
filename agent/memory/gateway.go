// Package memory implements the long-term memory gateway. Long-term memory
// is always optional context for a turn: retrieval degrades to empty, and
// storing is fire-and-forget.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	contractx "github.com/waritk/agentwidget/agent/contract"
	storex "github.com/waritk/agentwidget/store"
)

// NoopGateway is the default gateway: no backing store, retrieval always
// returns empty, stores are dropped.
type NoopGateway struct{}

func (NoopGateway) Retrieve(context.Context, string, string, string, int) ([]contractx.MemorySnippet, error) {
	return nil, nil
}

func (NoopGateway) Store(context.Context, string, string, string, map[string]string) error {
	return nil
}

// PostgresGateway persists memory entries in the agent_memory table and
// retrieves the most recent entries for a tenant+agent. Ranking is recency,
// not semantic relevance; it fills the gateway contract without a vector
// index.
type PostgresGateway struct {
	db  bun.IDB
	now func() time.Time
}

func NewPostgresGateway(db bun.IDB) *PostgresGateway {
	return &PostgresGateway{db: db, now: time.Now}
}

func (g *PostgresGateway) Retrieve(ctx context.Context, tenantID, agentID, query string, limit int) ([]contractx.MemorySnippet, error) {
	if limit <= 0 {
		return nil, nil
	}

	var entries []storex.MemoryEntry
	err := g.db.NewSelect().
		Model(&entries).
		Where("tenant_id = ?", tenantID).
		Where("agent_id = ?", agentID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrRetrieval, err)
	}

	snippets := make([]contractx.MemorySnippet, 0, len(entries))
	for _, e := range entries {
		snippets = append(snippets, contractx.MemorySnippet{
			TenantID: tenantID,
			AgentID:  agentID,
			Query:    query,
			Content:  e.Content,
		})
	}
	return snippets, nil
}

func (g *PostgresGateway) Store(ctx context.Context, tenantID, agentID, content string, metadata map[string]string) error {
	entry := &storex.MemoryEntry{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AgentID:   agentID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: g.now().UTC(),
	}
	if _, err := g.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("store memory entry: %w", err)
	}
	return nil
}
