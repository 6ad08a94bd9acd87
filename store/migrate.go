package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Migrate creates the schema if it does not exist. Idempotent; runs at
// startup.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*Tenant)(nil),
		(*Agent)(nil),
		(*Lead)(nil),
		(*MemoryEntry)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		s.db.NewCreateIndex().
			Model((*Agent)(nil)).
			Index("agents_tenant_name_uq").
			Unique().
			Column("tenant_id", "name").
			IfNotExists(),
		s.db.NewCreateIndex().
			Model((*Lead)(nil)).
			Index("leads_tenant_idx").
			Column("tenant_id").
			IfNotExists(),
		s.db.NewCreateIndex().
			Model((*MemoryEntry)(nil)).
			Index("agent_memory_tenant_agent_idx").
			Column("tenant_id", "agent_id").
			IfNotExists(),
	}
	for _, idx := range indexes {
		if _, err := idx.Exec(ctx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
