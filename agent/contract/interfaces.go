package contract

import (
	"context"

	sessionx "github.com/waritk/agentwidget/agent/session"
)

// Generator is the opaque generation capability: system prompt plus ordered
// history plus the new user input in, reply text out. Any upstream failure
// (timeout, quota, network, malformed response) is reported as an error
// wrapping ErrGeneration.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []sessionx.ConversationTurn, input string) (string, error)
}

// MemoryGateway retrieves and stores long-term, tenant/agent-scoped content.
// Retrieval is always optional context: implementations return an empty
// slice, not an error, when nothing is configured or nothing matches.
// Store is fire-and-forget from the caller's point of view.
type MemoryGateway interface {
	Retrieve(ctx context.Context, tenantID, agentID, query string, limit int) ([]MemorySnippet, error)
	Store(ctx context.Context, tenantID, agentID, content string, metadata map[string]string) error
}
