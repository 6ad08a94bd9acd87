package contract

import (
	sessionx "github.com/waritk/agentwidget/agent/session"
)

// MemorySnippet is one piece of long-term context returned by a
// MemoryGateway. It is read-only to the orchestrator; the gateway owns any
// persistence.
type MemorySnippet struct {
	TenantID string `json:"tenant_id"`
	AgentID  string `json:"agent_id"`
	Query    string `json:"query"`
	Content  string `json:"content"`
}

// AgentContext is the per-request bundle handed to one orchestrator
// invocation. It is built by the request handler and never shared across
// concurrent requests.
type AgentContext struct {
	Key           sessionx.Key
	SystemPrompt  string
	PersistMemory bool
	Input         string
}

// TurnResult is the output of one completed turn.
type TurnResult struct {
	Reply       string `json:"reply"`
	NotesForCRM string `json:"notes_for_crm"`
	TenantID    string `json:"tenant_id"`
	AgentID     string `json:"agent_id"`
	SessionID   string `json:"session_id"`
}
