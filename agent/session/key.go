package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnknownSession    = errors.New("unknown session")
)

// Delimiter joins the three key components. Identifiers containing it are
// rejected by Resolve so two distinct triples can never serialize to the
// same key.
const Delimiter = ":"

// Key scopes one conversation: history lookups and generation calls for a
// Key never observe another Key's state.
type Key struct {
	TenantID  string
	AgentID   string
	SessionID string
}

// Resolve validates the three identifiers and builds a Key. It is pure: the
// same inputs always produce the same Key, and the only failure mode is
// ErrInvalidIdentifier.
func Resolve(tenantID, agentID, sessionID string) (Key, error) {
	if err := checkIdentifier("tenant_id", tenantID); err != nil {
		return Key{}, err
	}
	if err := checkIdentifier("agent_id", agentID); err != nil {
		return Key{}, err
	}
	if err := checkIdentifier("session_id", sessionID); err != nil {
		return Key{}, err
	}
	return Key{TenantID: tenantID, AgentID: agentID, SessionID: sessionID}, nil
}

func (k Key) String() string {
	return k.TenantID + Delimiter + k.AgentID + Delimiter + k.SessionID
}

// IsZero reports whether the key was never resolved.
func (k Key) IsZero() bool {
	return k.TenantID == "" && k.AgentID == "" && k.SessionID == ""
}

func checkIdentifier(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidIdentifier, field)
	}
	if strings.Contains(value, Delimiter) {
		return fmt.Errorf("%w: %s contains reserved delimiter %q", ErrInvalidIdentifier, field, Delimiter)
	}
	return nil
}
