// Package model defines the value shapes for Engram's cognitive-state layer:
// scope, memory entities, build requests, and the memory packet they compose
// into. Types here are immutable value shapes; mutation happens through the
// storage package's capability interface, never on these structs directly.
package model

// Scope is the five-tuple isolation key. All reads and writes are scoped;
// cross-scope access is forbidden by every storage backend.
type Scope struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
}

// LTMKey narrows a Scope to the coarser key that long-term entities (facts,
// episodes, procedures) are stored under: tenant/user/agent, dropping
// session and run. WorkingState and STM summaries use the full Scope.
type LTMKey struct {
	TenantID string
	UserID   string
	AgentID  string
}

// LTMKey projects a Scope down to its long-term-memory key.
func (s Scope) LTMKey() LTMKey {
	return LTMKey{TenantID: s.TenantID, UserID: s.UserID, AgentID: s.AgentID}
}

// SessionKey narrows a Scope to the key STM summaries are stored under:
// tenant/user/agent/session, dropping run.
type SessionKey struct {
	TenantID  string
	UserID    string
	AgentID   string
	SessionID string
}

// SessionKey projects a Scope down to its session-scoped key.
func (s Scope) SessionKey() SessionKey {
	return SessionKey{TenantID: s.TenantID, UserID: s.UserID, AgentID: s.AgentID, SessionID: s.SessionID}
}

func defaultTenantID() string {
	return "default"
}

// Normalize fills in the default tenant when the caller left it blank,
// mirroring the original data model's serde default for tenant_id.
func (s Scope) Normalize() Scope {
	if s.TenantID == "" {
		s.TenantID = defaultTenantID()
	}
	return s
}
