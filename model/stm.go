package model

import "time"

// Role identifies the speaker of a KeyQuote or ConversationTurn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// KeyQuote is a short verbatim excerpt worth surfacing across a session.
type KeyQuote struct {
	EvidenceID string     `json:"evidence_id"`
	Quote      string     `json:"quote"`
	Role       Role       `json:"role"`
	Ts         *time.Time `json:"ts,omitempty"`
}

// ConversationTurn is one opt-in entry in the conversation window (§9 open
// question c: never populated unless the caller asks for it).
type ConversationTurn struct {
	Role       Role    `json:"role"`
	Content    string  `json:"content"`
	EvidenceID *string `json:"evidence_id,omitempty"`
}

// STMSummary is the single per-session short-term-memory row.
type STMSummary struct {
	RollingSummary string     `json:"rolling_summary"`
	KeyQuotes      []KeyQuote `json:"key_quotes"`
}

// NewSTMSummary returns the empty summary a session starts with.
func NewSTMSummary() STMSummary {
	return STMSummary{RollingSummary: "", KeyQuotes: []KeyQuote{}}
}
