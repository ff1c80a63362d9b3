package model

import "time"

// EventKind classifies the payload carried by an Event.
type EventKind string

const (
	EventMessage    EventKind = "message"
	EventToolResult EventKind = "tool_result"
	EventStatePatch EventKind = "state_patch"
	EventSystem     EventKind = "system"
)

// Event is an append-only audit record and the evidence substrate every
// other entity's `sources`/`evidence_id` fields point back to.
type Event struct {
	EventID  string                 `json:"event_id"`
	Scope    Scope                  `json:"scope"`
	Ts       time.Time              `json:"ts"`
	Kind     EventKind              `json:"kind"`
	Payload  map[string]interface{} `json:"payload"`
	Tags     []string               `json:"tags"`
	Entities []string               `json:"entities"`
}

// EvidenceRef is a lightweight pointer to an Event, embedded in WorkingState
// and short-term memory sections.
type EvidenceRef struct {
	EvidenceID string `json:"evidence_id"`
	Summary    string `json:"summary,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// EventFilter constrains list_events. Since and Until are inclusive when set;
// nil means unbounded on that side. Limit is enforced by the backend.
type EventFilter struct {
	Since   *time.Time
	Until   *time.Time
	KindIn  []EventKind
	Limit   int
}
