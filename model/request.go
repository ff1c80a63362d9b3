package model

import "time"

// Purpose is the intended consumer of a MemoryPacket; it controls the
// insight injection policy (§4.5).
type Purpose string

const (
	PurposePlanner   Purpose = "planner"
	PurposeTool      Purpose = "tool"
	PurposeResponder Purpose = "responder"
)

// Cues are explicit lookup hints supplied by the caller.
type Cues struct {
	Tags      []string   `json:"tags,omitempty"`
	Entities  []string   `json:"entities,omitempty"`
	Keywords  []string   `json:"keywords,omitempty"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
}

// RecallPolicy is the recognized policy surface of §6.2. Every field has a
// documented default; a nil BuildRequest.Policy resolves to DefaultPolicy(),
// while a supplied RecallPolicy is used as given, with no per-field
// defaulting of its zero-valued fields.
type RecallPolicy struct {
	MaxFacts                  int
	MaxEpisodes               int
	MaxProceduresPerTaskType  int
	MaxInsights               int
	MaxTotalCandidates        int
	EpisodeTimeWindowDays     int
	RecencyTauDays            float64
	ConfidenceFloor           float64
	ActiveFactsCeiling        int
	AllowInsightInResponder   bool
	DeadlineMS                int
	IncludeConversationWindow bool
	ConversationWindowSize    int
	PolicyID                  string
}

// DefaultPolicy returns the §6.2 documented defaults.
func DefaultPolicy() RecallPolicy {
	return RecallPolicy{
		MaxFacts:                  30,
		MaxEpisodes:               20,
		MaxProceduresPerTaskType:  5,
		MaxInsights:               10,
		MaxTotalCandidates:        100,
		EpisodeTimeWindowDays:     30,
		RecencyTauDays:            14,
		ConfidenceFloor:           0.2,
		ActiveFactsCeiling:        0, // 0 = unset, no ceiling warning emitted
		AllowInsightInResponder:   false,
		DeadlineMS:                150,
		IncludeConversationWindow: false,
		ConversationWindowSize:    5,
		PolicyID:                  "default",
	}
}

// Budget is the token budget the assembled packet must respect (§4.4).
type Budget struct {
	MaxTokens  uint32            `json:"max_tokens"`
	PerSection map[string]uint32 `json:"per_section,omitempty"`
}

// DefaultBudget mirrors the reference implementation's default of 2048
// max tokens with no per-section overrides.
func DefaultBudget() Budget {
	return Budget{MaxTokens: 2048, PerSection: map[string]uint32{}}
}

// BuildRequest is the composer's sole input (§3, §4).
type BuildRequest struct {
	Scope    Scope
	Purpose  Purpose
	TaskType string
	Cues     *Cues
	Policy   *RecallPolicy
	Budget   *Budget
	Now      time.Time // injected clock for deterministic tests (§9)
}

// ResolvedPolicy returns req.Policy if set, else DefaultPolicy().
func (r BuildRequest) ResolvedPolicy() RecallPolicy {
	if r.Policy != nil {
		return *r.Policy
	}
	return DefaultPolicy()
}

// ResolvedBudget returns req.Budget if set, else DefaultBudget().
func (r BuildRequest) ResolvedBudget() Budget {
	if r.Budget != nil {
		return *r.Budget
	}
	return DefaultBudget()
}

// ResolvedNow returns req.Now if set, else the real current time.
func (r BuildRequest) ResolvedNow() time.Time {
	if r.Now.IsZero() {
		return time.Now().UTC()
	}
	return r.Now
}
