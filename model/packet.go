package model

import "time"

const SchemaVersion = "v1"

// Meta is the packet's header (§6.1).
type Meta struct {
	SchemaVersion string    `json:"schema_version"`
	Scope         Scope     `json:"scope"`
	GeneratedAt   time.Time `json:"generated_at"`
	Purpose       Purpose   `json:"purpose"`
	TaskType      string    `json:"task_type,omitempty"`
	Cues          *Cues     `json:"cues,omitempty"`
	Budget        Budget    `json:"budget"`
	PolicyID      string    `json:"policy_id,omitempty"`
}

// ShortTerm is the packet's short_term section (§6.1).
type ShortTerm struct {
	WorkingState        WorkingState        `json:"working_state"`
	RollingSummary      string              `json:"rolling_summary"`
	KeyQuotes           []KeyQuote          `json:"key_quotes"`
	ConversationWindow  []ConversationTurn  `json:"conversation_window,omitempty"`
	OpenLoops           []string            `json:"open_loops"`
	LastToolEvidence    []EvidenceRef       `json:"last_tool_evidence"`
}

// LongTerm is the packet's long_term section (§6.1). Preferences is a
// projection of Facts (Open Question decision 9), not separately persisted.
type LongTerm struct {
	Facts       []Fact      `json:"facts"`
	Preferences []Fact      `json:"preferences"`
	Procedures  []Procedure `json:"procedures"`
	Episodes    []Episode   `json:"episodes"`
}

// InsightSection is the packet's insight section (§6.1).
type InsightSection struct {
	UsagePolicy       UsagePolicy `json:"usage_policy"`
	Hypotheses        []Insight   `json:"hypotheses"`
	StrategySketches  []Insight   `json:"strategy_sketches"`
	Patterns          []Insight   `json:"patterns"`
}

// CitationType classifies the entity a Citation points back to.
type CitationType string

const (
	CitationMessage    CitationType = "message"
	CitationToolResult CitationType = "tool_result"
	CitationStatePatch CitationType = "state_patch"
)

// Citation is a de-duplicated pointer to underlying evidence (§4.5, §8
// property 8: citation closure).
type Citation struct {
	ID      string       `json:"id"`
	Type    CitationType `json:"type"`
	Ts      *time.Time   `json:"ts,omitempty"`
	Summary string       `json:"summary,omitempty"`
}

// Degradation records one action the Budget Controller took to respect a
// cap (§4.4, §GLOSSARY).
type Degradation struct {
	Section string `json:"section"`
	Action  string `json:"action"`
	Reason  string `json:"reason"`
}

// Omission records one item dropped or a section skipped, with a reason.
type Omission struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// BudgetReport is the packet's budget_report section (§6.1).
type BudgetReport struct {
	MaxTokens      uint32            `json:"max_tokens"`
	UsedTokensEst  uint32            `json:"used_tokens_est"`
	SectionUsage   map[string]uint32 `json:"section_usage"`
	Degradations   []Degradation     `json:"degradations"`
	Omissions      []Omission        `json:"omissions"`
}

// NewBudgetReport returns an empty report seeded from budget.
func NewBudgetReport(budget Budget) BudgetReport {
	return BudgetReport{
		MaxTokens:    budget.MaxTokens,
		SectionUsage: map[string]uint32{},
		Degradations: []Degradation{},
		Omissions:    []Omission{},
	}
}

// Conflict records an invariant-driven correction detected during assembly
// (e.g. a fact superseded by a later upsert), surfaced read-side per §7.
type Conflict struct {
	Type    string   `json:"type"`
	Detail  string   `json:"detail,omitempty"`
	FactIDs []string `json:"fact_ids,omitempty"`
}

// Determinism carries the parameters needed to replay a build deterministically
// (§4.5, §GLOSSARY).
type Determinism struct {
	PolicyID    string              `json:"policy_id"`
	SortKeys    map[string]string   `json:"sort_keys"`
	TimeWindow  map[string]int      `json:"time_window"`
	TopK        map[string]int      `json:"top_k"`
}

// Explain is the packet's explain section (§6.1).
type Explain struct {
	Selected    []string          `json:"selected"`
	Omitted     []Omission        `json:"omitted"`
	Filters     map[string]string `json:"filters"`
	Conflicts   []Conflict        `json:"conflicts"`
	Determinism Determinism       `json:"determinism"`
}

// NewExplain returns an empty explain trace.
func NewExplain() Explain {
	return Explain{
		Selected:  []string{},
		Omitted:   []Omission{},
		Filters:   map[string]string{},
		Conflicts: []Conflict{},
	}
}

// MemoryPacket is the composer's sole output contract (§6.1).
type MemoryPacket struct {
	Meta         Meta           `json:"meta"`
	ShortTerm    ShortTerm      `json:"short_term"`
	LongTerm     LongTerm       `json:"long_term"`
	Insight      InsightSection `json:"insight"`
	Citations    []Citation     `json:"citations"`
	BudgetReport BudgetReport   `json:"budget_report"`
	Explain      Explain        `json:"explain"`
}
