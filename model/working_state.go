package model

// WorkingState holds the single mutable working-memory row for a run.
// It is mutated in place via optimistic concurrency on StateVersion.
type WorkingState struct {
	Goal         string                 `json:"goal"`
	Plan         []string               `json:"plan"`
	Slots        map[string]interface{} `json:"slots"`
	Constraints  map[string]interface{} `json:"constraints"`
	ToolEvidence []EvidenceRef          `json:"tool_evidence"`
	Decisions    []string               `json:"decisions"`
	Risks        []string               `json:"risks"`
	StateVersion uint32                 `json:"state_version"`
}

// NewWorkingState returns the zero-value WorkingState created at run start:
// state_version 0, all collections non-nil so JSON serializes them as `[]`
// rather than `null`.
func NewWorkingState() WorkingState {
	return WorkingState{
		Plan:         []string{},
		Slots:        map[string]interface{}{},
		Constraints:  map[string]interface{}{},
		ToolEvidence: []EvidenceRef{},
		Decisions:    []string{},
		Risks:        []string{},
		StateVersion: 0,
	}
}

// WorkingStatePatch carries only the fields the caller wants to change.
// A nil field leaves the corresponding WorkingState field untouched.
type WorkingStatePatch struct {
	Goal         *string
	Plan         []string
	Slots        map[string]interface{}
	Constraints  map[string]interface{}
	ToolEvidence []EvidenceRef
	Decisions    []string
	Risks        []string
}

// Apply returns the WorkingState that results from applying p to current,
// bumping StateVersion by one when the patch sets any field, even to the
// value it already held. This is the
// single source of truth for patch semantics; every storage backend calls it
// so version-bump behavior is identical across backends.
func (p WorkingStatePatch) Apply(current WorkingState) WorkingState {
	next := current
	touched := false

	if p.Goal != nil {
		next.Goal = *p.Goal
		touched = true
	}
	if p.Plan != nil {
		next.Plan = p.Plan
		touched = true
	}
	if p.Slots != nil {
		next.Slots = p.Slots
		touched = true
	}
	if p.Constraints != nil {
		next.Constraints = p.Constraints
		touched = true
	}
	if p.ToolEvidence != nil {
		next.ToolEvidence = p.ToolEvidence
		touched = true
	}
	if p.Decisions != nil {
		next.Decisions = p.Decisions
		touched = true
	}
	if p.Risks != nil {
		next.Risks = p.Risks
		touched = true
	}

	if touched {
		next.StateVersion = current.StateVersion + 1
	}
	return next
}
