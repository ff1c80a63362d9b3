package model

import "time"

// InsightType classifies an Insight.
type InsightType string

const (
	InsightHypothesis InsightType = "hypothesis"
	InsightStrategy   InsightType = "strategy"
	InsightPattern    InsightType = "pattern"
)

// InsightTrigger records what produced an Insight.
type InsightTrigger string

const (
	TriggerConflict  InsightTrigger = "conflict"
	TriggerFailure   InsightTrigger = "failure"
	TriggerSynthesis InsightTrigger = "synthesis"
	TriggerAnalogy   InsightTrigger = "analogy"
)

// ValidationState is the lifecycle marker for an Insight. An insight with
// ValidationState != Validated is ineligible for purpose=responder.
type ValidationState string

const (
	ValidationUnvalidated ValidationState = "unvalidated"
	ValidationTesting     ValidationState = "testing"
	ValidationValidated   ValidationState = "validated"
	ValidationRejected    ValidationState = "rejected"
)

// RunEndSentinel is the ExpiresAt value meaning "expire when the run ends"
// rather than at a fixed timestamp.
const RunEndSentinel = "run_end"

// Insight is an ephemeral hypothesis, strategy, or pattern.
type Insight struct {
	ID              string          `json:"id"`
	Type            InsightType     `json:"type"`
	Statement       string          `json:"statement"`
	Trigger         InsightTrigger  `json:"trigger"`
	Confidence      float64         `json:"confidence"`
	ValidationState ValidationState `json:"validation_state"`
	ExpiresAt       string          `json:"expires_at"`
	Sources         []string        `json:"sources"`
}

// ExpiresAtTime parses ExpiresAt as an RFC3339 timestamp. It returns
// (time.Time{}, false) for the "run_end" sentinel, which the caller must
// resolve against the run's actual end.
func (i Insight) ExpiresAtTime() (time.Time, bool) {
	if i.ExpiresAt == "" || i.ExpiresAt == RunEndSentinel {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, i.ExpiresAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// InsightFilter constrains list_insights (§4.1/§4.2). Now is used to exclude
// rows where ExpiresAt <= now; rows whose ExpiresAt is empty or the run_end
// sentinel are never excluded by it.
type InsightFilter struct {
	Now               time.Time
	ValidationStateIn []ValidationState
	Limit             int
}

// UsagePolicy governs whether an insight list may be surfaced in a
// purpose=responder packet.
type UsagePolicy struct {
	AllowInResponder bool `json:"allow_in_responder"`
}
