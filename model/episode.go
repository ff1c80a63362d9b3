package model

import "time"

// CompressionLevel is the fidelity tier of an Episode.
type CompressionLevel string

const (
	CompressionRaw          CompressionLevel = "raw"
	CompressionPhaseSummary CompressionLevel = "phase_summary"
	CompressionMilestone    CompressionLevel = "milestone"
	CompressionTheme        CompressionLevel = "theme"
)

// TimeRange is a half-open interval; End nil means "ongoing".
type TimeRange struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Episode is a compressed narrative unit spanning TimeRange. RecencyScore is
// computed at load time (§4.2) and is never persisted.
type Episode struct {
	EpisodeID        string           `json:"episode_id"`
	TimeRange        TimeRange        `json:"time_range"`
	Summary          string           `json:"summary"`
	Highlights       []string         `json:"highlights"`
	Tags             []string         `json:"tags"`
	Entities         []string         `json:"entities"`
	Sources          []string         `json:"sources"`
	CompressionLevel CompressionLevel `json:"compression_level"`
	RecencyScore     *float64         `json:"recency_score,omitempty"`
}

// EpisodeFilter constrains list_episodes (§4.1/§4.2).
type EpisodeFilter struct {
	Since            *time.Time
	Until            *time.Time
	TagsAny          []string
	EntitiesAny      []string
	CompressionIn    []CompressionLevel
	Limit            int
}

// Procedure is a task-type-scoped, priority-ordered runbook entry.
type Procedure struct {
	ProcedureID   string                 `json:"procedure_id"`
	TaskType      string                 `json:"task_type"`
	Content       interface{}            `json:"content"`
	Priority      int                    `json:"priority"`
	UsageCount    int                    `json:"usage_count"`
	Sources       []string               `json:"sources"`
	Applicability map[string]interface{} `json:"applicability"`
}

// ProcedureFilter constrains list_procedures (§4.1/§4.2).
type ProcedureFilter struct {
	TaskType string
	Limit    int
}
