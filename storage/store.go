// Package storage defines the capability interface the composer relies on
// (spec §4.1) and the sentinel errors its backends return; the filter and
// patch value types that cross it are declared in package model.
// Every backend under storage/{sqlite,postgres,mysql} satisfies Store with
// identical ordering and limit semantics; composer code never type-switches
// on the concrete backend.
package storage

import (
	"context"

	"github.com/oceanbase/engram/model"
)

// Store is the capability set exposed to the composer. All operations are
// scoped; a backend that returns rows outside the requested scope is a bug.
//
// Filters and Limit MUST be enforced by the backend (the pushdown
// requirement, §4.1) — callers may apply further truncation but must never
// rely on this interface returning unbounded result sets to sort in memory.
type Store interface {
	// AppendEvent inserts an immutable audit record. Returns ErrDuplicateEvent
	// (Storage{kind:Duplicate}) on event_id collision.
	AppendEvent(ctx context.Context, event model.Event) error

	// ListEvents returns events matching filter, ordered by
	// (timestamp desc, event_id asc).
	ListEvents(ctx context.Context, scope model.Scope, filter model.EventFilter) ([]model.Event, error)

	// GetWorkingState returns nil, nil when no row exists for scope.
	GetWorkingState(ctx context.Context, scope model.Scope) (*model.WorkingState, error)

	// PatchWorkingState applies patch with optimistic concurrency on
	// expectedVersion. Returns ErrVersionConflict when expectedVersion does
	// not match the current stored version (0 for a not-yet-created row).
	PatchWorkingState(ctx context.Context, scope model.Scope, patch model.WorkingStatePatch, expectedVersion uint32) (model.WorkingState, error)

	// GetSTMSummary returns nil, nil when no row exists for scope's session.
	GetSTMSummary(ctx context.Context, scope model.Scope) (*model.STMSummary, error)

	// UpdateSTMSummary replaces the STM summary row for scope's session.
	UpdateSTMSummary(ctx context.Context, scope model.Scope, summary model.STMSummary) error

	// UpsertFact atomically demotes the prior active row for
	// (fact.ScopeLevel, fact.FactKey) to FactDeprecated and inserts/updates
	// the given row, within scope's LTM key.
	UpsertFact(ctx context.Context, scope model.Scope, fact model.Fact) error

	// ListFacts returns facts matching filter, ordered by
	// (confidence desc, fact_id asc), excluding rows outside their validity
	// window relative to filter.Now.
	ListFacts(ctx context.Context, scope model.Scope, filter model.FactFilter) ([]model.Fact, error)

	// AppendEpisode inserts a new episode row.
	AppendEpisode(ctx context.Context, scope model.Scope, episode model.Episode) error

	// ListEpisodes returns episodes matching filter, ordered by
	// (time_range.start desc, episode_id asc).
	ListEpisodes(ctx context.Context, scope model.Scope, filter model.EpisodeFilter) ([]model.Episode, error)

	// UpsertProcedure inserts or replaces a procedure row by procedure_id.
	UpsertProcedure(ctx context.Context, scope model.Scope, procedure model.Procedure) error

	// ListProcedures returns procedures matching filter, ordered by
	// (priority desc, usage_count desc, procedure_id asc).
	ListProcedures(ctx context.Context, scope model.Scope, filter model.ProcedureFilter) ([]model.Procedure, error)

	// UpsertInsight inserts or replaces an insight row by id.
	UpsertInsight(ctx context.Context, scope model.Scope, insight model.Insight) error

	// ListInsights returns insights matching filter, excluding rows where
	// expires_at <= filter.Now (an empty or run_end expires_at is never
	// excluded), ordered by (confidence desc, id asc).
	ListInsights(ctx context.Context, scope model.Scope, filter model.InsightFilter) ([]model.Insight, error)

	// RecordBuild persists an emitted packet's explain + budget report for
	// replay (§6.4 context_builds), keyed by buildID.
	RecordBuild(ctx context.Context, scope model.Scope, buildID string, explain model.Explain, report model.BudgetReport) error

	// Close releases backend resources.
	Close() error
}
