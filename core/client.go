package core

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/oceanbase/engram/composer"
	"github.com/oceanbase/engram/model"
	"github.com/oceanbase/engram/storage"
	"github.com/oceanbase/engram/storage/mysql"
	"github.com/oceanbase/engram/storage/postgres"
	"github.com/oceanbase/engram/storage/sqlite"
)

// Client is the top-level Engram handle: a storage.Store bound to a
// Composer, plus the ID generator write paths use when the caller does not
// supply an entity ID.
type Client struct {
	config   *Config
	store    storage.Store
	composer *composer.Composer

	// idNode generates event_id/fact_id/episode_id/procedure_id/insight_id
	// values when the caller leaves them blank, mirroring the teacher's
	// snowflakeNode field.
	idNode *snowflake.Node
}

// NewClient constructs a Client from cfg, dispatching to the configured
// storage backend and wiring a Composer bound to it.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := initStorage(cfg.Storage)
	if err != nil {
		return nil, NewEngramError("NewClient", KindStorageConnection, err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewEngramError("NewClient", KindStorageConnection, err)
	}

	options := applyClientOptions(opts)
	comp := composer.New(store, composer.WithWorkerPoolSize(options.workerPoolSize))

	return &Client{
		config:   cfg,
		store:    store,
		composer: comp,
		idNode:   node,
	}, nil
}

// initStorage dispatches to the storage backend named by cfg.Provider,
// following the teacher's provider-switch idiom in initStorage/initLLM.
func initStorage(cfg StorageConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqlite.NewClient(&sqlite.Config{DBPath: cfg.Path})
	case "postgres":
		return postgres.NewClient(&postgres.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		})
	case "mysql":
		return mysql.NewClient(&mysql.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
		})
	default:
		return nil, ErrInvalidConfig
	}
}

// newID generates a snowflake ID, used by write-path methods when the
// caller leaves an entity ID blank.
func (c *Client) newID() string {
	return c.idNode.Generate().String()
}

// AppendEvent appends an immutable audit record. If event.EventID is empty,
// one is generated.
func (c *Client) AppendEvent(ctx context.Context, event model.Event) (model.Event, error) {
	if event.EventID == "" {
		event.EventID = c.newID()
	}
	event.Scope = event.Scope.Normalize()
	if err := c.store.AppendEvent(ctx, event); err != nil {
		return model.Event{}, NewEngramError("AppendEvent", storageErrKind(err), err)
	}
	return event, nil
}

// ListEvents returns events matching filter.
func (c *Client) ListEvents(ctx context.Context, scope model.Scope, filter model.EventFilter) ([]model.Event, error) {
	events, err := c.store.ListEvents(ctx, scope.Normalize(), filter)
	if err != nil {
		return nil, NewEngramError("ListEvents", storageErrKind(err), err)
	}
	return events, nil
}

// GetWorkingState returns the working state for scope, or the run-start
// default if none exists yet.
func (c *Client) GetWorkingState(ctx context.Context, scope model.Scope) (model.WorkingState, error) {
	ws, err := c.store.GetWorkingState(ctx, scope.Normalize())
	if err != nil {
		return model.WorkingState{}, NewEngramError("GetWorkingState", storageErrKind(err), err)
	}
	if ws == nil {
		return model.NewWorkingState(), nil
	}
	return *ws, nil
}

// PatchWorkingState applies patch with optimistic concurrency on
// expectedVersion.
func (c *Client) PatchWorkingState(ctx context.Context, scope model.Scope, patch model.WorkingStatePatch, expectedVersion uint32) (model.WorkingState, error) {
	ws, err := c.store.PatchWorkingState(ctx, scope.Normalize(), patch, expectedVersion)
	if err != nil {
		return model.WorkingState{}, NewEngramError("PatchWorkingState", storageErrKind(err), err)
	}
	return ws, nil
}

// GetSTMSummary returns the STM summary for scope's session, or the empty
// summary if none exists yet.
func (c *Client) GetSTMSummary(ctx context.Context, scope model.Scope) (model.STMSummary, error) {
	stm, err := c.store.GetSTMSummary(ctx, scope.Normalize())
	if err != nil {
		return model.STMSummary{}, NewEngramError("GetSTMSummary", storageErrKind(err), err)
	}
	if stm == nil {
		return model.NewSTMSummary(), nil
	}
	return *stm, nil
}

// UpdateSTMSummary replaces the STM summary row for scope's session.
func (c *Client) UpdateSTMSummary(ctx context.Context, scope model.Scope, summary model.STMSummary) error {
	if err := c.store.UpdateSTMSummary(ctx, scope.Normalize(), summary); err != nil {
		return NewEngramError("UpdateSTMSummary", storageErrKind(err), err)
	}
	return nil
}

// UpsertFact writes a fact, generating FactID if blank. The backend
// atomically demotes any prior active row sharing (ScopeLevel, FactKey).
func (c *Client) UpsertFact(ctx context.Context, scope model.Scope, fact model.Fact) (model.Fact, error) {
	if fact.FactID == "" {
		fact.FactID = c.newID()
	}
	if err := c.store.UpsertFact(ctx, scope.Normalize(), fact); err != nil {
		return model.Fact{}, NewEngramError("UpsertFact", storageErrKind(err), err)
	}
	return fact, nil
}

// ListFacts returns facts matching filter.
func (c *Client) ListFacts(ctx context.Context, scope model.Scope, filter model.FactFilter) ([]model.Fact, error) {
	facts, err := c.store.ListFacts(ctx, scope.Normalize(), filter)
	if err != nil {
		return nil, NewEngramError("ListFacts", storageErrKind(err), err)
	}
	return facts, nil
}

// AppendEpisode writes a new episode row, generating EpisodeID if blank.
func (c *Client) AppendEpisode(ctx context.Context, scope model.Scope, episode model.Episode) (model.Episode, error) {
	if episode.EpisodeID == "" {
		episode.EpisodeID = c.newID()
	}
	if err := c.store.AppendEpisode(ctx, scope.Normalize(), episode); err != nil {
		return model.Episode{}, NewEngramError("AppendEpisode", storageErrKind(err), err)
	}
	return episode, nil
}

// ListEpisodes returns episodes matching filter.
func (c *Client) ListEpisodes(ctx context.Context, scope model.Scope, filter model.EpisodeFilter) ([]model.Episode, error) {
	episodes, err := c.store.ListEpisodes(ctx, scope.Normalize(), filter)
	if err != nil {
		return nil, NewEngramError("ListEpisodes", storageErrKind(err), err)
	}
	return episodes, nil
}

// UpsertProcedure writes a procedure row, generating ProcedureID if blank.
func (c *Client) UpsertProcedure(ctx context.Context, scope model.Scope, procedure model.Procedure) (model.Procedure, error) {
	if procedure.ProcedureID == "" {
		procedure.ProcedureID = c.newID()
	}
	if err := c.store.UpsertProcedure(ctx, scope.Normalize(), procedure); err != nil {
		return model.Procedure{}, NewEngramError("UpsertProcedure", storageErrKind(err), err)
	}
	return procedure, nil
}

// ListProcedures returns procedures matching filter.
func (c *Client) ListProcedures(ctx context.Context, scope model.Scope, filter model.ProcedureFilter) ([]model.Procedure, error) {
	procedures, err := c.store.ListProcedures(ctx, scope.Normalize(), filter)
	if err != nil {
		return nil, NewEngramError("ListProcedures", storageErrKind(err), err)
	}
	return procedures, nil
}

// UpsertInsight writes an insight row, generating ID if blank.
func (c *Client) UpsertInsight(ctx context.Context, scope model.Scope, insight model.Insight) (model.Insight, error) {
	if insight.ID == "" {
		insight.ID = c.newID()
	}
	if err := c.store.UpsertInsight(ctx, scope.Normalize(), insight); err != nil {
		return model.Insight{}, NewEngramError("UpsertInsight", storageErrKind(err), err)
	}
	return insight, nil
}

// ListInsights returns insights matching filter.
func (c *Client) ListInsights(ctx context.Context, scope model.Scope, filter model.InsightFilter) ([]model.Insight, error) {
	insights, err := c.store.ListInsights(ctx, scope.Normalize(), filter)
	if err != nil {
		return nil, NewEngramError("ListInsights", storageErrKind(err), err)
	}
	return insights, nil
}

// BuildMemoryPacket runs the composer pipeline for req (spec §4). This is
// the sole read surface upstream prompting code is expected to call.
func (c *Client) BuildMemoryPacket(ctx context.Context, req model.BuildRequest) (model.MemoryPacket, error) {
	packet, err := c.composer.Build(ctx, req)
	if err != nil {
		kind := KindStorageQuery
		var deadlineErr interface{ IsDeadline() bool }
		if errors.As(err, &deadlineErr) && deadlineErr.IsDeadline() {
			kind = KindBuildDeadline
		}
		return model.MemoryPacket{}, NewEngramError("BuildMemoryPacket", kind, err)
	}
	return packet, nil
}

// Store exposes the underlying storage.Store, for callers (e.g.
// consolidation.Runner) that need direct write access alongside the
// composer's read path.
func (c *Client) Store() storage.Store {
	return c.store
}

// Close releases the underlying storage backend's resources.
func (c *Client) Close() error {
	return c.store.Close()
}

// storageErrKind maps a sentinel storage error to its taxonomy Kind.
func storageErrKind(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, storage.ErrDuplicateEvent):
		return KindStorageDuplicate
	case errors.Is(err, storage.ErrVersionConflict):
		return KindStorageVersionConflict
	case errors.Is(err, storage.ErrNotFound):
		return KindStorageNotFound
	default:
		return KindStorageQuery
	}
}
