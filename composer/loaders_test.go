package composer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/engram/model"
	sqlitestore "github.com/oceanbase/engram/storage/sqlite"
)

func setupLoaderTest(t *testing.T) (*sqlitestore.Client, func()) {
	t.Helper()
	store, err := sqlitestore.NewClient(&sqlitestore.Config{DBPath: ":memory:"})
	require.NoError(t, err)
	return store, func() { _ = store.Close() }
}

func loaderTestScope() model.Scope {
	return model.Scope{TenantID: "default", UserID: "u1", AgentID: "a1", SessionID: "s1", RunID: "r1"}
}

func TestLoadWorkingState_DefaultsWhenAbsent(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	ws, err := loadWorkingState(context.Background(), store, loaderTestScope())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ws.StateVersion)
}

func TestLoadSTMSummary_DefaultsWhenAbsent(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	stm, err := loadSTMSummary(context.Background(), store, loaderTestScope())
	require.NoError(t, err)
	assert.Equal(t, "", stm.RollingSummary)
}

func TestLoadFacts_SortsByConfidenceDescThenIDAsc(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	scope := loaderTestScope()
	require.NoError(t, store.UpsertFact(context.Background(), scope, model.Fact{
		FactID: "b", FactKey: "k1", Status: model.FactActive, Confidence: 0.5, ScopeLevel: model.ScopeLevelUser,
	}))
	require.NoError(t, store.UpsertFact(context.Background(), scope, model.Fact{
		FactID: "a", FactKey: "k2", Status: model.FactActive, Confidence: 0.9, ScopeLevel: model.ScopeLevelUser,
	}))

	facts, err := loadFacts(context.Background(), store, scope, model.DefaultPolicy(), time.Now())
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "a", facts[0].FactID)
}

func TestLoadEpisodes_ExcludesOutsideAgeWindow(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	scope := loaderTestScope()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendEpisode(context.Background(), scope, model.Episode{
		EpisodeID: "recent", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -2)}, CompressionLevel: model.CompressionRaw,
	}))
	require.NoError(t, store.AppendEpisode(context.Background(), scope, model.Episode{
		EpisodeID: "ancient", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -200)}, CompressionLevel: model.CompressionTheme,
	}))

	policy := model.DefaultPolicy()
	req := model.BuildRequest{Scope: scope}
	episodes, err := loadEpisodes(context.Background(), store, scope, req, policy, now)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, ep := range episodes {
		ids[ep.EpisodeID] = true
	}
	assert.True(t, ids["recent"])
	assert.False(t, ids["ancient"])
}

func TestLoadEpisodes_IncludesMilestoneRangeUnderDefaultWindow(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	scope := loaderTestScope()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendEpisode(context.Background(), scope, model.Episode{
		EpisodeID: "milestone-60d", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -60)}, CompressionLevel: model.CompressionMilestone,
	}))
	require.NoError(t, store.AppendEpisode(context.Background(), scope, model.Episode{
		EpisodeID: "raw-60d", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -60)}, CompressionLevel: model.CompressionRaw,
	}))

	// DefaultPolicy's EpisodeTimeWindowDays is 30 — the loader must still
	// surface the 60-day-old milestone episode, since the age-tier rules
	// (not this field) govern the milestone tier's 90-day ceiling.
	policy := model.DefaultPolicy()
	req := model.BuildRequest{Scope: scope}
	episodes, err := loadEpisodes(context.Background(), store, scope, req, policy, now)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, ep := range episodes {
		ids[ep.EpisodeID] = true
	}
	assert.True(t, ids["milestone-60d"], "60-day-old milestone episode should be included")
	assert.False(t, ids["raw-60d"], "60-day-old raw episode should be excluded (not eligible past the 7-day raw tier)")
}

func TestLoadEpisodes_AssignsRecencyScore(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	scope := loaderTestScope()
	now := time.Now()
	require.NoError(t, store.AppendEpisode(context.Background(), scope, model.Episode{
		EpisodeID: "e1", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -1)}, CompressionLevel: model.CompressionRaw,
	}))

	req := model.BuildRequest{Scope: scope}
	episodes, err := loadEpisodes(context.Background(), store, scope, req, model.DefaultPolicy(), now)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	require.NotNil(t, episodes[0].RecencyScore)
	assert.Greater(t, *episodes[0].RecencyScore, 0.0)
}

func TestLoadEpisodes_CueMatchIncludesEpisodesBeyondNinetyDays(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	scope := loaderTestScope()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendEpisode(context.Background(), scope, model.Episode{
		EpisodeID: "ancient-tagged", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -200)},
		CompressionLevel: model.CompressionTheme, Tags: []string{"incident"},
	}))
	require.NoError(t, store.AppendEpisode(context.Background(), scope, model.Episode{
		EpisodeID: "ancient-untagged", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -200)},
		CompressionLevel: model.CompressionTheme,
	}))

	policy := model.DefaultPolicy()
	req := model.BuildRequest{Scope: scope, Cues: &model.Cues{Tags: []string{"incident"}}}
	episodes, err := loadEpisodes(context.Background(), store, scope, req, policy, now)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, ep := range episodes {
		ids[ep.EpisodeID] = true
	}
	assert.True(t, ids["ancient-tagged"])
	assert.False(t, ids["ancient-untagged"])
}

func TestLoadEpisodes_TierQueriesPushLimitToBackend(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	scope := loaderTestScope()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, store.AppendEpisode(context.Background(), scope, model.Episode{
			EpisodeID: fmt.Sprintf("raw-%d", i), TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -i)}, CompressionLevel: model.CompressionRaw,
		}))
	}

	policy := model.DefaultPolicy()
	policy.MaxEpisodes = 3
	req := model.BuildRequest{Scope: scope}
	episodes, err := loadEpisodes(context.Background(), store, scope, req, policy, now)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(episodes), 3)
}

func TestLoadConversationWindow_ReturnsChronologicalOrderWithinSize(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	scope := loaderTestScope()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendEvent(context.Background(), model.Event{
		EventID: "ev1", Scope: scope, Ts: base, Kind: model.EventMessage,
		Payload: map[string]interface{}{"role": "user", "content": "first"},
	}))
	require.NoError(t, store.AppendEvent(context.Background(), model.Event{
		EventID: "ev2", Scope: scope, Ts: base.Add(time.Minute), Kind: model.EventMessage,
		Payload: map[string]interface{}{"role": "assistant", "content": "second"},
	}))
	require.NoError(t, store.AppendEvent(context.Background(), model.Event{
		EventID: "ev3", Scope: scope, Ts: base.Add(2 * time.Minute), Kind: model.EventToolResult,
		Payload: map[string]interface{}{"result": "ignored"},
	}))

	policy := model.DefaultPolicy()
	policy.ConversationWindowSize = 5
	turns, err := loadConversationWindow(context.Background(), store, scope, policy)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
}

func TestLoadConversationWindow_DisabledByZeroSize(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	policy := model.DefaultPolicy()
	policy.ConversationWindowSize = 0
	turns, err := loadConversationWindow(context.Background(), store, loaderTestScope(), policy)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestLoadInsights_RestrictsToValidatedForResponder(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	scope := loaderTestScope()
	require.NoError(t, store.UpsertInsight(context.Background(), scope, model.Insight{
		ID: "unvalidated", Type: model.InsightHypothesis, Confidence: 0.9, ValidationState: model.ValidationUnvalidated,
	}))
	require.NoError(t, store.UpsertInsight(context.Background(), scope, model.Insight{
		ID: "validated", Type: model.InsightHypothesis, Confidence: 0.9, ValidationState: model.ValidationValidated,
	}))

	req := model.BuildRequest{Scope: scope, Purpose: model.PurposeResponder}
	insights, err := loadInsights(context.Background(), store, scope, req, model.DefaultPolicy(), time.Now())
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "validated", insights[0].ID)
}

func TestLoadProcedures_DefaultsTaskTypeToGeneric(t *testing.T) {
	store, cleanup := setupLoaderTest(t)
	defer cleanup()

	scope := loaderTestScope()
	require.NoError(t, store.UpsertProcedure(context.Background(), scope, model.Procedure{
		ProcedureID: "p1", TaskType: "generic", Priority: 1,
	}))

	req := model.BuildRequest{Scope: scope}
	procedures, err := loadProcedures(context.Background(), store, scope, req, model.DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, procedures, 1)
}
