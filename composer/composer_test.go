package composer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/engram/composer"
	"github.com/oceanbase/engram/model"
	sqlitestore "github.com/oceanbase/engram/storage/sqlite"
)

func setupComposerTest(t *testing.T) (*sqlitestore.Client, func()) {
	t.Helper()
	store, err := sqlitestore.NewClient(&sqlitestore.Config{DBPath: ":memory:"})
	require.NoError(t, err)
	return store, func() { _ = store.Close() }
}

func testScope() model.Scope {
	return model.Scope{TenantID: "default", UserID: "u1", AgentID: "a1", SessionID: "s1", RunID: "r1"}
}

// S1: an empty store produces a valid, empty planner packet — no panics,
// no spurious omissions beyond the working-state default.
func TestBuild_EmptyStoreProducesEmptyPacket(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   testScope(),
		Purpose: model.PurposePlanner,
		Now:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, packet.LongTerm.Facts)
	assert.Empty(t, packet.LongTerm.Episodes)
	assert.Empty(t, packet.Insight.Hypotheses)
	assert.Equal(t, uint32(0), packet.ShortTerm.WorkingState.StateVersion)
}

// S5: a purpose=responder build with allow_insight_in_responder=false drops
// insights entirely, even validated ones, unless the caller opts in.
func TestBuild_ResponderDropsInsightsByDefault(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	scope := testScope()
	require.NoError(t, store.UpsertInsight(context.Background(), scope, model.Insight{
		ID: "ins-1", Type: model.InsightPattern, Statement: "validated pattern",
		Trigger: model.TriggerSynthesis, Confidence: 0.9, ValidationState: model.ValidationValidated,
	}))

	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   scope,
		Purpose: model.PurposeResponder,
		Now:     time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, packet.Insight.Patterns)
}

func TestBuild_ResponderIncludesInsightsWhenAllowed(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	scope := testScope()
	require.NoError(t, store.UpsertInsight(context.Background(), scope, model.Insight{
		ID: "ins-1", Type: model.InsightPattern, Statement: "validated pattern",
		Trigger: model.TriggerSynthesis, Confidence: 0.9, ValidationState: model.ValidationValidated,
	}))

	policy := model.DefaultPolicy()
	policy.AllowInsightInResponder = true
	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   scope,
		Purpose: model.PurposeResponder,
		Policy:  &policy,
		Now:     time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, packet.Insight.Patterns, 1)
}

// S2: superseding an active fact demotes the old row and the read path
// surfaces the supersession in explain.conflicts.
func TestBuild_SupersededFactSurfacesConflict(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	scope := testScope()
	require.NoError(t, store.UpsertFact(context.Background(), scope, model.Fact{
		FactID: "f1", FactKey: "user.pref.editor", Value: "vim",
		Status: model.FactActive, Confidence: 0.8, ScopeLevel: model.ScopeLevelUser,
	}))
	require.NoError(t, store.UpsertFact(context.Background(), scope, model.Fact{
		FactID: "f2", FactKey: "user.pref.editor", Value: "emacs",
		Status: model.FactActive, Confidence: 0.9, ScopeLevel: model.ScopeLevelUser,
	}))

	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   scope,
		Purpose: model.PurposePlanner,
		Now:     time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, packet.Explain.Conflicts, 1)
	assert.Equal(t, "superseded", packet.Explain.Conflicts[0].Type)
	assert.Contains(t, packet.Explain.Conflicts[0].FactIDs, "f1")
}

// S6: deadline_ms=0 forces an immediate context expiry, surfacing at least
// one explain.omitted{reason:"deadline"} entry.
func TestBuild_ZeroDeadlineRecordsOmission(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	policy := model.DefaultPolicy()
	policy.DeadlineMS = 0
	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   testScope(),
		Purpose: model.PurposePlanner,
		Policy:  &policy,
		Now:     time.Now(),
	})
	require.NoError(t, err)

	found := false
	for _, o := range packet.Explain.Omitted {
		if o.Reason == "deadline" {
			found = true
		}
	}
	assert.True(t, found, "expected at least one explain.omitted{reason:deadline} entry")
}

func TestBuild_ActiveFactsCeilingExceededEmitsWarningDegradation(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	scope := testScope()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.UpsertFact(context.Background(), scope, model.Fact{
			FactID: fmt.Sprintf("f%d", i), FactKey: fmt.Sprintf("k%d", i), Value: "x",
			Status: model.FactActive, Confidence: 0.5, ScopeLevel: model.ScopeLevelUser,
		}))
	}

	policy := model.DefaultPolicy()
	policy.ActiveFactsCeiling = 3
	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   scope,
		Purpose: model.PurposePlanner,
		Policy:  &policy,
		Now:     time.Now(),
	})
	require.NoError(t, err)

	found := false
	for _, d := range packet.BudgetReport.Degradations {
		if d.Section == "facts" && d.Action == "warn_active_facts_ceiling" {
			found = true
		}
	}
	assert.True(t, found, "expected a facts/warn_active_facts_ceiling degradation")
}

func TestBuild_ActiveFactsCeilingUnsetEmitsNoWarning(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	scope := testScope()
	require.NoError(t, store.UpsertFact(context.Background(), scope, model.Fact{
		FactID: "f1", FactKey: "k1", Value: "x",
		Status: model.FactActive, Confidence: 0.5, ScopeLevel: model.ScopeLevelUser,
	}))

	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   scope,
		Purpose: model.PurposePlanner,
		Now:     time.Now(),
	})
	require.NoError(t, err)

	for _, d := range packet.BudgetReport.Degradations {
		assert.NotEqual(t, "warn_active_facts_ceiling", d.Action)
	}
}

func TestBuild_ConversationWindowPopulatedWhenOptedIn(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	scope := testScope()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendEvent(context.Background(), model.Event{
		EventID: "ev1", Scope: scope, Ts: base, Kind: model.EventMessage,
		Payload: map[string]interface{}{"role": "user", "content": "hello"},
	}))
	require.NoError(t, store.AppendEvent(context.Background(), model.Event{
		EventID: "ev2", Scope: scope, Ts: base.Add(time.Minute), Kind: model.EventMessage,
		Payload: map[string]interface{}{"role": "assistant", "content": "hi there"},
	}))

	policy := model.DefaultPolicy()
	policy.IncludeConversationWindow = true
	policy.ConversationWindowSize = 5
	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   scope,
		Purpose: model.PurposePlanner,
		Policy:  &policy,
		Now:     time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, packet.ShortTerm.ConversationWindow, 2)
	assert.Equal(t, model.RoleUser, packet.ShortTerm.ConversationWindow[0].Role)
	assert.Equal(t, "hello", packet.ShortTerm.ConversationWindow[0].Content)
	assert.Equal(t, model.RoleAssistant, packet.ShortTerm.ConversationWindow[1].Role)
}

func TestBuild_ConversationWindowNilWhenNotOptedIn(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   testScope(),
		Purpose: model.PurposePlanner,
		Now:     time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, packet.ShortTerm.ConversationWindow)
}

func TestBuild_PreferencesProjectFactsWithPrefix(t *testing.T) {
	store, cleanup := setupComposerTest(t)
	defer cleanup()

	scope := testScope()
	require.NoError(t, store.UpsertFact(context.Background(), scope, model.Fact{
		FactID: "f1", FactKey: "user.pref.editor", Value: "vim",
		Status: model.FactActive, Confidence: 0.8, ScopeLevel: model.ScopeLevelUser,
	}))
	require.NoError(t, store.UpsertFact(context.Background(), scope, model.Fact{
		FactID: "f2", FactKey: "user.name", Value: "ada",
		Status: model.FactActive, Confidence: 0.8, ScopeLevel: model.ScopeLevelUser,
	}))

	comp := composer.New(store)
	packet, err := comp.Build(context.Background(), model.BuildRequest{
		Scope:   scope,
		Purpose: model.PurposePlanner,
		Now:     time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, packet.LongTerm.Preferences, 1)
	assert.Equal(t, "user.pref.editor", packet.LongTerm.Preferences[0].FactKey)
	assert.Len(t, packet.LongTerm.Facts, 2)
}
