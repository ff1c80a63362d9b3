package consolidation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/engram/consolidation"
	"github.com/oceanbase/engram/llm"
	"github.com/oceanbase/engram/model"
	"github.com/oceanbase/engram/storage"
	sqlitestore "github.com/oceanbase/engram/storage/sqlite"
)

// scriptedLLM returns queued responses in order, one per
// GenerateWithMessages call, cycling to the last entry once exhausted.
type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return s.next(), nil
}

func (s *scriptedLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return s.next(), nil
}

func (s *scriptedLLM) Close() error { return nil }

func (s *scriptedLLM) next() string {
	if len(s.responses) == 0 {
		return `{"kind":"none"}`
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx]
}

func setupRunnerTest(t *testing.T) (storage.Store, func()) {
	t.Helper()
	store, err := sqlitestore.NewClient(&sqlitestore.Config{DBPath: ":memory:"})
	require.NoError(t, err)
	cleanup := func() { _ = store.Close() }
	return store, cleanup
}

func testScope() model.Scope {
	return model.Scope{TenantID: "default", UserID: "u1", AgentID: "a1", SessionID: "s1", RunID: "r1"}
}

func TestRunner_PromotesFact(t *testing.T) {
	store, cleanup := setupRunnerTest(t)
	defer cleanup()

	scope := testScope()
	insight := model.Insight{
		ID:              "ins-1",
		Type:            model.InsightPattern,
		Statement:       "user always requests dark mode",
		Trigger:         model.TriggerSynthesis,
		Confidence:      0.9,
		ValidationState: model.ValidationValidated,
	}
	require.NoError(t, store.UpsertInsight(context.Background(), scope, insight))

	fakeLLM := &scriptedLLM{responses: []string{`{"kind":"fact","fact_key":"user.pref.theme","value":"dark"}`}}
	runner := consolidation.NewRunner(store, fakeLLM)

	result, err := runner.Run(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Considered)
	assert.Equal(t, 1, result.Promoted)
	assert.Equal(t, 0, result.Failed)

	facts, err := store.ListFacts(context.Background(), scope, model.FactFilter{
		StatusIn: []model.FactStatus{model.FactActive},
		Now:      time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "user.pref.theme", facts[0].FactKey)

	// The source insight is untouched — consolidation never mutates
	// validation_state.
	insights, err := store.ListInsights(context.Background(), scope, model.InsightFilter{
		Now:               time.Now(),
		ValidationStateIn: []model.ValidationState{model.ValidationValidated},
	})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, model.ValidationValidated, insights[0].ValidationState)
}

func TestRunner_PromotesProcedureAndEpisode(t *testing.T) {
	store, cleanup := setupRunnerTest(t)
	defer cleanup()

	scope := testScope()
	require.NoError(t, store.UpsertInsight(context.Background(), scope, model.Insight{
		ID: "ins-proc", Type: model.InsightStrategy, Statement: "retry with backoff works",
		Trigger: model.TriggerFailure, Confidence: 0.8, ValidationState: model.ValidationValidated,
	}))
	require.NoError(t, store.UpsertInsight(context.Background(), scope, model.Insight{
		ID: "ins-epi", Type: model.InsightHypothesis, Statement: "the migration took three attempts",
		Trigger: model.TriggerSynthesis, Confidence: 0.7, ValidationState: model.ValidationValidated,
	}))

	fakeLLM := &scriptedLLM{responses: []string{
		`{"kind":"procedure","task_type":"deploy","content":"retry with exponential backoff","priority":5}`,
		`{"kind":"episode","summary":"migration required three attempts","highlights":["attempt 1 failed","attempt 3 succeeded"]}`,
	}}
	runner := consolidation.NewRunner(store, fakeLLM)

	result, err := runner.Run(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Considered)
	assert.Equal(t, 2, result.Promoted)

	procedures, err := store.ListProcedures(context.Background(), scope, model.ProcedureFilter{TaskType: "deploy"})
	require.NoError(t, err)
	require.Len(t, procedures, 1)

	episodes, err := store.ListEpisodes(context.Background(), scope, model.EpisodeFilter{})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
}

func TestRunner_NoneDecisionSkipsWithoutError(t *testing.T) {
	store, cleanup := setupRunnerTest(t)
	defer cleanup()

	scope := testScope()
	require.NoError(t, store.UpsertInsight(context.Background(), scope, model.Insight{
		ID: "ins-ephemeral", Type: model.InsightHypothesis, Statement: "maybe a fluke",
		Trigger: model.TriggerConflict, Confidence: 0.3, ValidationState: model.ValidationValidated,
	}))

	fakeLLM := &scriptedLLM{responses: []string{`{"kind":"none"}`}}
	runner := consolidation.NewRunner(store, fakeLLM)

	result, err := runner.Run(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Promoted)
}

func TestRunner_IgnoresUnvalidatedInsights(t *testing.T) {
	store, cleanup := setupRunnerTest(t)
	defer cleanup()

	scope := testScope()
	require.NoError(t, store.UpsertInsight(context.Background(), scope, model.Insight{
		ID: "ins-unvalidated", Type: model.InsightHypothesis, Statement: "untested guess",
		Trigger: model.TriggerConflict, Confidence: 0.5, ValidationState: model.ValidationUnvalidated,
	}))

	fakeLLM := &scriptedLLM{}
	runner := consolidation.NewRunner(store, fakeLLM)

	result, err := runner.Run(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Considered)
	assert.Equal(t, 0, fakeLLM.calls)
}

func TestRunner_MalformedResponseCountsAsFailedNotFatal(t *testing.T) {
	store, cleanup := setupRunnerTest(t)
	defer cleanup()

	scope := testScope()
	require.NoError(t, store.UpsertInsight(context.Background(), scope, model.Insight{
		ID: "ins-bad", Type: model.InsightPattern, Statement: "garbled",
		Trigger: model.TriggerSynthesis, Confidence: 0.9, ValidationState: model.ValidationValidated,
	}))

	fakeLLM := &scriptedLLM{responses: []string{"not json at all"}}
	runner := consolidation.NewRunner(store, fakeLLM)

	result, err := runner.Run(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Promoted)
}
