package composer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/engram/model"
)

func TestTrimOverflow_NoopWhenUnderLimit(t *testing.T) {
	sections := &Sections{
		Facts: []model.Fact{{FactID: "f1", Confidence: 0.9}},
	}
	policy := model.DefaultPolicy()
	degradations, omissions, filters := TrimOverflow(sections, policy, time.Now())
	assert.Empty(t, degradations)
	assert.Empty(t, omissions)
	assert.Empty(t, filters)
	assert.Len(t, sections.Facts, 1)
}

func TestTrimOverflow_Step1ReducesProportionally(t *testing.T) {
	facts := make([]model.Fact, 10)
	for i := range facts {
		facts[i] = model.Fact{FactID: string(rune('a' + i)), Confidence: 0.9}
	}
	sections := &Sections{Facts: facts}
	policy := model.DefaultPolicy()
	policy.MaxTotalCandidates = 5

	degradations, _, filters := TrimOverflow(sections, policy, time.Now())
	assert.LessOrEqual(t, sections.total(), 5)
	assert.NotEmpty(t, degradations)
	assert.Contains(t, filters, "overflow_step1_reduce_top_k")
}

func TestTrimOverflow_Step2TightensTimeWindow(t *testing.T) {
	now := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)
	episodes := []model.Episode{
		{EpisodeID: "recent", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -1)}},
		{EpisodeID: "old", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -20)}},
	}
	sections := &Sections{Episodes: episodes}
	policy := model.DefaultPolicy()
	policy.MaxTotalCandidates = 1
	policy.EpisodeTimeWindowDays = 30

	_, _, filters := TrimOverflow(sections, policy, now)
	assert.Len(t, sections.Episodes, 1)
	assert.Equal(t, "recent", sections.Episodes[0].EpisodeID)
	assert.Contains(t, filters, "overflow_step2_time_window_days")
}

func TestTrimOverflow_Step3PrefersCompressedOverRaw(t *testing.T) {
	now := time.Now()
	episodes := []model.Episode{
		{EpisodeID: "raw1", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -1)}, CompressionLevel: model.CompressionRaw},
		{EpisodeID: "summary1", TimeRange: model.TimeRange{Start: now.AddDate(0, 0, -1)}, CompressionLevel: model.CompressionPhaseSummary},
	}
	sections := &Sections{Episodes: episodes}
	policy := model.DefaultPolicy()
	policy.MaxTotalCandidates = 1
	policy.EpisodeTimeWindowDays = 1

	TrimOverflow(sections, policy, now)
	require.Len(t, sections.Episodes, 1)
	assert.Equal(t, "summary1", sections.Episodes[0].EpisodeID)
}

func TestTrimOverflow_Step4DropsBelowConfidenceFloor(t *testing.T) {
	sections := &Sections{
		Facts: []model.Fact{
			{FactID: "high", Confidence: 0.9},
			{FactID: "low", Confidence: 0.05},
		},
	}
	policy := model.DefaultPolicy()
	policy.MaxTotalCandidates = 1
	policy.ConfidenceFloor = 0.2

	_, omissions, _ := TrimOverflow(sections, policy, time.Now())
	require.Len(t, sections.Facts, 1)
	assert.Equal(t, "high", sections.Facts[0].FactID)
	found := false
	for _, o := range omissions {
		if o.Item == "fact:low" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTrimOverflow_Step5OmitsInsightsBeforeEpisodesBeforeProcedures(t *testing.T) {
	sections := &Sections{
		Facts:      []model.Fact{{FactID: "f1", Confidence: 0.9}},
		Episodes:   []model.Episode{{EpisodeID: "e1", CompressionLevel: model.CompressionMilestone, TimeRange: model.TimeRange{Start: time.Now()}}},
		Procedures: []model.Procedure{{ProcedureID: "p1"}},
		Insights:   []model.Insight{{ID: "i1", Confidence: 0.9}},
	}
	policy := model.DefaultPolicy()
	policy.MaxTotalCandidates = 3
	policy.ConfidenceFloor = 0

	TrimOverflow(sections, policy, time.Now())
	assert.Empty(t, sections.Insights)
	assert.NotEmpty(t, sections.Episodes)
	assert.NotEmpty(t, sections.Procedures)
	assert.NotEmpty(t, sections.Facts)
}
