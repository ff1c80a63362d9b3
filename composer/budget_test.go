package composer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/engram/model"
	"github.com/oceanbase/engram/tokens"
)

func newTestPacket() *model.MemoryPacket {
	return &model.MemoryPacket{
		LongTerm: model.LongTerm{
			Facts:    []model.Fact{{FactID: "f1", Value: "a"}, {FactID: "f2", Value: "b"}},
			Episodes: []model.Episode{{EpisodeID: "e1", Summary: "old episode"}},
		},
		Insight: model.InsightSection{
			Hypotheses: []model.Insight{{ID: "i1", Confidence: 0.9, Statement: "x"}, {ID: "i2", Confidence: 0.1, Statement: "y"}},
		},
		ShortTerm: model.ShortTerm{RollingSummary: "paragraph one.\n\nparagraph two."},
	}
}

func TestApplyBudget_PerSectionCapDropsTail(t *testing.T) {
	packet := newTestPacket()
	budget := model.Budget{MaxTokens: 100000, PerSection: map[string]uint32{"facts": 1}}
	report := ApplyBudget(packet, budget, tokens.Estimate)
	assert.LessOrEqual(t, len(packet.LongTerm.Facts), 1)
	assert.NotEmpty(t, report.Degradations)
}

func TestApplyBudget_GlobalDropOrderInsightThenEpisodeThenSummary(t *testing.T) {
	packet := newTestPacket()
	// Force a tiny budget so every global drop step is exercised.
	budget := model.Budget{MaxTokens: 1}
	report := ApplyBudget(packet, budget, tokens.Estimate)

	assert.Empty(t, packet.Insight.Hypotheses, "insights should be fully drained first")
	assert.Empty(t, packet.LongTerm.Episodes, "episodes should be drained next")
	assert.Empty(t, packet.LongTerm.Facts, "facts should be drained before the summary is trimmed")
	assert.NotEmpty(t, report.Degradations)
}

func TestApplyBudget_DropsLowestConfidenceFactAfterEpisodesExhausted(t *testing.T) {
	// spec.md S4: 30 active facts averaging 500 tokens each, budget.max_tokens=1000
	// -> packet contains <=2 facts, degradations includes {section:"facts", action:"drop_tail"}.
	facts := make([]model.Fact, 30)
	for i := range facts {
		facts[i] = model.Fact{
			FactID:     fmt.Sprintf("f%02d", i),
			Value:      strings.Repeat("x", 2000),
			Confidence: float64(i) / 30,
		}
	}
	packet := &model.MemoryPacket{LongTerm: model.LongTerm{Facts: facts}}
	budget := model.Budget{MaxTokens: 1000}

	report := ApplyBudget(packet, budget, tokens.Estimate)

	assert.LessOrEqual(t, len(packet.LongTerm.Facts), 2)
	assert.LessOrEqual(t, report.UsedTokensEst, uint32(1000))

	found := false
	for _, d := range report.Degradations {
		if d.Section == "facts" && d.Action == "drop_tail" {
			found = true
		}
	}
	assert.True(t, found, "expected a facts/drop_tail degradation")
}

func TestApplyBudget_DropLowestConfidenceFactRemovesWorstFirst(t *testing.T) {
	packet := &model.MemoryPacket{
		LongTerm: model.LongTerm{Facts: []model.Fact{
			{FactID: "high", Confidence: 0.9},
			{FactID: "low", Confidence: 0.1},
		}},
	}
	dropped, _ := dropLowestConfidenceFact(packet, tokens.Estimate)
	require.True(t, dropped)
	require.Len(t, packet.LongTerm.Facts, 1)
	assert.Equal(t, "high", packet.LongTerm.Facts[0].FactID)
}

func TestApplyBudget_DropsLowestConfidenceInsightFirst(t *testing.T) {
	section := &model.InsightSection{
		Hypotheses: []model.Insight{{ID: "high", Confidence: 0.9}},
		Patterns:   []model.Insight{{ID: "low", Confidence: 0.1}},
	}
	report := model.NewBudgetReport(model.Budget{})
	ok, _ := dropLowestConfidenceInsight(section, &report, tokens.Estimate)
	require.True(t, ok)
	assert.Empty(t, section.Patterns)
	assert.Len(t, section.Hypotheses, 1)
}

func TestApplyBudget_TrimSummaryTailDropsLastParagraph(t *testing.T) {
	packet := &model.MemoryPacket{ShortTerm: model.ShortTerm{RollingSummary: "first.\n\nsecond."}}
	dropped, before, after := trimSummaryTail(packet)
	require.True(t, dropped)
	assert.Equal(t, "first.", packet.ShortTerm.RollingSummary)
	assert.Greater(t, before, after)
}

func TestApplyBudget_TrimSummaryTailClearsSingleParagraph(t *testing.T) {
	packet := &model.MemoryPacket{ShortTerm: model.ShortTerm{RollingSummary: "only paragraph."}}
	dropped, _, _ := trimSummaryTail(packet)
	require.True(t, dropped)
	assert.Empty(t, packet.ShortTerm.RollingSummary)
}

func TestApplyBudget_TerminalOverflowUnresolvableWhenNothingLeftToDrop(t *testing.T) {
	packet := &model.MemoryPacket{
		ShortTerm: model.ShortTerm{WorkingState: model.NewWorkingState()},
	}
	budget := model.Budget{MaxTokens: 0}
	report := ApplyBudget(packet, budget, tokens.Estimate)

	found := false
	for _, d := range report.Degradations {
		if d.Action == "overflow_unresolvable" {
			found = true
		}
	}
	assert.True(t, found)
}
