package composer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/engram/model"
)

func TestAssemble_ResponderDropsUnvalidatedInsightsByDefault(t *testing.T) {
	req := model.BuildRequest{
		Scope:   model.Scope{TenantID: "t1", UserID: "u1"},
		Purpose: model.PurposeResponder,
	}
	sections := Sections{
		Insights: []model.Insight{{ID: "i1", Type: model.InsightHypothesis, Confidence: 0.9}},
	}
	packet := Assemble(req, time.Now(), model.NewWorkingState(), model.NewSTMSummary(), sections, nil, nil, nil, nil)
	assert.Empty(t, packet.Insight.Hypotheses)

	found := false
	for _, o := range packet.Explain.Omitted {
		if o.Item == "insight.*" && o.Reason == "responder_purity" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAssemble_PlannerKeepsInsights(t *testing.T) {
	req := model.BuildRequest{
		Scope:   model.Scope{TenantID: "t1", UserID: "u1"},
		Purpose: model.PurposePlanner,
	}
	sections := Sections{
		Insights: []model.Insight{{ID: "i1", Type: model.InsightStrategy, Confidence: 0.9}},
	}
	packet := Assemble(req, time.Now(), model.NewWorkingState(), model.NewSTMSummary(), sections, nil, nil, nil, nil)
	require.Len(t, packet.Insight.StrategySketches, 1)
}

func TestBuildCitations_DeduplicatesByEventID(t *testing.T) {
	shortTerm := model.ShortTerm{
		LastToolEvidence: []model.EvidenceRef{{EvidenceID: "ev-1"}},
	}
	longTerm := model.LongTerm{
		Facts: []model.Fact{{FactID: "f1", Sources: []string{"ev-1", "ev-2"}}},
	}
	citations := buildCitations(shortTerm, longTerm, model.InsightSection{})
	assert.Len(t, citations, 2)
}

func TestProjectPreferences_FiltersByPrefix(t *testing.T) {
	facts := []model.Fact{
		{FactID: "f1", FactKey: "user.pref.editor"},
		{FactID: "f2", FactKey: "user.name"},
	}
	prefs := projectPreferences(facts)
	require.Len(t, prefs, 1)
	assert.Equal(t, "f1", prefs[0].FactID)
}

func TestDetectFactConflicts_FlagsSupersededFactKey(t *testing.T) {
	active := []model.Fact{{FactID: "f2", FactKey: "user.pref.editor"}}
	deprecated := []model.Fact{{FactID: "f1", FactKey: "user.pref.editor"}}
	conflicts := DetectFactConflicts(active, deprecated)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "superseded", conflicts[0].Type)
	assert.Equal(t, []string{"f1"}, conflicts[0].FactIDs)
}

func TestDetectFactConflicts_NoConflictWhenNoOverlap(t *testing.T) {
	active := []model.Fact{{FactID: "f2", FactKey: "user.pref.editor"}}
	deprecated := []model.Fact{{FactID: "f1", FactKey: "user.pref.theme"}}
	conflicts := DetectFactConflicts(active, deprecated)
	assert.Empty(t, conflicts)
}
