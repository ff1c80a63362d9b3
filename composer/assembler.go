package composer

import (
	"sort"
	"strings"
	"time"

	"github.com/oceanbase/engram/model"
)

// preferenceKeyPrefix marks a fact as a user preference for the packet's
// `preferences` projection (spec §9 Open Question a: preferences are a
// projection of facts, not a separately persisted category).
const preferenceKeyPrefix = "user.pref."

// Assemble builds the final MemoryPacket from loaded sections per spec
// §4.5. It enforces the responder insight-injection policy, de-duplicates
// citations, and produces the explain trace. Budget enforcement happens
// afterward via ApplyBudget — Assemble never truncates for token reasons.
func Assemble(req model.BuildRequest, now time.Time, workingState model.WorkingState, stm model.STMSummary, sections Sections, conversationWindow []model.ConversationTurn, conflicts []model.Conflict, loaderOmissions []model.Omission, filters map[string]string) model.MemoryPacket {
	policy := req.ResolvedPolicy()
	budget := req.ResolvedBudget()

	if policy.IncludeConversationWindow && conversationWindow == nil {
		conversationWindow = []model.ConversationTurn{}
	}

	shortTerm := model.ShortTerm{
		WorkingState:       workingState,
		RollingSummary:     stm.RollingSummary,
		KeyQuotes:          stm.KeyQuotes,
		ConversationWindow: conversationWindow,
		OpenLoops:          []string{},
		LastToolEvidence:   workingState.ToolEvidence,
	}

	longTerm := model.LongTerm{
		Facts:       sections.Facts,
		Preferences: projectPreferences(sections.Facts),
		Procedures:  sections.Procedures,
		Episodes:    sections.Episodes,
	}

	allowResponder := policy.AllowInsightInResponder
	insightSection := model.InsightSection{
		UsagePolicy: model.UsagePolicy{AllowInResponder: allowResponder},
	}
	omissions := append([]model.Omission{}, loaderOmissions...)

	if req.Purpose == model.PurposeResponder && !allowResponder {
		// State machine (spec §4.5): responder + not validated → dropped.
		// Validated insights were already the only ones loaded for
		// purpose=responder (see loadInsights), so zeroing here enforces
		// the usage-policy override independent of validation state.
		if n := len(sections.Insights); n > 0 {
			omissions = append(omissions, model.Omission{Item: "insight.*", Reason: "responder_purity"})
		}
	} else {
		classifyInsights(&insightSection, sections.Insights)
	}

	citations := buildCitations(shortTerm, longTerm, insightSection)

	explain := model.Explain{
		Selected:  selectedIDs(longTerm, insightSection),
		Omitted:   omissions,
		Filters:   filters,
		Conflicts: conflicts,
		Determinism: model.Determinism{
			PolicyID: policy.PolicyID,
			SortKeys: map[string]string{
				"facts":      "confidence desc, fact_id asc",
				"episodes":   "recency_score desc, episode_id asc",
				"procedures": "priority desc, usage_count desc, procedure_id asc",
				"insights":   "confidence desc, id asc",
			},
			TimeWindow: map[string]int{"episode_time_window_days": policy.EpisodeTimeWindowDays},
			TopK: map[string]int{
				"facts":      policy.MaxFacts,
				"episodes":   policy.MaxEpisodes,
				"procedures": policy.MaxProceduresPerTaskType,
				"insights":   policy.MaxInsights,
			},
		},
	}

	return model.MemoryPacket{
		Meta: model.Meta{
			SchemaVersion: model.SchemaVersion,
			Scope:         req.Scope,
			GeneratedAt:   now,
			Purpose:       req.Purpose,
			TaskType:      req.TaskType,
			Cues:          req.Cues,
			Budget:        budget,
			PolicyID:      policy.PolicyID,
		},
		ShortTerm:    shortTerm,
		LongTerm:     longTerm,
		Insight:      insightSection,
		Citations:    citations,
		BudgetReport: model.NewBudgetReport(budget),
		Explain:      explain,
	}
}

func projectPreferences(facts []model.Fact) []model.Fact {
	prefs := make([]model.Fact, 0)
	for _, f := range facts {
		if strings.HasPrefix(f.FactKey, preferenceKeyPrefix) {
			prefs = append(prefs, f)
		}
	}
	return prefs
}

func classifyInsights(section *model.InsightSection, insights []model.Insight) {
	section.Hypotheses = make([]model.Insight, 0)
	section.StrategySketches = make([]model.Insight, 0)
	section.Patterns = make([]model.Insight, 0)
	for _, ins := range insights {
		switch ins.Type {
		case model.InsightHypothesis:
			section.Hypotheses = append(section.Hypotheses, ins)
		case model.InsightStrategy:
			section.StrategySketches = append(section.StrategySketches, ins)
		case model.InsightPattern:
			section.Patterns = append(section.Patterns, ins)
		}
	}
}

// buildCitations de-duplicates every event_id referenced by any section
// (spec §4.5, §8 property 8: citation closure).
func buildCitations(shortTerm model.ShortTerm, longTerm model.LongTerm, insight model.InsightSection) []model.Citation {
	seen := map[string]model.Citation{}
	add := func(id string, typ model.CitationType) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; !ok {
			seen[id] = model.Citation{ID: id, Type: typ}
		}
	}

	for _, q := range shortTerm.KeyQuotes {
		add(q.EvidenceID, model.CitationMessage)
	}
	for _, ev := range shortTerm.LastToolEvidence {
		add(ev.EvidenceID, model.CitationToolResult)
	}
	for _, f := range longTerm.Facts {
		for _, s := range f.Sources {
			add(s, model.CitationStatePatch)
		}
	}
	for _, ep := range longTerm.Episodes {
		for _, s := range ep.Sources {
			add(s, model.CitationMessage)
		}
	}
	for _, p := range longTerm.Procedures {
		for _, s := range p.Sources {
			add(s, model.CitationToolResult)
		}
	}
	for _, ins := range allInsights(insight) {
		for _, s := range ins.Sources {
			add(s, model.CitationStatePatch)
		}
	}

	citations := make([]model.Citation, 0, len(seen))
	for _, c := range seen {
		citations = append(citations, c)
	}
	sort.Slice(citations, func(i, j int) bool { return citations[i].ID < citations[j].ID })
	return citations
}

func selectedIDs(longTerm model.LongTerm, insight model.InsightSection) []string {
	ids := make([]string, 0)
	for _, f := range longTerm.Facts {
		ids = append(ids, "fact:"+f.FactID)
	}
	for _, ep := range longTerm.Episodes {
		ids = append(ids, "episode:"+ep.EpisodeID)
	}
	for _, p := range longTerm.Procedures {
		ids = append(ids, "procedure:"+p.ProcedureID)
	}
	for _, ins := range allInsights(insight) {
		ids = append(ids, "insight:"+ins.ID)
	}
	return ids
}

// DetectFactConflicts flags active facts that superseded a deprecated row
// sharing the same fact_key — the read-side surface of the write-time
// demotion UpsertFact performs (spec §7: Integrity errors "surfaced
// read-side as explain.conflicts").
func DetectFactConflicts(active, deprecated []model.Fact) []model.Conflict {
	deprecatedByKey := map[string][]string{}
	for _, f := range deprecated {
		deprecatedByKey[f.FactKey] = append(deprecatedByKey[f.FactKey], f.FactID)
	}

	conflicts := make([]model.Conflict, 0)
	for _, f := range active {
		ids, ok := deprecatedByKey[f.FactKey]
		if !ok {
			continue
		}
		conflicts = append(conflicts, model.Conflict{
			Type:    "superseded",
			Detail:  "fact_key=" + f.FactKey,
			FactIDs: ids,
		})
	}
	return conflicts
}
