package composer

import (
	"strings"

	"github.com/oceanbase/engram/model"
	"github.com/oceanbase/engram/tokens"
)

// metaOverheadTokens approximates the fixed cost of meta + citations
// envelope fields that aren't attributed to any single section.
const metaOverheadTokens = 24

// ApplyBudget is the deterministic greedy reducer of spec §4.4. It mutates
// packet's sections in place, dropping one item at a time — from the tail of
// the already-sorted list for facts/episodes/procedures, by lowest confidence
// for insights and facts — and subtracts each removed item's own estimated
// size incrementally rather than re-serializing the whole section on every
// drop. Returns the populated BudgetReport.
func ApplyBudget(packet *model.MemoryPacket, budget model.Budget, estimate tokens.Estimator) model.BudgetReport {
	if estimate == nil {
		estimate = tokens.Estimate
	}
	report := model.NewBudgetReport(budget)

	perSection := budget.PerSection
	if perSection == nil {
		perSection = map[string]uint32{}
	}

	// Step 1: per-section caps, tail-drop until each section fits.
	factUsage := estimate(packet.LongTerm.Facts)
	if cap, ok := perSection["facts"]; ok {
		for factUsage > cap && len(packet.LongTerm.Facts) > 0 {
			last := packet.LongTerm.Facts[len(packet.LongTerm.Facts)-1]
			packet.LongTerm.Facts = packet.LongTerm.Facts[:len(packet.LongTerm.Facts)-1]
			factUsage -= estimate(last)
			report.Degradations = append(report.Degradations, model.Degradation{Section: "facts", Action: "drop_tail", Reason: "over per-section budget"})
		}
	}
	report.SectionUsage["facts"] = factUsage

	episodeUsage := estimate(packet.LongTerm.Episodes)
	if cap, ok := perSection["episodes"]; ok {
		for episodeUsage > cap && len(packet.LongTerm.Episodes) > 0 {
			last := packet.LongTerm.Episodes[len(packet.LongTerm.Episodes)-1]
			packet.LongTerm.Episodes = packet.LongTerm.Episodes[:len(packet.LongTerm.Episodes)-1]
			episodeUsage -= estimate(last)
			report.Degradations = append(report.Degradations, model.Degradation{Section: "episodes", Action: "drop_tail", Reason: "over per-section budget"})
		}
	}
	report.SectionUsage["episodes"] = episodeUsage

	procedureUsage := estimate(packet.LongTerm.Procedures)
	if cap, ok := perSection["procedures"]; ok {
		for procedureUsage > cap && len(packet.LongTerm.Procedures) > 0 {
			last := packet.LongTerm.Procedures[len(packet.LongTerm.Procedures)-1]
			packet.LongTerm.Procedures = packet.LongTerm.Procedures[:len(packet.LongTerm.Procedures)-1]
			procedureUsage -= estimate(last)
			report.Degradations = append(report.Degradations, model.Degradation{Section: "procedures", Action: "drop_tail", Reason: "over per-section budget"})
		}
	}
	report.SectionUsage["procedures"] = procedureUsage

	insightUsage := estimate(allInsights(packet.Insight))
	if cap, ok := perSection["insights"]; ok {
		for insightUsage > cap {
			dropped, size := dropLowestConfidenceInsight(&packet.Insight, &report, estimate)
			if !dropped {
				break
			}
			insightUsage -= size
		}
	}
	report.SectionUsage["insights"] = insightUsage

	shortTermUsage := estimate(packet.ShortTerm)
	report.SectionUsage["short_term"] = shortTermUsage

	total := factUsage + episodeUsage + procedureUsage + insightUsage + shortTermUsage + metaOverheadTokens

	// Step 3: global drop order until within max_tokens or nothing left to
	// drop. Working state is always mandatory and is never touched here.
	for total > budget.MaxTokens {
		if dropped, size := dropLowestConfidenceInsight(&packet.Insight, &report, estimate); dropped {
			insightUsage -= size
			total -= size
			continue
		}
		if dropped, size := dropOldestEpisode(packet, estimate); dropped {
			episodeUsage -= size
			total -= size
			report.Degradations = append(report.Degradations, model.Degradation{Section: "episodes", Action: "drop_oldest", Reason: "global token budget exceeded"})
			continue
		}
		if dropped, size := dropLowestConfidenceFact(packet, estimate); dropped {
			factUsage -= size
			total -= size
			report.Degradations = append(report.Degradations, model.Degradation{Section: "facts", Action: "drop_tail", Reason: "global token budget exceeded"})
			continue
		}
		if dropped, before, after := trimSummaryTail(packet); dropped {
			delta := before - after
			shortTermUsage = estimate(packet.ShortTerm)
			total -= delta
			report.Degradations = append(report.Degradations, model.Degradation{Section: "short_term", Action: "trim_summary_tail", Reason: "global token budget exceeded"})
			continue
		}
		break
	}

	report.SectionUsage["facts"] = factUsage
	report.SectionUsage["episodes"] = episodeUsage
	report.SectionUsage["procedures"] = procedureUsage
	report.SectionUsage["insights"] = insightUsage
	report.SectionUsage["short_term"] = shortTermUsage
	report.UsedTokensEst = total

	if total > budget.MaxTokens {
		report.Degradations = append(report.Degradations, model.Degradation{Section: "packet", Action: "overflow_unresolvable", Reason: "budget could not be satisfied after exhausting drop order"})
	}

	return report
}

func allInsights(section model.InsightSection) []model.Insight {
	all := make([]model.Insight, 0, len(section.Hypotheses)+len(section.StrategySketches)+len(section.Patterns))
	all = append(all, section.Hypotheses...)
	all = append(all, section.StrategySketches...)
	all = append(all, section.Patterns...)
	return all
}

// dropLowestConfidenceInsight removes the single lowest-confidence insight
// across all three insight lists, recording the degradation, and returns its
// own estimated size so callers can subtract incrementally instead of
// re-estimating the whole remaining insight set on every drop. Returns
// (false, 0) when no insight remains to drop.
func dropLowestConfidenceInsight(section *model.InsightSection, report *model.BudgetReport, estimate tokens.Estimator) (bool, uint32) {
	lists := []*[]model.Insight{&section.Hypotheses, &section.StrategySketches, &section.Patterns}

	bestList := -1
	bestIdx := -1
	bestConfidence := 0.0
	for li, list := range lists {
		for i, ins := range *list {
			if bestList == -1 || ins.Confidence < bestConfidence {
				bestList, bestIdx, bestConfidence = li, i, ins.Confidence
			}
		}
	}
	if bestList == -1 {
		return false, 0
	}
	list := lists[bestList]
	dropped := (*list)[bestIdx]
	*list = append((*list)[:bestIdx], (*list)[bestIdx+1:]...)
	report.Degradations = append(report.Degradations, model.Degradation{Section: "insights", Action: "drop_lowest_confidence", Reason: "global token budget exceeded"})
	report.Omissions = append(report.Omissions, model.Omission{Item: "insight:" + dropped.ID, Reason: "global_budget"})
	return true, estimate(dropped)
}

// dropLowestConfidenceFact removes the active fact with the lowest
// confidence (spec §4.4 step 3c). A fact whose status is not active is
// never present in packet.LongTerm.Facts — only loadFacts' active-only
// query populates it — so no defensive status check is needed here.
func dropLowestConfidenceFact(packet *model.MemoryPacket, estimate tokens.Estimator) (bool, uint32) {
	facts := packet.LongTerm.Facts
	if len(facts) == 0 {
		return false, 0
	}
	worstIdx := 0
	for i, f := range facts {
		if f.Confidence < facts[worstIdx].Confidence {
			worstIdx = i
		}
	}
	dropped := facts[worstIdx]
	packet.LongTerm.Facts = append(facts[:worstIdx], facts[worstIdx+1:]...)
	return true, estimate(dropped)
}

// dropOldestEpisode removes the episode with the earliest TimeRange.Start.
func dropOldestEpisode(packet *model.MemoryPacket, estimate tokens.Estimator) (bool, uint32) {
	episodes := packet.LongTerm.Episodes
	if len(episodes) == 0 {
		return false, 0
	}
	oldestIdx := 0
	for i, ep := range episodes {
		if ep.TimeRange.Start.Before(episodes[oldestIdx].TimeRange.Start) {
			oldestIdx = i
		}
	}
	dropped := episodes[oldestIdx]
	packet.LongTerm.Episodes = append(episodes[:oldestIdx], episodes[oldestIdx+1:]...)
	return true, estimate(dropped)
}

// trimSummaryTail drops the last paragraph (split on blank lines) of the
// rolling summary. Returns the before/after token estimate of the
// short_term section so callers can compute the delta without a second
// full re-serialization pass.
func trimSummaryTail(packet *model.MemoryPacket) (bool, uint32, uint32) {
	paragraphs := strings.Split(packet.ShortTerm.RollingSummary, "\n\n")
	if len(paragraphs) <= 1 {
		if packet.ShortTerm.RollingSummary == "" {
			return false, 0, 0
		}
		before := tokens.Estimate(packet.ShortTerm)
		packet.ShortTerm.RollingSummary = ""
		after := tokens.Estimate(packet.ShortTerm)
		return true, before, after
	}
	before := tokens.Estimate(packet.ShortTerm)
	packet.ShortTerm.RollingSummary = strings.Join(paragraphs[:len(paragraphs)-1], "\n\n")
	after := tokens.Estimate(packet.ShortTerm)
	return true, before, after
}
