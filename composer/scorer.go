package composer

import (
	"fmt"
	"time"

	"github.com/oceanbase/engram/model"
)

// Sections holds the per-memory-type candidate lists after loading and
// before overflow trimming. Each slice is already sorted by its type's
// defensive order (see loaders.go); the scorer only ever removes from the
// tail, never reorders.
type Sections struct {
	Facts      []model.Fact
	Episodes   []model.Episode
	Procedures []model.Procedure
	Insights   []model.Insight
}

func (s Sections) total() int {
	return len(s.Facts) + len(s.Episodes) + len(s.Procedures) + len(s.Insights)
}

// TrimOverflow applies the Overflow Ladder (spec §4.3) in order until the
// candidate count is within policy.MaxTotalCandidates, or every step has
// been exhausted. It mutates sections in place and returns the
// degradations/omissions/filters to fold into the packet's explain trace.
func TrimOverflow(sections *Sections, policy model.RecallPolicy, now time.Time) ([]model.Degradation, []model.Omission, map[string]string) {
	var degradations []model.Degradation
	var omissions []model.Omission
	filters := map[string]string{}

	limit := policy.MaxTotalCandidates
	if limit <= 0 {
		return degradations, omissions, filters
	}
	if sections.total() <= limit {
		return degradations, omissions, filters
	}

	// Step 1: reduce per-section Top-K proportionally to the overshoot.
	before := sections.total()
	scale := float64(limit) / float64(before)
	if n := scaleLen(len(sections.Facts), scale); n < len(sections.Facts) {
		sections.Facts = sections.Facts[:n]
		degradations = append(degradations, model.Degradation{Section: "facts", Action: "reduce_top_k", Reason: "max_total_candidates exceeded"})
	}
	if n := scaleLen(len(sections.Episodes), scale); n < len(sections.Episodes) {
		sections.Episodes = sections.Episodes[:n]
		degradations = append(degradations, model.Degradation{Section: "episodes", Action: "reduce_top_k", Reason: "max_total_candidates exceeded"})
	}
	if n := scaleLen(len(sections.Procedures), scale); n < len(sections.Procedures) {
		sections.Procedures = sections.Procedures[:n]
		degradations = append(degradations, model.Degradation{Section: "procedures", Action: "reduce_top_k", Reason: "max_total_candidates exceeded"})
	}
	if n := scaleLen(len(sections.Insights), scale); n < len(sections.Insights) {
		sections.Insights = sections.Insights[:n]
		degradations = append(degradations, model.Degradation{Section: "insights", Action: "reduce_top_k", Reason: "max_total_candidates exceeded"})
	}
	filters["overflow_step1_reduce_top_k"] = fmt.Sprintf("scale=%.3f", scale)
	if sections.total() <= limit {
		return degradations, omissions, filters
	}

	// Step 2: tighten the episode time window, halving down to 1 day.
	window := policy.EpisodeTimeWindowDays
	if window <= 0 {
		window = 30
	}
	for window > 1 && sections.total() > limit {
		window = window / 2
		if window < 1 {
			window = 1
		}
		kept := sections.Episodes[:0:0]
		for _, ep := range sections.Episodes {
			ageDays := now.Sub(ep.TimeRange.Start).Hours() / 24
			if ageDays <= float64(window) {
				kept = append(kept, ep)
			}
		}
		if len(kept) < len(sections.Episodes) {
			sections.Episodes = kept
			degradations = append(degradations, model.Degradation{Section: "episodes", Action: "tighten_time_window", Reason: fmt.Sprintf("window narrowed to %dd", window)})
		}
	}
	filters["overflow_step2_time_window_days"] = fmt.Sprintf("%d", window)
	if sections.total() <= limit {
		return degradations, omissions, filters
	}

	// Step 3: prefer compressed episodes over raw ones — drop raw-level
	// episodes from the tail first.
	for sections.total() > limit {
		idx := lastIndexOfCompression(sections.Episodes, model.CompressionRaw)
		if idx < 0 {
			break
		}
		dropped := sections.Episodes[idx]
		sections.Episodes = append(sections.Episodes[:idx], sections.Episodes[idx+1:]...)
		omissions = append(omissions, model.Omission{Item: "episode:" + dropped.EpisodeID, Reason: "compression_promotion_preferred"})
		degradations = append(degradations, model.Degradation{Section: "episodes", Action: "prefer_compressed", Reason: "raw episode dropped ahead of phase_summary/milestone/theme"})
	}
	if sections.total() <= limit {
		return degradations, omissions, filters
	}

	// Step 4: drop facts/insights below confidence_floor.
	floor := policy.ConfidenceFloor
	if sections.total() > limit {
		sections.Facts, omissions, degradations = dropBelowFloorFacts(sections.Facts, floor, omissions, degradations)
	}
	if sections.total() > limit {
		sections.Insights, omissions, degradations = dropBelowFloorInsights(sections.Insights, floor, omissions, degradations)
	}
	if sections.total() <= limit {
		return degradations, omissions, filters
	}

	// Step 5: omit the lowest-priority memory type entirely. Insights are
	// ephemeral and least load-bearing for downstream prompting, followed by
	// episodes, then procedures; facts are never omitted by this step since
	// they are the most durable claims.
	if sections.total() > limit && len(sections.Insights) > 0 {
		omissions = append(omissions, model.Omission{Item: "insights", Reason: "section_omitted_overflow"})
		degradations = append(degradations, model.Degradation{Section: "insights", Action: "omit_section", Reason: "max_total_candidates exceeded"})
		sections.Insights = nil
	}
	if sections.total() > limit && len(sections.Episodes) > 0 {
		omissions = append(omissions, model.Omission{Item: "episodes", Reason: "section_omitted_overflow"})
		degradations = append(degradations, model.Degradation{Section: "episodes", Action: "omit_section", Reason: "max_total_candidates exceeded"})
		sections.Episodes = nil
	}
	if sections.total() > limit && len(sections.Procedures) > 0 {
		omissions = append(omissions, model.Omission{Item: "procedures", Reason: "section_omitted_overflow"})
		degradations = append(degradations, model.Degradation{Section: "procedures", Action: "omit_section", Reason: "max_total_candidates exceeded"})
		sections.Procedures = nil
	}

	return degradations, omissions, filters
}

func scaleLen(n int, scale float64) int {
	if scale >= 1 {
		return n
	}
	scaled := int(float64(n) * scale)
	if scaled < 0 {
		scaled = 0
	}
	return scaled
}

func lastIndexOfCompression(episodes []model.Episode, level model.CompressionLevel) int {
	for i := len(episodes) - 1; i >= 0; i-- {
		if episodes[i].CompressionLevel == level {
			return i
		}
	}
	return -1
}

func dropBelowFloorFacts(facts []model.Fact, floor float64, omissions []model.Omission, degradations []model.Degradation) ([]model.Fact, []model.Omission, []model.Degradation) {
	kept := facts[:0:0]
	for _, f := range facts {
		if f.Confidence < floor {
			omissions = append(omissions, model.Omission{Item: "fact:" + f.FactID, Reason: "below_confidence_floor"})
			degradations = append(degradations, model.Degradation{Section: "facts", Action: "drop_below_floor", Reason: fmt.Sprintf("confidence < %.2f", floor)})
			continue
		}
		kept = append(kept, f)
	}
	return kept, omissions, degradations
}

func dropBelowFloorInsights(insights []model.Insight, floor float64, omissions []model.Omission, degradations []model.Degradation) ([]model.Insight, []model.Omission, []model.Degradation) {
	kept := insights[:0:0]
	for _, ins := range insights {
		if ins.Confidence < floor {
			omissions = append(omissions, model.Omission{Item: "insight:" + ins.ID, Reason: "below_confidence_floor"})
			degradations = append(degradations, model.Degradation{Section: "insights", Action: "drop_below_floor", Reason: fmt.Sprintf("confidence < %.2f", floor)})
			continue
		}
		kept = append(kept, ins)
	}
	return kept, omissions, degradations
}
