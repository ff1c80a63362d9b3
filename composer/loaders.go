// Package composer implements the deterministic assembly pipeline spec.md
// calls out as Engram's hard core: candidate loaders, the scorer/trimmer,
// the budget controller, and the packet assembler (spec §4). Composer code
// never type-switches on the concrete storage.Store implementation — it
// relies solely on the Store capability interface's pushdown guarantees.
package composer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oceanbase/engram/model"
	"github.com/oceanbase/engram/storage"
)

// episodeAgeTier is one row of the episode loader's tier rules (spec §4.2):
// <=7d include raw, <=30d include phase_summary, <=90d include milestone.
// Each tier's window is pushed down as Since/Until so the backend never
// returns rows the tier wouldn't accept in the first place.
type episodeAgeTier struct {
	maxAgeDays int
	levels     []model.CompressionLevel
}

var episodeAgeTiers = []episodeAgeTier{
	{maxAgeDays: 7, levels: []model.CompressionLevel{model.CompressionRaw, model.CompressionPhaseSummary, model.CompressionMilestone, model.CompressionTheme}},
	{maxAgeDays: 30, levels: []model.CompressionLevel{model.CompressionPhaseSummary, model.CompressionMilestone, model.CompressionTheme}},
	{maxAgeDays: 90, levels: []model.CompressionLevel{model.CompressionMilestone, model.CompressionTheme}},
}

// loadWorkingState reads the single working-state row for scope, returning
// the run-start default when none exists (storage.ErrNotFound / nil,nil).
// Per spec §4.5's failure semantics, this is the one loader whose error
// surfaces to the caller rather than being converted to an omission.
func loadWorkingState(ctx context.Context, store storage.Store, scope model.Scope) (model.WorkingState, error) {
	ws, err := store.GetWorkingState(ctx, scope)
	if errors.Is(err, storage.ErrNotFound) {
		return model.NewWorkingState(), nil
	}
	if err != nil {
		return model.WorkingState{}, err
	}
	if ws == nil {
		return model.NewWorkingState(), nil
	}
	return *ws, nil
}

// loadSTMSummary reads the session's STM summary row, defaulting to the
// empty summary when none exists yet.
func loadSTMSummary(ctx context.Context, store storage.Store, scope model.Scope) (model.STMSummary, error) {
	stm, err := store.GetSTMSummary(ctx, scope)
	if err != nil {
		return model.STMSummary{}, err
	}
	if stm == nil {
		return model.NewSTMSummary(), nil
	}
	return *stm, nil
}

// loadFacts issues the facts candidate query: status=active, validity
// window bounded by now, limit = policy.MaxFacts. The backend enforces
// ordering (confidence desc, fact_id asc); this loader re-sorts as a
// defensive check per §4.2, breaking ties by fact_id.
func loadFacts(ctx context.Context, store storage.Store, scope model.Scope, policy model.RecallPolicy, now time.Time) ([]model.Fact, error) {
	facts, err := store.ListFacts(ctx, scope, model.FactFilter{
		StatusIn: []model.FactStatus{model.FactActive},
		Now:      now,
		Limit:    policy.MaxFacts,
	})
	if err != nil {
		return nil, err
	}
	sortFactsDefensive(facts)
	return facts, nil
}

func sortFactsDefensive(facts []model.Fact) {
	for i := 1; i < len(facts); i++ {
		for j := i; j > 0; j-- {
			if !factLess(facts[j], facts[j-1]) {
				break
			}
			facts[j], facts[j-1] = facts[j-1], facts[j]
		}
	}
}

// factLess implements (confidence desc, fact_id asc).
func factLess(a, b model.Fact) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.FactID < b.FactID
}

// loadEpisodes issues one query per age tier (§4.2), pushing each tier's
// Since/Until window, eligible CompressionIn levels, and policy.MaxEpisodes
// limit down to the backend, plus a separate cue-match query (also
// limit-bounded) for episodes older than the oldest tier. Per §4.1's
// pushdown requirement, no query is left unbounded: each backend call
// returns at most policy.MaxEpisodes rows on its own, even though the
// tag/entity filters it applies for the cue-match case are necessarily
// evaluated in-memory (they aren't indexed columns) before that per-call
// limit is enforced. It then computes RecencyScore and sorts by
// (recency_score desc, episode_id asc).
//
// A single Since-bounded query cannot express this: the backend's Since
// filter and CompressionIn filter are AND-combined (confirmed against
// storage/{sqlite,postgres,mysql}/queries.go), so one query with a 30-day
// Since bound would silently exclude every milestone-tier episode between
// 31 and 90 days old rather than ever asking the backend for them.
func loadEpisodes(ctx context.Context, store storage.Store, scope model.Scope, req model.BuildRequest, policy model.RecallPolicy, now time.Time) ([]model.Episode, error) {
	var tagsAny, entitiesAny []string
	if req.Cues != nil {
		tagsAny = req.Cues.Tags
		entitiesAny = req.Cues.Entities
	}

	tau := policy.RecencyTauDays
	if tau <= 0 {
		tau = 14
	}

	byID := map[string]model.Episode{}

	tierSince := 0
	for _, tier := range episodeAgeTiers {
		lowerBound := now.AddDate(0, 0, -tier.maxAgeDays)
		upperBound := now.AddDate(0, 0, -tierSince)
		filter := model.EpisodeFilter{
			Since:         &lowerBound,
			CompressionIn: tier.levels,
			Limit:         policy.MaxEpisodes,
		}
		if tierSince > 0 {
			filter.Until = &upperBound
		}
		episodes, err := store.ListEpisodes(ctx, scope, filter)
		if err != nil {
			return nil, err
		}
		for _, ep := range episodes {
			byID[ep.EpisodeID] = ep
		}
		tierSince = tier.maxAgeDays
	}

	// Episodes older than the oldest tier are excluded by default; they are
	// only eligible when the request's cues (tags/entities) match, per §4.2.
	if len(tagsAny) > 0 || len(entitiesAny) > 0 {
		oldestBound := now.AddDate(0, 0, -episodeAgeTiers[len(episodeAgeTiers)-1].maxAgeDays)
		cueMatched, err := store.ListEpisodes(ctx, scope, model.EpisodeFilter{
			Until:       &oldestBound,
			TagsAny:     tagsAny,
			EntitiesAny: entitiesAny,
			Limit:       policy.MaxEpisodes,
		})
		if err != nil {
			return nil, err
		}
		for _, ep := range cueMatched {
			if anyOverlap(ep.Tags, tagsAny) || anyOverlap(ep.Entities, entitiesAny) {
				byID[ep.EpisodeID] = ep
			}
		}
	}

	filtered := make([]model.Episode, 0, len(byID))
	for _, ep := range byID {
		ageDays := now.Sub(ep.TimeRange.Start).Hours() / 24
		score := recencyScore(ageDays, tau)
		ep.RecencyScore = &score
		filtered = append(filtered, ep)
	}

	sortEpisodesByRecency(filtered)
	if policy.MaxEpisodes > 0 && len(filtered) > policy.MaxEpisodes {
		filtered = filtered[:policy.MaxEpisodes]
	}
	return filtered, nil
}

func anyOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func sortEpisodesByRecency(episodes []model.Episode) {
	for i := 1; i < len(episodes); i++ {
		for j := i; j > 0; j-- {
			if !episodeLess(episodes[j], episodes[j-1]) {
				break
			}
			episodes[j], episodes[j-1] = episodes[j-1], episodes[j]
		}
	}
}

// episodeLess implements (recency_score desc, episode_id asc).
func episodeLess(a, b model.Episode) bool {
	as, bs := 0.0, 0.0
	if a.RecencyScore != nil {
		as = *a.RecencyScore
	}
	if b.RecencyScore != nil {
		bs = *b.RecencyScore
	}
	if as != bs {
		return as > bs
	}
	return a.EpisodeID < b.EpisodeID
}

// loadProcedures issues the procedures candidate query, defaulting
// task_type to "generic" when the request does not name one.
func loadProcedures(ctx context.Context, store storage.Store, scope model.Scope, req model.BuildRequest, policy model.RecallPolicy) ([]model.Procedure, error) {
	taskType := req.TaskType
	if taskType == "" {
		taskType = "generic"
	}
	return store.ListProcedures(ctx, scope, model.ProcedureFilter{
		TaskType: taskType,
		Limit:    policy.MaxProceduresPerTaskType,
	})
}

// loadInsights issues the insights candidate query, restricting
// validation_state per purpose (spec §4.2, §4.5's state machine).
func loadInsights(ctx context.Context, store storage.Store, scope model.Scope, req model.BuildRequest, policy model.RecallPolicy, now time.Time) ([]model.Insight, error) {
	var states []model.ValidationState
	if req.Purpose == model.PurposeResponder {
		states = []model.ValidationState{model.ValidationValidated}
	} else {
		states = []model.ValidationState{model.ValidationUnvalidated, model.ValidationTesting, model.ValidationValidated}
	}

	return store.ListInsights(ctx, scope, model.InsightFilter{
		Now:               now,
		ValidationStateIn: states,
		Limit:             policy.MaxInsights,
	})
}

// loadConversationWindow returns the last policy.ConversationWindowSize
// message-kind events for scope, oldest first, converted to
// model.ConversationTurn. Grounded on
// original_source/crates/engram-store/src/composer.rs's
// build_conversation_window/event_to_turn/parse_event_payload: the backend's
// (timestamp desc, event_id asc) ordering combined with Limit already
// returns the most recent N message events, so this loader only needs to
// reverse them back into chronological order.
func loadConversationWindow(ctx context.Context, store storage.Store, scope model.Scope, policy model.RecallPolicy) ([]model.ConversationTurn, error) {
	size := policy.ConversationWindowSize
	if size <= 0 {
		return []model.ConversationTurn{}, nil
	}

	events, err := store.ListEvents(ctx, scope, model.EventFilter{
		KindIn: []model.EventKind{model.EventMessage},
		Limit:  size,
	})
	if err != nil {
		return nil, err
	}

	turns := make([]model.ConversationTurn, 0, len(events))
	for _, ev := range events {
		turn, ok := eventToTurn(ev)
		if !ok {
			continue
		}
		turns = append(turns, turn)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// eventToTurn converts a message event's freeform payload into a
// ConversationTurn, accepting either a bare "content"/"text" string field or
// an explicit "role" alongside it. Payloads with neither field are skipped.
func eventToTurn(ev model.Event) (model.ConversationTurn, bool) {
	if ev.Kind != model.EventMessage {
		return model.ConversationTurn{}, false
	}

	content, ok := ev.Payload["content"].(string)
	if !ok {
		content, ok = ev.Payload["text"].(string)
	}
	if !ok {
		return model.ConversationTurn{}, false
	}

	role := model.RoleUser
	if r, ok := ev.Payload["role"].(string); ok {
		switch model.Role(r) {
		case model.RoleUser, model.RoleAssistant, model.RoleTool:
			role = model.Role(r)
		}
	}

	evidenceID := ev.EventID
	return model.ConversationTurn{Role: role, Content: content, EvidenceID: &evidenceID}, true
}

// wrapLoaderErr formats a loader failure for explain.omitted (spec §4.2).
func wrapLoaderErr(section string, err error) error {
	return fmt.Errorf("%s: %w", section, err)
}
