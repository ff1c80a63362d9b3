package consolidation

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/oceanbase/engram/llm"
	"github.com/oceanbase/engram/model"
	"github.com/oceanbase/engram/storage"
)

// Runner drives the offline promotion of validated insights into durable
// facts, procedures, or episodes. It never runs on BuildMemoryPacket's hot
// path; a caller schedules it out-of-band (e.g. cmd/engram-consolidate).
type Runner struct {
	store   storage.Store
	promote *promoter
	idNode  *snowflake.Node
	now     func() time.Time
}

// RunnerOption configures a Runner at construction time.
type RunnerOption func(*Runner)

// WithClock overrides the Runner's time source, for tests.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithPrompt overrides the default classification prompt.
func WithPrompt(prompt string) RunnerOption {
	return func(r *Runner) {
		r.promote.customPrompt = prompt
	}
}

// NewRunner constructs a Runner bound to store and an LLM provider.
func NewRunner(store storage.Store, provider llm.Provider, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:   store,
		promote: newPromoter(provider),
		now:     time.Now,
	}
	if node, err := snowflake.NewNode(3); err == nil {
		r.idNode = node
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result summarizes one Run's outcome.
type Result struct {
	Considered int
	Promoted   int
	Skipped    int
	Failed     int
}

// Run lists every validated insight in scope, classifies each with the
// LLM, and writes the promoted rows back through store. It deliberately
// does not mutate the source insight's validation_state — spec.md gives
// consolidation no mutation right over insights beyond reading them, so a
// promoted insight simply expires on its own expires_at like any other.
func (r *Runner) Run(ctx context.Context, scope model.Scope) (Result, error) {
	scope = scope.Normalize()
	now := r.now()

	insights, err := r.store.ListInsights(ctx, scope, model.InsightFilter{
		Now:               now,
		ValidationStateIn: []model.ValidationState{model.ValidationValidated},
	})
	if err != nil {
		return Result{}, fmt.Errorf("consolidation: list validated insights: %w", err)
	}

	var result Result
	for _, insight := range insights {
		result.Considered++
		if err := ctx.Err(); err != nil {
			return result, err
		}

		decision, err := r.promote.classify(ctx, insight)
		if err != nil {
			result.Failed++
			continue
		}

		if err := r.apply(ctx, scope, insight, decision); err != nil {
			result.Failed++
			continue
		}
		if decision.Kind == PromoteNone {
			result.Skipped++
			continue
		}
		result.Promoted++
	}

	return result, nil
}

// apply writes the promoted row implied by decision. A PromoteNone
// decision is a deliberate no-op.
func (r *Runner) apply(ctx context.Context, scope model.Scope, insight model.Insight, decision promotionDecision) error {
	switch decision.Kind {
	case PromoteFact:
		if decision.FactKey == "" {
			return fmt.Errorf("consolidation: promoted fact missing fact_key for insight %s", insight.ID)
		}
		return r.store.UpsertFact(ctx, scope, model.Fact{
			FactID:     r.newID(),
			FactKey:    decision.FactKey,
			Value:      decision.Value,
			Status:     model.FactActive,
			Confidence: insight.Confidence,
			Sources:    append([]string{"insight:" + insight.ID}, insight.Sources...),
			ScopeLevel: model.ScopeLevelUser,
		})
	case PromoteProcedure:
		if decision.TaskType == "" {
			return fmt.Errorf("consolidation: promoted procedure missing task_type for insight %s", insight.ID)
		}
		return r.store.UpsertProcedure(ctx, scope, model.Procedure{
			ProcedureID: r.newID(),
			TaskType:    decision.TaskType,
			Content:     decision.Content,
			Priority:    decision.Priority,
			Sources:     append([]string{"insight:" + insight.ID}, insight.Sources...),
		})
	case PromoteEpisode:
		if decision.Summary == "" {
			return fmt.Errorf("consolidation: promoted episode missing summary for insight %s", insight.ID)
		}
		now := r.now()
		return r.store.AppendEpisode(ctx, scope, model.Episode{
			EpisodeID:        r.newID(),
			TimeRange:        model.TimeRange{Start: now, End: &now},
			Summary:          decision.Summary,
			Highlights:       decision.Highlights,
			Sources:          append([]string{"insight:" + insight.ID}, insight.Sources...),
			CompressionLevel: model.CompressionMilestone,
		})
	case PromoteNone:
		return nil
	default:
		return fmt.Errorf("consolidation: unknown promotion kind %q for insight %s", decision.Kind, insight.ID)
	}
}

func (r *Runner) newID() string {
	if r.idNode == nil {
		return "consolidation-" + time.Now().UTC().Format("20060102T150405.000000000")
	}
	return r.idNode.Generate().String()
}
