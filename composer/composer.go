package composer

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/oceanbase/engram/model"
	"github.com/oceanbase/engram/storage"
	"github.com/oceanbase/engram/tokens"
)

// Composer runs the assembly pipeline of spec §4 against a storage.Store.
// It holds no per-build state; a single Composer is safe to reuse and share
// across concurrent Build calls (spec §5: "no global mutable state exists in
// the composer beyond the policy registry, which is read-only").
type Composer struct {
	store       storage.Store
	poolSize    int
	estimate    tokens.Estimator
	buildIDNode *snowflake.Node
}

// Option configures a Composer at construction time.
type Option func(*Composer)

// WithWorkerPoolSize overrides the default candidate-loader concurrency.
func WithWorkerPoolSize(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithEstimator overrides the default byte-count token estimator (spec
// §6.3's pluggability requirement).
func WithEstimator(estimate tokens.Estimator) Option {
	return func(c *Composer) {
		if estimate != nil {
			c.estimate = estimate
		}
	}
}

// New constructs a Composer bound to store.
func New(store storage.Store, opts ...Option) *Composer {
	c := &Composer{store: store, poolSize: 4, estimate: tokens.Estimate}
	for _, opt := range opts {
		opt(c)
	}
	if node, err := snowflake.NewNode(2); err == nil {
		c.buildIDNode = node
	}
	return c
}

// Build runs every candidate loader concurrently against a bounded worker
// pool, applies the overflow ladder, assembles the packet, enforces the
// token budget, and persists the build's explain/budget report for replay
// (spec §6.4 context_builds). It honors req.ResolvedPolicy().DeadlineMS,
// defaulting to 150ms (spec §5).
func (c *Composer) Build(ctx context.Context, req model.BuildRequest) (model.MemoryPacket, error) {
	policy := req.ResolvedPolicy()
	now := req.ResolvedNow()
	scope := req.Scope.Normalize()
	req.Scope = scope

	deadline := time.Duration(policy.DeadlineMS) * time.Millisecond
	buildCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var (
		mu                 sync.Mutex
		workingSt          model.WorkingState
		stmSummary         model.STMSummary
		sections           Sections
		deprecated         []model.Fact
		conversationWindow []model.ConversationTurn
		omissions          []model.Omission
		degradations       []model.Degradation
		wsErr              error
	)

	jobs := []func(){
		func() {
			ws, err := loadWorkingState(buildCtx, c.store, scope)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				wsErr = err
				return
			}
			workingSt = ws
		},
		func() {
			stm, err := loadSTMSummary(buildCtx, c.store, scope)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				omissions = append(omissions, model.Omission{Item: "short_term", Reason: err.Error()})
				stmSummary = model.NewSTMSummary()
				return
			}
			stmSummary = stm
		},
		func() {
			facts, err := loadFacts(buildCtx, c.store, scope, policy, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				omissions = append(omissions, model.Omission{Item: "facts", Reason: err.Error()})
				return
			}
			sections.Facts = facts
			if policy.ActiveFactsCeiling > 0 && len(facts) > policy.ActiveFactsCeiling {
				degradations = append(degradations, model.Degradation{
					Section: "facts",
					Action:  "warn_active_facts_ceiling",
					Reason:  "active fact count exceeds policy.active_facts_ceiling",
				})
			}
		},
		func() {
			dep, err := c.store.ListFacts(buildCtx, scope, model.FactFilter{
				StatusIn: []model.FactStatus{model.FactDeprecated},
				Now:      now,
				Limit:    policy.MaxFacts,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				deprecated = dep
			}
		},
		func() {
			episodes, err := loadEpisodes(buildCtx, c.store, scope, req, policy, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				omissions = append(omissions, model.Omission{Item: "episodes", Reason: err.Error()})
				return
			}
			sections.Episodes = episodes
		},
		func() {
			procedures, err := loadProcedures(buildCtx, c.store, scope, req, policy)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				omissions = append(omissions, model.Omission{Item: "procedures", Reason: err.Error()})
				return
			}
			sections.Procedures = procedures
		},
		func() {
			insights, err := loadInsights(buildCtx, c.store, scope, req, policy, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				omissions = append(omissions, model.Omission{Item: "insights", Reason: err.Error()})
				return
			}
			sections.Insights = insights
		},
	}

	if policy.IncludeConversationWindow {
		jobs = append(jobs, func() {
			turns, err := loadConversationWindow(buildCtx, c.store, scope, policy)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				omissions = append(omissions, model.Omission{Item: "conversation_window", Reason: err.Error()})
				return
			}
			conversationWindow = turns
		})
	}

	c.runPool(buildCtx, jobs)

	deadlineHit := buildCtx.Err() != nil

	if wsErr != nil {
		if buildCtx.Err() != nil {
			return model.MemoryPacket{}, &loaderFailure{op: "GetWorkingState", err: wsErr, deadline: true}
		}
		return model.MemoryPacket{}, &loaderFailure{op: "GetWorkingState", err: wsErr}
	}
	if deadlineHit {
		// Any section whose job goroutine hadn't recorded a result yet is
		// silently zero-valued; one build-level deadline omission (not one
		// per section) is recorded so the caller can see why the packet is
		// smaller than expected.
		mu.Lock()
		omissions = append(omissions, model.Omission{Item: "build", Reason: "deadline"})
		mu.Unlock()
	}

	conflicts := DetectFactConflicts(sections.Facts, deprecated)

	overflowDegradations, overflowOmissions, filters := TrimOverflow(&sections, policy, now)
	omissions = append(omissions, overflowOmissions...)

	packet := Assemble(req, now, workingSt, stmSummary, sections, conversationWindow, conflicts, omissions, filters)
	packet.BudgetReport.Degradations = append(packet.BudgetReport.Degradations, overflowDegradations...)

	report := ApplyBudget(&packet, req.ResolvedBudget(), c.estimate)
	report.Degradations = append(append(degradations, overflowDegradations...), report.Degradations...)
	packet.BudgetReport = report

	buildID := c.newBuildID()
	_ = c.store.RecordBuild(ctx, scope, buildID, packet.Explain, packet.BudgetReport)

	return packet, nil
}

// runPool fans jobs out across c.poolSize workers and waits for all of them
// to finish or the context to expire, whichever comes first (spec §5:
// "cancellation signalled via a cooperative token checked between loader
// completions").
func (c *Composer) runPool(ctx context.Context, jobs []func()) {
	poolSize := c.poolSize
	if poolSize <= 0 || poolSize > len(jobs) {
		poolSize = len(jobs)
	}

	queue := make(chan func(), len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				select {
				case <-ctx.Done():
					return
				default:
				}
				job()
			}
		}()
	}
	wg.Wait()
}

func (c *Composer) newBuildID() string {
	if c.buildIDNode == nil {
		return "build-" + time.Now().UTC().Format("20060102T150405.000000000")
	}
	return c.buildIDNode.Generate().String()
}

// loaderFailure is the error type surfaced when working-state retrieval
// itself fails (spec §4.5's one non-omittable loader failure).
type loaderFailure struct {
	op       string
	err      error
	deadline bool
}

func (l *loaderFailure) Error() string { return l.op + ": " + l.err.Error() }
func (l *loaderFailure) Unwrap() error { return l.err }

// IsDeadline reports whether the failure was caused by the build's deadline
// expiring before working state could be retrieved (spec §5's
// BuildError::Deadline case, as opposed to a plain storage error).
func (l *loaderFailure) IsDeadline() bool { return l.deadline }
