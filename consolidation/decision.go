package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oceanbase/engram/llm"
	"github.com/oceanbase/engram/model"
)

// promoter classifies a validated insight against an LLM, retargeting the
// teacher's ADD/UPDATE/DELETE/NONE DecisionMaker pattern from memory
// deduplication onto insight promotion.
type promoter struct {
	llm          llm.Provider
	customPrompt string
}

func newPromoter(provider llm.Provider) *promoter {
	return &promoter{llm: provider}
}

// classify prompts the LLM to decide what insight should be promoted into.
func (p *promoter) classify(ctx context.Context, insight model.Insight) (promotionDecision, error) {
	prompt := p.customPrompt
	if prompt == "" {
		prompt = buildPrompt(insight)
	}

	messages := []llm.Message{{Role: "user", Content: prompt}}
	response, err := p.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		return promotionDecision{}, fmt.Errorf("consolidation: LLM classification failed: %w", err)
	}

	decision, err := parseDecision(response)
	if err != nil {
		return promotionDecision{}, fmt.Errorf("consolidation: parse classification: %w", err)
	}
	return decision, nil
}

// buildPrompt renders the classification prompt for insight, following the
// teacher's generateDecisionPrompt shape: context, then task, then a strict
// JSON output contract.
func buildPrompt(insight model.Insight) string {
	return fmt.Sprintf(`You are a memory consolidation assistant. Given a validated insight from an
agent's working memory, decide whether it should be promoted into a durable
fact, a repeatable procedure, an episode summary, or left alone.

# Insight
statement: %s
type: %s
trigger: %s
confidence: %.2f

# Task
Classify this insight using exactly one of:
- "fact": a durable claim about the user/tenant/agent that should persist
  independently of this run (e.g. a stated preference or attribute).
- "procedure": a repeatable action sequence worth reusing for a task_type.
- "episode": a narrative worth summarizing into long-term episodic memory.
- "none": the insight is too ephemeral or run-specific to promote.

## Output Format (JSON)
For "fact": {"kind":"fact","fact_key":"...","value":"..."}
For "procedure": {"kind":"procedure","task_type":"...","content":"...","priority":0}
For "episode": {"kind":"episode","summary":"...","highlights":["..."]}
For "none": {"kind":"none"}

Respond with exactly one JSON object and nothing else.`,
		insight.Statement, insight.Type, insight.Trigger, insight.Confidence)
}

// parseDecision parses the LLM's response into a promotionDecision, using
// the teacher's removeCodeBlocks + json.Unmarshal idiom.
func parseDecision(response string) (promotionDecision, error) {
	response = removeCodeBlocks(response)

	var decision promotionDecision
	if err := json.Unmarshal([]byte(response), &decision); err != nil {
		return promotionDecision{}, fmt.Errorf("invalid JSON response: %w", err)
	}
	if decision.Kind == "" {
		decision.Kind = PromoteNone
	}
	return decision, nil
}

// removeCodeBlocks strips ```json fencing the way the teacher's
// intelligence package does before parsing an LLM response as JSON.
func removeCodeBlocks(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}
