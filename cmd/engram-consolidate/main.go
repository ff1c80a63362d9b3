// Command engram-consolidate runs the offline consolidation producer once
// against a configured storage backend and LLM provider, promoting any
// validated insights into facts, procedures, or episodes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/oceanbase/engram/consolidation"
	"github.com/oceanbase/engram/core"
	"github.com/oceanbase/engram/llm"
	"github.com/oceanbase/engram/llm/anthropic"
	"github.com/oceanbase/engram/llm/deepseek"
	"github.com/oceanbase/engram/llm/ollama"
	"github.com/oceanbase/engram/llm/openai"
	"github.com/oceanbase/engram/llm/qwen"
	"github.com/oceanbase/engram/model"
)

func main() {
	var (
		tenantID = flag.String("tenant", "default", "tenant_id to consolidate")
		userID   = flag.String("user", "", "user_id to consolidate")
		agentID  = flag.String("agent", "", "agent_id to consolidate")
	)
	flag.Parse()

	cfg, err := core.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Consolidation == nil {
		log.Fatalf("no consolidation LLM provider configured (set CONSOLIDATION_LLM_PROVIDER)")
	}

	client, err := core.NewClient(cfg)
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("warning: failed to close client: %v", err)
		}
	}()

	provider, err := initLLM(*cfg.Consolidation)
	if err != nil {
		log.Fatalf("failed to init LLM provider: %v", err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			log.Printf("warning: failed to close LLM provider: %v", err)
		}
	}()

	runner := consolidation.NewRunner(client.Store(), provider)

	scope := model.Scope{TenantID: *tenantID, UserID: *userID, AgentID: *agentID}
	fmt.Printf("Consolidating insights for tenant=%s user=%s agent=%s...\n", *tenantID, *userID, *agentID)

	result, err := runner.Run(context.Background(), scope)
	if err != nil {
		log.Fatalf("consolidation run failed: %v", err)
	}

	fmt.Printf("Considered %d insights: %d promoted, %d skipped, %d failed\n",
		result.Considered, result.Promoted, result.Skipped, result.Failed)
}

// initLLM dispatches to the LLM provider named by cfg.Provider, mirroring
// core.initStorage's provider-switch idiom.
func initLLM(cfg core.ConsolidationConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(&openai.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "anthropic":
		return anthropic.NewClient(&anthropic.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "deepseek":
		return deepseek.NewClient(&deepseek.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "qwen":
		return qwen.NewClient(&qwen.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "ollama":
		return ollama.NewClient(&ollama.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	default:
		return nil, fmt.Errorf("unknown consolidation LLM provider %q", cfg.Provider)
	}
}
