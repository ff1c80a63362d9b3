// Command engram-example demonstrates Engram's write paths and the
// composer's read path (BuildMemoryPacket) against a local SQLite store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/oceanbase/engram/core"
	"github.com/oceanbase/engram/model"
)

func main() {
	fmt.Println("Engram example: build + write paths")

	cfg := &core.Config{
		Storage: core.StorageConfig{Provider: "sqlite", Path: "./engram-example.db"},
		Policy:  core.DefaultPolicyConfig(),
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

	ctx := context.Background()
	scope := model.Scope{TenantID: "acme", UserID: "u-1", AgentID: "agent-1", SessionID: "sess-1", RunID: "run-1"}

	fmt.Println("\nWriting a fact, a procedure, and an insight...")

	fact, err := client.UpsertFact(ctx, scope, model.Fact{
		FactKey:    "user.pref.editor",
		Value:      "vim",
		Status:     model.FactActive,
		Confidence: 0.95,
		ScopeLevel: model.ScopeLevelUser,
	})
	if err != nil {
		log.Fatalf("failed to upsert fact: %v", err)
	}
	fmt.Printf("✓ fact %s: %s = %v\n", fact.FactID, fact.FactKey, fact.Value)

	procedure, err := client.UpsertProcedure(ctx, scope, model.Procedure{
		TaskType: "deploy",
		Content:  "run integration tests before promoting a build to production",
		Priority: 10,
	})
	if err != nil {
		log.Fatalf("failed to upsert procedure: %v", err)
	}
	fmt.Printf("✓ procedure %s for task_type=%s\n", procedure.ProcedureID, procedure.TaskType)

	insight, err := client.UpsertInsight(ctx, scope, model.Insight{
		Type:            model.InsightPattern,
		Statement:       "deploys on Fridays correlate with rollbacks",
		Trigger:         model.TriggerSynthesis,
		Confidence:      0.8,
		ValidationState: model.ValidationValidated,
		ExpiresAt:       model.RunEndSentinel,
	})
	if err != nil {
		log.Fatalf("failed to upsert insight: %v", err)
	}
	fmt.Printf("✓ insight %s: %s\n", insight.ID, insight.Statement)

	fmt.Println("\nBuilding a planner memory packet...")
	packet, err := client.BuildMemoryPacket(ctx, model.BuildRequest{
		Scope:    scope,
		Purpose:  model.PurposePlanner,
		TaskType: "deploy",
	})
	if err != nil {
		log.Fatalf("failed to build memory packet: %v", err)
	}

	encoded, err := json.MarshalIndent(packet, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode packet: %v", err)
	}
	fmt.Println(string(encoded))
}
