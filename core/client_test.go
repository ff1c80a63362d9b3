package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/engram/core"
	"github.com/oceanbase/engram/model"
)

func newTestClient(t *testing.T) (*core.Client, func()) {
	t.Helper()
	client, err := core.NewClient(validConfig())
	require.NoError(t, err)
	return client, func() { _ = client.Close() }
}

func testScope() model.Scope {
	return model.Scope{TenantID: "default", UserID: "u1", AgentID: "a1", SessionID: "s1", RunID: "r1"}
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Provider = "nope"
	_, err := core.NewClient(cfg)
	require.Error(t, err)
}

func TestClient_UpsertAndListFacts_GeneratesIDWhenBlank(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	scope := testScope()
	fact, err := client.UpsertFact(context.Background(), scope, model.Fact{
		FactKey: "user.pref.editor", Value: "vim", Status: model.FactActive, Confidence: 0.9,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, fact.FactID)

	facts, err := client.ListFacts(context.Background(), scope, model.FactFilter{
		StatusIn: []model.FactStatus{model.FactActive},
	})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "user.pref.editor", facts[0].FactKey)
}

func TestClient_GetWorkingState_DefaultsWhenAbsent(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	ws, err := client.GetWorkingState(context.Background(), testScope())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ws.StateVersion)
}

func TestClient_BuildMemoryPacket_DelegatesToComposer(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	scope := testScope()
	packet, err := client.BuildMemoryPacket(context.Background(), model.BuildRequest{
		Scope:   scope,
		Purpose: model.PurposePlanner,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SchemaVersion, packet.Meta.SchemaVersion)
	assert.Equal(t, scope.Normalize(), packet.Meta.Scope)
}

func TestClient_AppendEvent_DuplicateIsReportedAsStorageDuplicate(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	scope := testScope()
	event := model.Event{EventID: "ev-1", Scope: scope}
	_, err := client.AppendEvent(context.Background(), event)
	require.NoError(t, err)

	_, err = client.AppendEvent(context.Background(), event)
	require.Error(t, err)

	var engramErr *core.EngramError
	require.ErrorAs(t, err, &engramErr)
	assert.Equal(t, core.KindStorageDuplicate, engramErr.Kind)
}
