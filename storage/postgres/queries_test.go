package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/engram/model"
	"github.com/oceanbase/engram/storage"
	pgstore "github.com/oceanbase/engram/storage/postgres"
)

// setupPostgresTest connects against a real PostgreSQL instance configured
// through the environment (or a .env file at the repo root). It skips the
// test rather than failing when no server is reachable, mirroring how the
// suite treats every non-embedded backend.
func setupPostgresTest(t *testing.T) (storage.Store, func()) {
	t.Helper()
	envPath := filepath.Join("..", "..", ".env")
	_ = godotenv.Load(envPath)

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	portStr := os.Getenv("POSTGRES_PORT")
	if portStr == "" {
		portStr = "5432"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Skipf("skipping postgres test: invalid POSTGRES_PORT: %s", portStr)
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		t.Skip("skipping postgres test: POSTGRES_PASSWORD not set")
	}
	dbName := os.Getenv("POSTGRES_DATABASE")
	if dbName == "" {
		dbName = "engram_test"
	}

	store, err := pgstore.NewClient(&pgstore.Config{
		Host: host, Port: port, User: user, Password: password, DBName: dbName, SSLMode: "disable",
	})
	if err != nil {
		t.Skipf("skipping postgres test: failed to connect: %v", err)
	}

	cleanup := func() { _ = store.Close() }
	return store, cleanup
}

func TestPostgresAppendEvent_DuplicateRejected(t *testing.T) {
	store, cleanup := setupPostgresTest(t)
	defer cleanup()
	ctx := context.Background()
	scope := model.Scope{TenantID: "default", UserID: "u1", AgentID: "a1", SessionID: "s1", RunID: "r1"}

	ev := model.Event{EventID: "pg-ev1", Scope: scope, Ts: time.Now().UTC(), Kind: model.EventMessage,
		Payload: map[string]interface{}{"text": "hi"}}
	require.NoError(t, store.AppendEvent(ctx, ev))

	err := store.AppendEvent(ctx, ev)
	assert.ErrorIs(t, err, storage.ErrDuplicateEvent)
}

func TestPostgresUpsertFact_DemotesPriorActive(t *testing.T) {
	store, cleanup := setupPostgresTest(t)
	defer cleanup()
	ctx := context.Background()
	scope := model.Scope{TenantID: "default", UserID: "u2", AgentID: "a1", SessionID: "s1", RunID: "r1"}

	require.NoError(t, store.UpsertFact(ctx, scope, model.Fact{
		FactID: "pg-f1", FactKey: "tz", Value: "UTC", Status: model.FactActive, Confidence: 0.8, ScopeLevel: model.ScopeLevelUser,
	}))
	require.NoError(t, store.UpsertFact(ctx, scope, model.Fact{
		FactID: "pg-f2", FactKey: "tz", Value: "PST", Status: model.FactActive, Confidence: 0.9, ScopeLevel: model.ScopeLevelUser,
	}))

	facts, err := store.ListFacts(ctx, scope, model.FactFilter{
		StatusIn: []model.FactStatus{model.FactActive, model.FactDeprecated}, Now: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "pg-f2", facts[0].FactID)
	assert.Equal(t, model.FactActive, facts[0].Status)
	assert.Equal(t, "pg-f1", facts[1].FactID)
	assert.Equal(t, model.FactDeprecated, facts[1].Status)
}
