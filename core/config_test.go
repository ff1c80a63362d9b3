package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/engram/core"
)

func validConfig() *core.Config {
	return &core.Config{
		Storage: core.StorageConfig{Provider: "sqlite", Path: ":memory:"},
		Policy:  core.DefaultPolicyConfig(),
	}
}

func TestConfig_Validate_AcceptsDefault(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Provider = "dynamodb"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestConfig_Validate_RejectsSQLiteWithoutPath(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Path = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestConfig_Validate_RejectsPostgresWithoutHost(t *testing.T) {
	cfg := &core.Config{
		Storage: core.StorageConfig{Provider: "postgres"},
		Policy:  core.DefaultPolicyConfig(),
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestConfig_Validate_RejectsOutOfRangeConfidenceFloor(t *testing.T) {
	cfg := validConfig()
	cfg.Policy.ConfidenceFloor = 1.5
	err := cfg.Validate()
	require.Error(t, err)
}

func TestConfig_Validate_RejectsNegativeDeadline(t *testing.T) {
	cfg := validConfig()
	cfg.Policy.DeadlineMS = -1
	err := cfg.Validate()
	require.Error(t, err)
}

func TestConfig_Validate_RejectsZeroMaxTotalCandidates(t *testing.T) {
	cfg := validConfig()
	cfg.Policy.MaxTotalCandidates = 0
	err := cfg.Validate()
	require.Error(t, err)
}

func TestConfig_Validate_RejectsConsolidationWithoutProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Consolidation = &core.ConsolidationConfig{}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestPolicyConfig_ToRecallPolicy_RoundTrips(t *testing.T) {
	pc := core.DefaultPolicyConfig()
	rp := pc.ToRecallPolicy()
	assert.Equal(t, pc.MaxFacts, rp.MaxFacts)
	assert.Equal(t, pc.DeadlineMS, rp.DeadlineMS)
	assert.Equal(t, "default", rp.PolicyID)
}
