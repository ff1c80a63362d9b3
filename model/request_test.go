package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oceanbase/engram/model"
)

func TestBuildRequest_ResolvedPolicy_FallsBackToDefault(t *testing.T) {
	req := model.BuildRequest{}
	assert.Equal(t, model.DefaultPolicy(), req.ResolvedPolicy())
}

func TestBuildRequest_ResolvedPolicy_UsesOverride(t *testing.T) {
	custom := model.RecallPolicy{PolicyID: "custom"}
	req := model.BuildRequest{Policy: &custom}
	assert.Equal(t, "custom", req.ResolvedPolicy().PolicyID)
}

func TestBuildRequest_ResolvedBudget_FallsBackToDefault(t *testing.T) {
	req := model.BuildRequest{}
	assert.Equal(t, model.DefaultBudget(), req.ResolvedBudget())
}

func TestBuildRequest_ResolvedNow_FallsBackToWallClock(t *testing.T) {
	req := model.BuildRequest{}
	assert.WithinDuration(t, time.Now().UTC(), req.ResolvedNow(), time.Second)
}

func TestBuildRequest_ResolvedNow_UsesInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	req := model.BuildRequest{Now: fixed}
	assert.Equal(t, fixed, req.ResolvedNow())
}
