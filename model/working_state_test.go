package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oceanbase/engram/model"
)

func TestWorkingStatePatch_Apply_BumpsVersionWhenTouched(t *testing.T) {
	current := model.NewWorkingState()
	goal := "ship the release"
	patch := model.WorkingStatePatch{Goal: &goal}

	next := patch.Apply(current)
	assert.Equal(t, "ship the release", next.Goal)
	assert.Equal(t, uint32(1), next.StateVersion)
}

func TestWorkingStatePatch_Apply_NoopLeavesVersionUnchanged(t *testing.T) {
	current := model.NewWorkingState()
	current.StateVersion = 3

	next := model.WorkingStatePatch{}.Apply(current)
	assert.Equal(t, uint32(3), next.StateVersion)
	assert.Equal(t, current, next)
}

func TestWorkingStatePatch_Apply_LeavesUntouchedFieldsAlone(t *testing.T) {
	current := model.NewWorkingState()
	current.Goal = "original goal"

	patch := model.WorkingStatePatch{Risks: []string{"budget overrun"}}
	next := patch.Apply(current)

	assert.Equal(t, "original goal", next.Goal)
	assert.Equal(t, []string{"budget overrun"}, next.Risks)
}
