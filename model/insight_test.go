package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oceanbase/engram/model"
)

func TestInsight_ExpiresAtTime_RunEndSentinelIsUnresolved(t *testing.T) {
	i := model.Insight{ExpiresAt: model.RunEndSentinel}
	_, ok := i.ExpiresAtTime()
	assert.False(t, ok)
}

func TestInsight_ExpiresAtTime_EmptyIsUnresolved(t *testing.T) {
	i := model.Insight{}
	_, ok := i.ExpiresAtTime()
	assert.False(t, ok)
}

func TestInsight_ExpiresAtTime_ParsesRFC3339(t *testing.T) {
	i := model.Insight{ExpiresAt: "2026-06-01T00:00:00Z"}
	got, ok := i.ExpiresAtTime()
	assert.True(t, ok)
	assert.True(t, got.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestInsight_ExpiresAtTime_MalformedIsUnresolved(t *testing.T) {
	i := model.Insight{ExpiresAt: "not-a-time"}
	_, ok := i.ExpiresAtTime()
	assert.False(t, ok)
}
