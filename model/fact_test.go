package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oceanbase/engram/model"
)

func TestValidity_Contains_NilBoundsAlwaysTrue(t *testing.T) {
	v := model.Validity{}
	assert.True(t, v.Contains(time.Now()))
}

func TestValidity_Contains_RespectsValidFrom(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v := model.Validity{ValidFrom: &from}
	assert.False(t, v.Contains(from.Add(-time.Hour)))
	assert.True(t, v.Contains(from.Add(time.Hour)))
}

func TestValidity_Contains_RespectsValidTo(t *testing.T) {
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v := model.Validity{ValidTo: &to}
	assert.True(t, v.Contains(to.Add(-time.Hour)))
	assert.False(t, v.Contains(to.Add(time.Hour)))
}
