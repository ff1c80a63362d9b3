package tokens_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oceanbase/engram/tokens"
)

func TestEstimate_EmptyIsZero(t *testing.T) {
	assert.Equal(t, uint32(0), tokens.Estimate(""))
	assert.Equal(t, uint32(0), tokens.Estimate(nil))
}

func TestEstimate_TextScalesWithBytes(t *testing.T) {
	short := tokens.Estimate("hello")
	long := tokens.Estimate("hello, this is a much longer sentence than the first one")
	assert.Positive(t, short)
	assert.Greater(t, long, short)
}

func TestEstimate_WhitespaceNormalized(t *testing.T) {
	a := tokens.Estimate("hello   world")
	b := tokens.Estimate("hello world")
	assert.Equal(t, a, b)
}

func TestEstimate_StructuralOverheadCountsKeys(t *testing.T) {
	flat := tokens.Estimate(map[string]interface{}{"a": "x"})
	nested := tokens.Estimate(map[string]interface{}{"a": map[string]interface{}{"b": "x", "c": "y"}})
	assert.Greater(t, nested, flat)
}

func TestEstimate_Deterministic(t *testing.T) {
	v := map[string]interface{}{"fact_key": "user.pref.editor", "value": "vscode", "confidence": 0.9}
	first := tokens.Estimate(v)
	second := tokens.Estimate(v)
	assert.Equal(t, first, second)
}
