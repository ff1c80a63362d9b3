package composer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecencyScore_ZeroAgeIsOne(t *testing.T) {
	assert.Equal(t, 1.0, recencyScore(0, 14))
}

func TestRecencyScore_DecaysWithAge(t *testing.T) {
	near := recencyScore(1, 14)
	far := recencyScore(30, 14)
	assert.Greater(t, near, far)
}

func TestRecencyScore_NonPositiveTauFallsBackToOne(t *testing.T) {
	assert.InDelta(t, math.Exp(-7), recencyScore(7, 0), 1e-9)
}

func TestRecencyScore_ClampsNegativeAgeToZero(t *testing.T) {
	assert.Equal(t, 1.0, recencyScore(-5, 14))
}
