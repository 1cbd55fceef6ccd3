package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectedScore_SumsToOne(t *testing.T) {
	pairs := [][2]float64{
		{1500, 1500},
		{1200, 1800},
		{1850.5, 1499.25},
		{100, 2900},
	}
	for _, p := range pairs {
		sum := ExpectedScore(p[0], p[1]) + ExpectedScore(p[1], p[0])
		assert.InDelta(t, 1.0, sum, 1e-6, "ratings %v", p)
	}
}

func TestExpectedScore_EqualRatings(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(1500, 1500), 1e-9)
}

func TestUpdate_SumInvariant(t *testing.T) {
	cases := []struct {
		a, b   float64
		result Result
		k      float64
	}{
		{1500, 1500, Win, 40},
		{1650, 1480, Loss, 32},
		{1700, 1300, Tie, 24},
	}
	for _, c := range cases {
		newA, newB := Update(c.a, c.b, c.result, c.k)
		assert.InDelta(t, c.a+c.b, newA+newB, 1e-6)
	}
}

func TestUpdate_TieBetweenEqualsIsNoop(t *testing.T) {
	newA, newB := Update(1500, 1500, Tie, 40)
	assert.InDelta(t, 1500, newA, 1e-9)
	assert.InDelta(t, 1500, newB, 1e-9)
}

func TestUpdate_UnderdogGainsMore(t *testing.T) {
	// A lower-rated winner gains strictly more than a higher-rated winner
	// would for the same win.
	underdogAfter, _ := Update(1400, 1600, Win, 32)
	favoriteAfter, _ := Update(1600, 1400, Win, 32)

	underdogGain := underdogAfter - 1400
	favoriteGain := favoriteAfter - 1600
	assert.Greater(t, underdogGain, favoriteGain)
	assert.Greater(t, underdogGain, 0.0)
	assert.Greater(t, favoriteGain, 0.0)
}

func TestKFactor(t *testing.T) {
	assert.Equal(t, 40.0, KFactor(0))
	assert.Equal(t, 40.0, KFactor(9))
	assert.Equal(t, 32.0, KFactor(10))
	assert.Equal(t, 32.0, KFactor(29))
	assert.Equal(t, 24.0, KFactor(30))
	assert.Equal(t, 24.0, KFactor(500))
}
