package selector

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

var roster5 = []string{"A", "B", "C", "D", "E"}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 7))
}

func assertDistinctSubset(t *testing.T, pool, got []string) {
	t.Helper()
	seen := map[string]bool{}
	for _, n := range got {
		assert.False(t, seen[n], "duplicate %q", n)
		seen[n] = true
		assert.Contains(t, pool, n)
	}
}

func TestSelectCountValidation(t *testing.T) {
	for _, mode := range models.Modes {
		t.Run(string(mode), func(t *testing.T) {
			_, err := Select(seeded(1), Input{Pool: roster5, Mode: mode, Count: 0})
			assert.Equal(t, errors.ErrInvalidCount, errors.KindOf(err))

			_, err = Select(seeded(1), Input{Pool: roster5, Mode: mode, Count: -2})
			assert.Equal(t, errors.ErrInvalidCount, errors.KindOf(err))

			_, err = Select(seeded(1), Input{Pool: roster5, Mode: mode, Count: 6})
			assert.Equal(t, errors.ErrInsufficientPool, errors.KindOf(err))

			_, err = Select(seeded(1), Input{Pool: nil, Mode: mode, Count: 1})
			assert.Equal(t, errors.ErrInsufficientPool, errors.KindOf(err))
		})
	}
}

func TestSelectUnknownMode(t *testing.T) {
	_, err := Select(seeded(1), Input{Pool: roster5, Mode: "lucky", Count: 1})
	assert.Equal(t, errors.ErrInvalidInput, errors.KindOf(err))
}

func TestSelectReturnsDistinctSubset(t *testing.T) {
	for _, mode := range models.Modes {
		for count := 1; count <= len(roster5); count++ {
			got, err := Select(seeded(uint64(count)), Input{
				Pool:      roster5,
				Weights:   map[string]int{"A": 10, "E": 1},
				Frequency: map[string]int{"B": 3},
				Mode:      mode,
				Count:     count,
			})
			require.NoError(t, err)
			assert.Len(t, got, count)
			assertDistinctSubset(t, roster5, got)
		}
	}
}

func TestSelectWholePool(t *testing.T) {
	for _, mode := range models.Modes {
		got, err := Select(seeded(3), Input{Pool: roster5, Mode: mode, Count: len(roster5)})
		require.NoError(t, err)
		assert.ElementsMatch(t, roster5, got)
	}
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	pool := append([]string{}, roster5...)
	weights := map[string]int{"A": 9}
	for _, mode := range models.Modes {
		_, err := Select(seeded(5), Input{Pool: pool, Weights: weights, Mode: mode, Count: 3})
		require.NoError(t, err)
	}
	assert.Equal(t, roster5, pool)
	assert.Equal(t, map[string]int{"A": 9}, weights)
}

func TestSelectIsDeterministicForSeed(t *testing.T) {
	for _, mode := range models.Modes {
		in := Input{Pool: roster5, Weights: map[string]int{"C": 8}, Frequency: map[string]int{"A": 1}, Mode: mode, Count: 3}
		first, err := Select(seeded(42), in)
		require.NoError(t, err)
		second, err := Select(seeded(42), in)
		require.NoError(t, err)
		assert.Equal(t, first, second, string(mode))
	}
}

func TestUniformFrequencyConverges(t *testing.T) {
	const trials = 20000
	src := seeded(11)
	hits := map[string]int{}
	for i := 0; i < trials; i++ {
		got, err := Uniform(src, roster5, 2)
		require.NoError(t, err)
		for _, n := range got {
			hits[n]++
		}
	}
	for _, n := range roster5 {
		assert.InDelta(t, 2.0/5.0, float64(hits[n])/trials, 0.02, n)
	}
}

func TestWeightedFavoursHeavierNames(t *testing.T) {
	const trials = 20000
	src := seeded(12)
	weights := map[string]int{"A": 10, "B": 1}
	hits := map[string]int{}
	for i := 0; i < trials; i++ {
		got, err := Select(src, Input{Pool: roster5, Weights: weights, Mode: models.ModeWeighted, Count: 1})
		require.NoError(t, err)
		hits[got[0]]++
	}
	assert.Greater(t, hits["A"], hits["B"])
	// A: 10/26, B: 1/26
	assert.InDelta(t, 10.0/26.0, float64(hits["A"])/trials, 0.02)
	assert.InDelta(t, 1.0/26.0, float64(hits["B"])/trials, 0.01)
}

func TestWeightedRenormalizesAfterEachPick(t *testing.T) {
	// With weights A=1, B=1, C=2 and two picks, C is chosen first with
	// probability 1/2 and second with probability 2*(1/4)*(2/3) = 1/3.
	// Sampling with replacement, or forgetting to drop the picked weight,
	// gives a different answer.
	const trials = 30000
	src := seeded(13)
	pool := []string{"A", "B", "C"}
	cHits := 0
	for i := 0; i < trials; i++ {
		got, err := Weighted(src, pool, []int{1, 1, 2}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.NotEqual(t, got[0], got[1])
		for _, n := range got {
			if n == "C" {
				cHits++
			}
		}
	}
	assert.InDelta(t, 5.0/6.0, float64(cHits)/trials, 0.015)
}

func TestWeightedRejectsBadWeights(t *testing.T) {
	_, err := Weighted(seeded(1), []string{"A", "B"}, []int{1, 0}, 1)
	assert.Equal(t, errors.ErrInvalidWeight, errors.KindOf(err))

	_, err = Weighted(seeded(1), []string{"A", "B"}, []int{1}, 1)
	assert.Equal(t, errors.ErrInvalidInput, errors.KindOf(err))
}

func TestFairWeights(t *testing.T) {
	pool := []string{"A", "B", "C", "D"}
	freq := map[string]int{"A": 3, "B": 1, "C": 1, "Z": 9}

	got := FairWeights(pool, freq)
	// maxPrior comes from the pool only, so Z is ignored.
	assert.Equal(t, []int{1, 3, 3, 4}, got)
}

func TestFairWeightsNoHistory(t *testing.T) {
	assert.Equal(t, []int{1, 1, 1}, FairWeights([]string{"A", "B", "C"}, nil))
}

func TestFairFavoursNeverDrawn(t *testing.T) {
	const trials = 20000
	src := seeded(14)
	freq := map[string]int{"A": 4, "B": 0, "C": 2}
	hits := map[string]int{}
	for i := 0; i < trials; i++ {
		got, err := Select(src, Input{Pool: []string{"A", "B", "C"}, Frequency: freq, Mode: models.ModeFair, Count: 1})
		require.NoError(t, err)
		hits[got[0]]++
	}
	// effective weights A=1, B=5, C=3
	assert.GreaterOrEqual(t, hits["B"], hits["A"])
	assert.InDelta(t, 5.0/9.0, float64(hits["B"])/trials, 0.02)
	assert.InDelta(t, 1.0/9.0, float64(hits["A"])/trials, 0.02)
}

func TestPoolWeightsDefaults(t *testing.T) {
	assert.Equal(t, []int{5, 2, 5}, PoolWeights([]string{"A", "B", "C"}, map[string]int{"B": 2}))
}

func TestBalancedWeight(t *testing.T) {
	assert.Equal(t, 10, BalancedWeight(0))
	assert.Equal(t, 7, BalancedWeight(3))
	assert.Equal(t, 1, BalancedWeight(9))
	assert.Equal(t, 1, BalancedWeight(25))
}

func TestNewSourceSeeded(t *testing.T) {
	a, b := NewSource(99), NewSource(99)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}
