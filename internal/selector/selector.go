// Package selector picks names from the undrawn pool.
//
// Every strategy samples without replacement: once a name is picked it leaves
// the candidate set, and weighted strategies re-normalize over the remaining
// candidates before the next pick. Selection never mutates its input and is
// fully determined by the random source, so a seeded source reproduces a
// draw exactly.
package selector

import (
	"math/rand/v2"
	"time"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

// Source is the randomness a selection consumes. *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// NewSource returns a PCG-backed source. A zero seed means "seed from the
// clock".
func NewSource(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Input is a read-only view of everything a selection needs.
type Input struct {
	Pool      []string
	Weights   map[string]int // overrides; missing names use models.DefaultWeight
	Frequency map[string]int // prior draw counts from the ledger
	Mode      models.Mode
	Count     int
}

// Select returns exactly in.Count distinct names from in.Pool.
func Select(src Source, in Input) ([]string, error) {
	if err := checkCount(in.Count, len(in.Pool)); err != nil {
		return nil, err
	}
	switch in.Mode {
	case models.ModeUniform, "":
		return Uniform(src, in.Pool, in.Count)
	case models.ModeWeighted:
		return Weighted(src, in.Pool, PoolWeights(in.Pool, in.Weights), in.Count)
	case models.ModeFair:
		return Weighted(src, in.Pool, FairWeights(in.Pool, in.Frequency), in.Count)
	}
	return nil, errors.InvalidInputf("unknown draw mode %q", in.Mode)
}

func checkCount(count, available int) error {
	if count <= 0 {
		return errors.InvalidCount(count)
	}
	if count > available {
		return errors.InsufficientPool(count, available)
	}
	return nil
}

// Uniform draws a uniformly random count-subset using a partial
// Fisher-Yates shuffle over a copy of pool.
func Uniform(src Source, pool []string, count int) ([]string, error) {
	if err := checkCount(count, len(pool)); err != nil {
		return nil, err
	}
	work := append([]string{}, pool...)
	n := len(work)
	for i := 0; i < count; i++ {
		j := i + src.IntN(n-i)
		work[i], work[j] = work[j], work[i]
	}
	return work[:count:count], nil
}

// Weighted draws count names one at a time, each with probability
// proportional to its weight among the names still in the running.
// weights[i] belongs to pool[i] and must be positive.
func Weighted(src Source, pool []string, weights []int, count int) ([]string, error) {
	if err := checkCount(count, len(pool)); err != nil {
		return nil, err
	}
	if len(weights) != len(pool) {
		return nil, errors.InvalidInputf("%d weights for %d names", len(weights), len(pool))
	}

	names := append([]string{}, pool...)
	w := append([]int{}, weights...)
	total := 0
	for _, v := range w {
		if v <= 0 {
			return nil, errors.InvalidWeight(v)
		}
		total += v
	}

	selected := make([]string, 0, count)
	for len(selected) < count {
		idx := pick(src, w, total)
		selected = append(selected, names[idx])
		total -= w[idx]

		last := len(names) - 1
		names[idx], w[idx] = names[last], w[last]
		names, w = names[:last], w[:last]
	}
	return selected, nil
}

// pick returns an index with probability weights[i]/total.
func pick(src Source, weights []int, total int) int {
	roll := src.IntN(total)
	for i, v := range weights {
		if roll < v {
			return i
		}
		roll -= v
	}
	return len(weights) - 1
}

// PoolWeights resolves the weight of every pool member.
func PoolWeights(pool []string, overrides map[string]int) []int {
	out := make([]int, len(pool))
	for i, name := range pool {
		if w, ok := overrides[name]; ok {
			out[i] = w
		} else {
			out[i] = models.DefaultWeight
		}
	}
	return out
}

// FairWeights derives max(1, maxPrior - prior + 1) for each pool member,
// where maxPrior is the largest prior count among the pool only. Names never
// drawn get the largest weight.
func FairWeights(pool []string, frequency map[string]int) []int {
	maxPrior := 0
	for _, name := range pool {
		if c := frequency[name]; c > maxPrior {
			maxPrior = c
		}
	}
	out := make([]int, len(pool))
	for i, name := range pool {
		out[i] = max(1, maxPrior-frequency[name]+1)
	}
	return out
}

// BalancedWeight is the override assigned by smart balancing: ten minus the
// number of prior draws, clamped to the valid weight range.
func BalancedWeight(prior int) int {
	return max(models.MinWeight, min(models.MaxWeight, models.MaxWeight-prior))
}
