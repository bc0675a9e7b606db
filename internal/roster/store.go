// Package roster owns the two disjoint name pools and the per-name weight
// overrides.
package roster

import (
	"strings"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

// Pool identifies which side of the roster a name sits on.
type Pool int

const (
	PoolUndrawn Pool = iota
	PoolDrawn
)

func (p Pool) String() string {
	if p == PoolDrawn {
		return "drawn"
	}
	return "undrawn"
}

// Shuffler is satisfied by *rand.Rand.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Store holds the undrawn and drawn pools. A name is in at most one pool.
// Store is not safe for concurrent use; the session service serializes
// access to it.
type Store struct {
	undrawn []string
	drawn   []string
	index   map[string]Pool
	weights map[string]int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		undrawn: []string{},
		drawn:   []string{},
		index:   make(map[string]Pool),
		weights: make(map[string]int),
	}
}

// Restore replaces the contents of the store. It fails with CorruptState if
// the pools overlap, repeat a name, contain a blank name, or a weight is out
// of range; the store is left untouched in that case.
func (s *Store) Restore(undrawn, drawn []string, weights map[string]int) error {
	index := make(map[string]Pool, len(undrawn)+len(drawn))
	for _, pool := range []struct {
		names []string
		p     Pool
	}{{undrawn, PoolUndrawn}, {drawn, PoolDrawn}} {
		for _, name := range pool.names {
			if strings.TrimSpace(name) == "" {
				return errors.New(errors.ErrCorruptState, "roster contains a blank name")
			}
			if _, dup := index[name]; dup {
				return errors.Newf(errors.ErrCorruptState, "name %q appears more than once in the roster", name)
			}
			index[name] = pool.p
		}
	}
	w := make(map[string]int, len(weights))
	for name, v := range weights {
		if v < models.MinWeight || v > models.MaxWeight {
			return errors.Newf(errors.ErrCorruptState, "weight %d for %q is out of range", v, name)
		}
		w[name] = v
	}

	s.undrawn = append([]string{}, undrawn...)
	s.drawn = append([]string{}, drawn...)
	s.index = index
	s.weights = w
	return nil
}

// AddNames appends names to the undrawn pool in input order. Surrounding
// whitespace is trimmed and blank entries are ignored. A name already in
// either pool is skipped and counted; with allowDuplicates set, a name found
// in the drawn pool is re-entered into the undrawn pool instead.
func (s *Store) AddNames(names []string, allowDuplicates bool) (added []string, skipped int) {
	added = []string{}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		pool, exists := s.index[name]
		switch {
		case !exists:
			s.undrawn = append(s.undrawn, name)
			s.index[name] = PoolUndrawn
			added = append(added, name)
		case allowDuplicates && pool == PoolDrawn:
			s.drawn = remove(s.drawn, name)
			s.undrawn = append(s.undrawn, name)
			s.index[name] = PoolUndrawn
			added = append(added, name)
		default:
			skipped++
		}
	}
	return added, skipped
}

// Contains reports which pool holds name.
func (s *Store) Contains(name string) (Pool, bool) {
	p, ok := s.index[name]
	return p, ok
}

// SetWeight stores a weight override for name.
func (s *Store) SetWeight(name string, w int) error {
	if w < models.MinWeight || w > models.MaxWeight {
		return errors.InvalidWeight(w)
	}
	s.weights[name] = w
	return nil
}

// Weight returns the override for name, or the default weight.
func (s *Store) Weight(name string) int {
	if w, ok := s.weights[name]; ok {
		return w
	}
	return models.DefaultWeight
}

// Weights returns a copy of the override map.
func (s *Store) Weights() map[string]int {
	out := make(map[string]int, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

// ResetWeights drops every override.
func (s *Store) ResetWeights() {
	s.weights = make(map[string]int)
}

// MoveToDrawn moves every name from undrawn to drawn, appending them to the
// drawn pool in argument order. Either all names move or none do.
func (s *Store) MoveToDrawn(names ...string) error {
	if err := s.checkAll(names, PoolUndrawn); err != nil {
		return err
	}
	for _, name := range names {
		s.undrawn = remove(s.undrawn, name)
		s.drawn = append(s.drawn, name)
		s.index[name] = PoolDrawn
	}
	return nil
}

// MoveToUndrawn moves every name from drawn back to undrawn. Either all
// names move or none do.
func (s *Store) MoveToUndrawn(names ...string) error {
	if err := s.checkAll(names, PoolDrawn); err != nil {
		return err
	}
	for _, name := range names {
		s.drawn = remove(s.drawn, name)
		s.undrawn = append(s.undrawn, name)
		s.index[name] = PoolUndrawn
	}
	return nil
}

func (s *Store) checkAll(names []string, from Pool) error {
	if len(names) == 0 {
		return errors.InvalidInput("no names given")
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return errors.InvalidInputf("%q listed twice", name)
		}
		seen[name] = true
		if p, ok := s.index[name]; !ok || p != from {
			return errors.NameNotFound(name, from.String())
		}
	}
	return nil
}

// ReturnDrawn moves the whole drawn pool back to undrawn, keeping draw order.
func (s *Store) ReturnDrawn() {
	for _, name := range s.drawn {
		s.index[name] = PoolUndrawn
	}
	s.undrawn = append(s.undrawn, s.drawn...)
	s.drawn = []string{}
}

// ReplaceUndrawn makes names the new undrawn pool. Names already drawn stay
// drawn and are left out; the rest of the old undrawn pool is dropped.
func (s *Store) ReplaceUndrawn(names []string) []string {
	for _, name := range s.undrawn {
		delete(s.index, name)
	}
	s.undrawn = []string{}
	added, _ := s.AddNames(names, false)
	return added
}

// ShuffleUndrawn permutes the undrawn pool uniformly at random.
func (s *Store) ShuffleUndrawn(r Shuffler) {
	r.Shuffle(len(s.undrawn), func(i, j int) {
		s.undrawn[i], s.undrawn[j] = s.undrawn[j], s.undrawn[i]
	})
}

// Clear empties both pools. When keepWeights is false the overrides go too.
func (s *Store) Clear(keepWeights bool) {
	s.undrawn = []string{}
	s.drawn = []string{}
	s.index = make(map[string]Pool)
	if !keepWeights {
		s.weights = make(map[string]int)
	}
}

// Undrawn returns a copy of the undrawn pool.
func (s *Store) Undrawn() []string {
	return append([]string{}, s.undrawn...)
}

// Drawn returns a copy of the drawn pool in draw order.
func (s *Store) Drawn() []string {
	return append([]string{}, s.drawn...)
}

// Len returns the number of names in both pools.
func (s *Store) Len() int {
	return len(s.undrawn) + len(s.drawn)
}

// Search returns the names in each pool containing query, ignoring case.
func (s *Store) Search(query string) (undrawn, drawn []string) {
	q := strings.ToLower(strings.TrimSpace(query))
	match := func(names []string) []string {
		out := []string{}
		for _, n := range names {
			if strings.Contains(strings.ToLower(n), q) {
				out = append(out, n)
			}
		}
		return out
	}
	return match(s.undrawn), match(s.drawn)
}

func remove(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
