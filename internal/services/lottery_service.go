package services

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/logger"

	"rollcall/internal/errors"
	"rollcall/internal/ledger"
	"rollcall/internal/models"
	"rollcall/internal/persistence"
	"rollcall/internal/roster"
	"rollcall/internal/selector"
)

// Notifier receives live session events. Implementations must not block.
type Notifier interface {
	Notify(event models.Event)
}

// Options configures a LotteryService.
type Options struct {
	Store        persistence.Manager // required
	Notifier     Notifier
	Source       selector.Source
	Now          func() time.Time
	Settings     models.Settings
	MaxBackups   int
	DefaultMode  models.Mode
	TickInterval time.Duration // delay between reveal ticks; zero disables them
	Ticks        int
}

// LotteryService is the single owner of the roster, the ledger and the round
// counter. Every command runs under mu, so autosave always sees a consistent
// state and a draw commits in one step.
type LotteryService struct {
	mu sync.Mutex

	store       persistence.Manager
	notifier    Notifier
	now         func() time.Time
	settings    models.Settings
	maxBackups  int
	defaultMode models.Mode
	tick        time.Duration
	ticks       int

	rngMu sync.Mutex
	rng   selector.Source

	roster      *roster.Store
	ledger      *ledger.Ledger
	round       int
	imports     []models.ImportRecord
	lastUpdated time.Time

	active *draw
}

// NewLotteryService creates a service with an empty roster at round 1.
func NewLotteryService(opts Options) *LotteryService {
	s := &LotteryService{
		store:       opts.Store,
		notifier:    opts.Notifier,
		now:         opts.Now,
		settings:    opts.Settings,
		maxBackups:  opts.MaxBackups,
		defaultMode: opts.DefaultMode,
		tick:        opts.TickInterval,
		ticks:       opts.Ticks,
		rng:         opts.Source,
		roster:      roster.New(),
		ledger:      ledger.New(),
		round:       1,
		imports:     []models.ImportRecord{},
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.rng == nil {
		s.rng = selector.NewSource(0)
	}
	if !s.defaultMode.Valid() {
		s.defaultMode = models.ModeUniform
	}
	if s.maxBackups < 1 {
		s.maxBackups = 10
	}
	return s
}

// Load installs the primary save. When there is none the session stays
// empty. When it cannot be read or parsed the session also starts empty and
// the error is returned for the caller to report. A save that was read but
// is unusable is set aside first, so later saves never overwrite it.
func (s *LotteryService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.Load(ctx)
	if err == nil && st == nil {
		logger.Info("No saved state found, starting empty")
		return nil
	}
	if err == nil {
		if err = s.installLocked(st); err == nil {
			logger.Infof("Loaded %d names at round %d", s.roster.Len(), s.round)
			return nil
		}
	}

	s.resetLocked()
	if !errors.Is(err, errors.ErrCorruptState) {
		logger.Warningf("Could not load saved state, starting empty: %v", err)
		return err
	}
	where, aerr := s.store.SetAside(ctx)
	if aerr != nil {
		logger.Errorf("Could not set aside unusable save: %v", aerr)
		return aerr
	}
	logger.Warningf("Saved state is unusable, kept it at %s and starting empty: %v", where, err)
	return err
}

// Save writes the current state as the primary save.
func (s *LotteryService) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Save(ctx, s.stateLocked())
}

// RunAutosave saves every interval until ctx is done. Saving an unchanged
// state writes nothing.
func (s *LotteryService) RunAutosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Save(ctx); err != nil {
				logger.Errorf("Autosave failed: %v", err)
			}
		}
	}
}

// State returns a copy of the live state.
func (s *LotteryService) State() *models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Stats returns the roster counters.
func (s *LotteryService) Stats() models.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

// Search returns matching names from each pool, ignoring case.
func (s *LotteryService) Search(query string) (undrawn, drawn []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Search(query)
}

// History returns every completed draw, oldest first.
func (s *LotteryService) History() []models.DrawRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Records()
}

// DrawInfo reports the first round name was drawn in.
func (s *LotteryService) DrawInfo(name string) (ledger.DrawInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.FindDrawInfo(name)
}

// AddNames appends new names to the undrawn pool and reports how many were
// skipped as duplicates.
func (s *LotteryService) AddNames(ctx context.Context, names []string, allowDuplicates bool) ([]string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idleLocked(); err != nil {
		return nil, 0, err
	}
	added, skipped := s.roster.AddNames(names, allowDuplicates)
	if len(added) > 0 {
		s.commitLocked(ctx)
	}
	return added, skipped, nil
}

// AddName adds a single name. Unlike AddNames, a duplicate is an error.
func (s *LotteryService) AddName(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idleLocked(); err != nil {
		return err
	}
	added, _ := s.roster.AddNames([]string{name}, false)
	if len(added) == 0 {
		if _, exists := s.roster.Contains(strings.TrimSpace(name)); exists {
			return errors.InvalidInputf("%q already exists", name)
		}
		return errors.InvalidInput("name must not be blank")
	}
	s.commitLocked(ctx)
	return nil
}

// ImportNames adds a batch of names and records it so it can be reselected
// later with UseImport.
func (s *LotteryService) ImportNames(ctx context.Context, label, path string, names []string) ([]string, int, error) {
	batch := dedupe(names)
	if len(batch) == 0 {
		return nil, 0, errors.InvalidInput("no names to import")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idleLocked(); err != nil {
		return nil, 0, err
	}
	added, skipped := s.roster.AddNames(batch, false)
	s.imports = append(s.imports, models.ImportRecord{
		Label:     label,
		Path:      path,
		Names:     batch,
		Timestamp: s.now(),
	})
	s.commitLocked(ctx)
	logger.Infof("Imported %s: %d added, %d skipped", label, len(added), skipped)
	return added, skipped, nil
}

// ImportFile reads newline-delimited names from path and imports them.
func (s *LotteryService) ImportFile(ctx context.Context, path string) ([]string, int, error) {
	names, err := roster.ParseFile(path)
	if err != nil {
		return nil, 0, err
	}
	return s.ImportNames(ctx, filepath.Base(path), path, names)
}

// Imports returns the recorded import batches, oldest first.
func (s *LotteryService) Imports() []models.ImportRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyImports(s.imports)
}

// UseImport makes import batch index the undrawn pool. Names from the batch
// that were already drawn stay drawn.
func (s *LotteryService) UseImport(ctx context.Context, index int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idleLocked(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.imports) {
		return nil, errors.InvalidInputf("import %d does not exist", index)
	}
	s.autoSnapshotLocked(ctx, "before reselecting import")
	undrawn := s.roster.ReplaceUndrawn(s.imports[index].Names)
	s.commitLocked(ctx)
	logger.Infof("Reselected import %s with %d names", s.imports[index].Label, len(undrawn))
	return undrawn, nil
}

// SetWeight overrides the weight of name.
func (s *LotteryService) SetWeight(ctx context.Context, name string, w int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.roster.SetWeight(name, w); err != nil {
		return err
	}
	s.commitLocked(ctx)
	return nil
}

// Weight returns the weight of name, the default when never set.
func (s *LotteryService) Weight(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Weight(name)
}

// ResetWeights removes every override.
func (s *LotteryService) ResetWeights(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster.ResetWeights()
	s.commitLocked(ctx)
}

// SmartBalance sets every undrawn name's weight from how often it was drawn
// before: the more draws, the lower the weight.
func (s *LotteryService) SmartBalance(ctx context.Context) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := make(map[string]int)
	for _, name := range s.roster.Undrawn() {
		w := selector.BalancedWeight(s.ledger.FrequencyOf(name))
		if err := s.roster.SetWeight(name, w); err != nil {
			logger.Errorf("Balancing %q: %v", name, err)
			continue
		}
		applied[name] = w
	}
	if len(applied) > 0 {
		s.commitLocked(ctx)
	}
	return applied
}

// MoveToDrawn marks names as drawn without recording a round. Either every
// name moves or none does.
func (s *LotteryService) MoveToDrawn(ctx context.Context, names ...string) error {
	return s.move(ctx, names, s.roster.MoveToDrawn)
}

// MoveToUndrawn returns drawn names to the undrawn pool.
func (s *LotteryService) MoveToUndrawn(ctx context.Context, names ...string) error {
	return s.move(ctx, names, s.roster.MoveToUndrawn)
}

func (s *LotteryService) move(ctx context.Context, names []string, op func(...string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idleLocked(); err != nil {
		return err
	}
	if err := op(names...); err != nil {
		return err
	}
	s.commitLocked(ctx)
	return nil
}

// Shuffle permutes the undrawn pool.
func (s *LotteryService) Shuffle(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rngMu.Lock()
	s.roster.ShuffleUndrawn(s.rng)
	s.rngMu.Unlock()
	s.commitLocked(ctx)
}

// SkipRound advances the round without drawing anyone. It needs at least one
// undrawn name, like a real draw would.
func (s *LotteryService) SkipRound(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idleLocked(); err != nil {
		return 0, err
	}
	if len(s.roster.Undrawn()) == 0 {
		return 0, errors.New(errors.ErrInsufficientPool, "no undrawn names left, cannot skip a round")
	}
	skipped := s.round
	s.round++
	s.commitLocked(ctx)
	logger.Infof("Skipped round %d", skipped)
	return s.round, nil
}

// ResetSystem returns every drawn name to the undrawn pool, clears the
// history and starts again at round 1. Weights and imports are kept.
func (s *LotteryService) ResetSystem(ctx context.Context) error {
	return s.reset(ctx, "before system reset", func() {
		s.roster.ReturnDrawn()
	})
}

// ResetAll removes every name, weight and record. Imports are kept so a
// batch can be reselected afterwards.
func (s *LotteryService) ResetAll(ctx context.Context) error {
	return s.reset(ctx, "before full reset", func() {
		s.roster.Clear(false)
	})
}

// ClearRoster removes every name and record but keeps weights.
func (s *LotteryService) ClearRoster(ctx context.Context) error {
	return s.reset(ctx, "before clearing roster", func() {
		s.roster.Clear(true)
	})
}

func (s *LotteryService) reset(ctx context.Context, reason string, apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idleLocked(); err != nil {
		return err
	}
	s.autoSnapshotLocked(ctx, reason)
	apply()
	s.ledger = ledger.New()
	s.round = 1
	s.commitLocked(ctx)
	logger.Infof("Reset done (%s)", reason)
	return nil
}

func (s *LotteryService) idleLocked() error {
	if s.active != nil {
		return errors.Newf(errors.ErrDrawAlreadyActive, "draw %s is in progress", s.active.ID)
	}
	return nil
}

// commitLocked stamps a mutation, saves it and tells listeners. A failed save
// is logged; the session keeps running in memory.
func (s *LotteryService) commitLocked(ctx context.Context) {
	s.lastUpdated = s.now()
	if err := s.store.Save(ctx, s.stateLocked()); err != nil {
		logger.Errorf("Saving state failed: %v", err)
	}
	s.notify(models.EventStateChanged, s.statsLocked())
}

func (s *LotteryService) notify(typ string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(models.Event{Type: typ, Payload: payload})
}

func (s *LotteryService) stateLocked() *models.State {
	st := &models.State{
		Undrawn:       s.roster.Undrawn(),
		Drawn:         s.roster.Drawn(),
		Round:         s.round,
		History:       s.ledger.Records(),
		Weights:       s.roster.Weights(),
		ImportHistory: copyImports(s.imports),
		Settings:      s.settings,
		LastUpdated:   s.lastUpdated,
	}
	st.Normalize()
	return st
}

func (s *LotteryService) statsLocked() models.Stats {
	undrawn := len(s.roster.Undrawn())
	total := s.roster.Len()
	return models.Stats{
		Total:           total,
		Drawn:           total - undrawn,
		Undrawn:         undrawn,
		Round:           s.round,
		CompletedRounds: s.ledger.Len(),
	}
}

// installLocked replaces the live state with st. Nothing changes when st is
// inconsistent.
func (s *LotteryService) installLocked(st *models.State) error {
	st = st.Clone()
	st.Normalize()
	r := roster.New()
	if err := r.Restore(st.Undrawn, st.Drawn, st.Weights); err != nil {
		return err
	}
	s.roster = r
	s.ledger = ledger.FromRecords(st.History)
	s.round = st.Round
	s.imports = st.ImportHistory
	s.lastUpdated = st.LastUpdated
	return nil
}

func (s *LotteryService) resetLocked() {
	s.roster = roster.New()
	s.ledger = ledger.New()
	s.round = 1
	s.imports = []models.ImportRecord{}
	s.lastUpdated = time.Time{}
}

func copyImports(in []models.ImportRecord) []models.ImportRecord {
	out := make([]models.ImportRecord, len(in))
	for i, r := range in {
		r.Names = append([]string{}, r.Names...)
		out[i] = r
	}
	return out
}

// dedupe trims names, drops blanks and keeps the first of any repeat.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := []string{}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
