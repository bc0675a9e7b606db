package services

import (
	"context"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"

	"rollcall/internal/errors"
	"rollcall/internal/models"
	"rollcall/internal/selector"
)

// SessionState is where the draw state machine stands.
type SessionState int

const (
	Idle SessionState = iota
	DrawInProgress
)

func (s SessionState) String() string {
	if s == DrawInProgress {
		return "draw_in_progress"
	}
	return "idle"
}

// previewSize caps how many names a reveal tick shows.
const previewSize = 5

// ActiveDraw describes the draw currently in progress.
type ActiveDraw struct {
	ID        string      `json:"id"`
	Count     int         `json:"count"`
	Mode      models.Mode `json:"mode"`
	Round     int         `json:"round"`
	StartedAt time.Time   `json:"started_at"`
}

// TickEvent is the payload of a draw_tick event. Names is a random preview of
// the undrawn pool, not the result.
type TickEvent struct {
	DrawID string   `json:"draw_id"`
	Tick   int      `json:"tick"`
	Of     int      `json:"of"`
	Names  []string `json:"names"`
}

type draw struct {
	ActiveDraw
	selected []string
	cancel   context.CancelFunc
	done     chan struct{}
}

// Status returns the session state and, while a draw runs, its description.
func (s *LotteryService) Status() (SessionState, *ActiveDraw) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Idle, nil
	}
	d := s.active.ActiveDraw
	return DrawInProgress, &d
}

// StartDraw moves the session into DrawInProgress. The selection is computed
// here from copies of the pool, and nothing changes until CompleteDraw. While
// the draw is open the service emits reveal ticks in the background.
func (s *LotteryService) StartDraw(ctx context.Context, count int, mode models.Mode) (ActiveDraw, error) {
	d, err := s.start(ctx, count, mode, true)
	if err != nil {
		return ActiveDraw{}, err
	}
	return d.ActiveDraw, nil
}

func (s *LotteryService) start(ctx context.Context, count int, mode models.Mode, reveal bool) (*draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.idleLocked(); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = s.defaultMode
	}
	if !mode.Valid() {
		return nil, errors.InvalidInputf("unknown draw mode %q", mode)
	}

	pool := s.roster.Undrawn()
	in := selector.Input{
		Pool:      pool,
		Weights:   s.roster.Weights(),
		Frequency: s.ledger.Frequencies(pool),
		Mode:      mode,
		Count:     count,
	}
	s.rngMu.Lock()
	selected, err := selector.Select(s.rng, in)
	s.rngMu.Unlock()
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "generate draw id")
	}

	s.autoSnapshotLocked(ctx, "before draw")

	revealCtx, cancel := context.WithCancel(context.Background())
	d := &draw{
		ActiveDraw: ActiveDraw{
			ID:        id.String(),
			Count:     count,
			Mode:      mode,
			Round:     s.round,
			StartedAt: s.now(),
		},
		selected: selected,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.active = d
	s.notify(models.EventDrawStarted, d.ActiveDraw)

	if reveal && s.tick > 0 && s.ticks > 0 {
		go s.reveal(revealCtx, d, pool)
	} else {
		close(d.done)
	}
	return d, nil
}

// reveal emits preview ticks until the draw is completed, cancelled or runs
// out of ticks. It only reads its own copy of the pool.
func (s *LotteryService) reveal(ctx context.Context, d *draw, pool []string) {
	defer close(d.done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for i := 1; i <= s.ticks; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.notify(models.EventDrawTick, TickEvent{
			DrawID: d.ID,
			Tick:   i,
			Of:     s.ticks,
			Names:  s.preview(pool),
		})
	}
}

func (s *LotteryService) preview(pool []string) []string {
	names := append([]string{}, pool...)
	s.rngMu.Lock()
	s.rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	s.rngMu.Unlock()
	if len(names) > previewSize {
		names = names[:previewSize]
	}
	return names
}

// CompleteDraw commits draw id: the selected names move to the drawn pool, a
// record is appended for the current round and the round advances. Any
// reveal still running is stopped first.
func (s *LotteryService) CompleteDraw(ctx context.Context, id string) (models.DrawRecord, error) {
	s.mu.Lock()
	d := s.active
	s.mu.Unlock()
	if d == nil || d.ID != id {
		return models.DrawRecord{}, noActiveDraw(id)
	}

	d.cancel()
	select {
	case <-d.done:
	case <-ctx.Done():
		return models.DrawRecord{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != d {
		return models.DrawRecord{}, noActiveDraw(id)
	}
	return s.commitDrawLocked(ctx, d)
}

func (s *LotteryService) commitDrawLocked(ctx context.Context, d *draw) (models.DrawRecord, error) {
	s.active = nil
	d.cancel()
	if err := s.roster.MoveToDrawn(d.selected...); err != nil {
		// Pool changes are refused while a draw is open, so this means the
		// selection no longer matches the roster.
		logger.Errorf("Discarding draw %s: %v", d.ID, err)
		s.notify(models.EventDrawCancelled, d.ActiveDraw)
		return models.DrawRecord{}, err
	}
	rec := models.DrawRecord{
		Round:     s.round,
		Names:     append([]string{}, d.selected...),
		Timestamp: s.now(),
		Mode:      d.Mode,
	}
	s.ledger.Append(rec)
	s.round++
	s.commitLocked(ctx)
	s.notify(models.EventDrawCompleted, rec)
	logger.Infof("Round %d drew %v (%s)", rec.Round, rec.Names, rec.Mode)
	return rec, nil
}

// CancelDraw abandons draw id. Pools, history and round are left exactly as
// they were.
func (s *LotteryService) CancelDraw(id string) error {
	s.mu.Lock()
	d := s.active
	if d == nil || d.ID != id {
		s.mu.Unlock()
		return noActiveDraw(id)
	}
	s.active = nil
	s.mu.Unlock()

	d.cancel()
	<-d.done
	s.notify(models.EventDrawCancelled, d.ActiveDraw)
	logger.Infof("Cancelled draw %s", id)
	return nil
}

// Draw runs a whole draw at once, without reveal ticks.
func (s *LotteryService) Draw(ctx context.Context, count int, mode models.Mode) (models.DrawRecord, error) {
	d, err := s.start(ctx, count, mode, false)
	if err != nil {
		return models.DrawRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != d {
		return models.DrawRecord{}, noActiveDraw(d.ID)
	}
	return s.commitDrawLocked(ctx, d)
}

func noActiveDraw(id string) error {
	return errors.Newf(errors.ErrNoActiveDraw, "no draw %q in progress", id)
}
