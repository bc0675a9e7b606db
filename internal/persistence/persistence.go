// Package persistence stores the engine state durably and manages snapshots.
//
// Two backends implement Manager: FileStore writes JSON files under a data
// directory and SQLiteStore keeps the same records in a SQLite database.
// Both write the primary save as one consistent record and never overwrite
// an existing snapshot.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

// Manager is the persistence contract the session service depends on.
type Manager interface {
	// Save writes state as the primary save. Saving a state identical to the
	// last one written is a no-op.
	Save(ctx context.Context, state *models.State) error
	// Load returns the primary save, or nil when nothing was saved yet.
	Load(ctx context.Context) (*models.State, error)
	// SetAside moves the primary save out of the way with its bytes intact,
	// so the next Save cannot replace a save that failed to load. It returns
	// where the old save now lives, or "" when there was none.
	SetAside(ctx context.Context) (string, error)
	// Snapshot writes an independent copy of state and returns its id.
	Snapshot(ctx context.Context, state *models.State, reason string) (string, error)
	// ListSnapshots returns every snapshot, newest first.
	ListSnapshots(ctx context.Context) ([]models.SnapshotInfo, error)
	// Restore returns the state stored in snapshot id.
	Restore(ctx context.Context, id string) (*models.State, error)
	DeleteSnapshot(ctx context.Context, id string) error
	// PruneSnapshots deletes the oldest snapshots until at most maxCount
	// remain and returns the ids it removed.
	PruneSnapshots(ctx context.Context, maxCount int) ([]string, error)
	Close() error
}

// Option configures a store.
type Option func(*base)

// WithClock overrides the time source used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithIDGenerator overrides snapshot id generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(b *base) { b.newID = gen }
}

// base holds what both backends share: clock, id source and the bytes of the
// last primary save.
type base struct {
	now   func() time.Time
	newID func() (string, error)

	mu        sync.Mutex
	lastSaved []byte
}

func newBase(opts []Option) base {
	b := base{
		now:   func() time.Time { return time.Now().UTC() },
		newID: newSnapshotID,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// newSnapshotID returns a UUIDv7, which sorts by creation time.
func newSnapshotID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// unchanged reports whether data matches the last primary save.
func (b *base) unchanged(data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSaved != nil && bytes.Equal(b.lastSaved, data)
}

func (b *base) remember(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSaved = data
}

func (b *base) forget() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSaved = nil
}

func encodeState(state *models.State) ([]byte, error) {
	if state == nil {
		return nil, errors.InvalidInput("nil state")
	}
	st := state.Clone()
	st.Normalize()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "encode state")
	}
	return data, nil
}

func decodeState(data []byte) (*models.State, error) {
	var st models.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.CorruptState(err, "decode state")
	}
	st.Normalize()
	return &st, nil
}

func (b *base) newRecord(state *models.State, reason string) (*models.SnapshotRecord, error) {
	if state == nil {
		return nil, errors.InvalidInput("nil state")
	}
	id, err := b.newID()
	if err != nil {
		return nil, errors.IOFailure(err, "generate snapshot id")
	}
	st := state.Clone()
	st.Normalize()
	return &models.SnapshotRecord{
		Version:   models.SnapshotVersion,
		BackupID:  id,
		CreatedAt: b.now(),
		Reason:    reason,
		State:     *st,
	}, nil
}

func decodeRecord(data []byte) (*models.SnapshotRecord, error) {
	var rec models.SnapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.CorruptState(err, "decode snapshot")
	}
	rec.Normalize()
	return &rec, nil
}

// validID rejects ids that could escape the snapshot namespace.
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return errors.SnapshotNotFound(id)
	}
	return nil
}

func checkMax(maxCount int) error {
	if maxCount < 0 {
		return errors.InvalidInput(fmt.Sprintf("max snapshot count must not be negative, got %d", maxCount))
	}
	return nil
}
