package persistence

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/logger"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

const (
	stateFileName  = "lottery_state.json"
	setAsidePrefix = "lottery_state.corrupt-"
	backupDirName  = "backups"
	snapshotPrefix = "backup_"
	snapshotSuffix = ".json"
)

// FileStore keeps the primary save at <dir>/lottery_state.json and snapshots
// at <dir>/backups/backup_<id>.json.
type FileStore struct {
	base
	dir string
}

var _ Manager = (*FileStore)(nil)

// NewFileStore creates dir and its backup directory if needed.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, backupDirName), 0o755); err != nil {
		return nil, errors.IOFailure(err, "create data directory")
	}
	return &FileStore{base: newBase(opts), dir: dir}, nil
}

// StatePath is the location of the primary save.
func (s *FileStore) StatePath() string {
	return filepath.Join(s.dir, stateFileName)
}

func (s *FileStore) snapshotPath(id string) string {
	return filepath.Join(s.dir, backupDirName, snapshotPrefix+id+snapshotSuffix)
}

// Save writes the state to a temporary file and renames it over the primary
// save, so a crash leaves either the old or the new file, never half of one.
func (s *FileStore) Save(ctx context.Context, state *models.State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if s.unchanged(data) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFileAtomic(s.StatePath(), data); err != nil {
		return errors.IOFailure(err, "write state")
	}
	s.remember(data)
	return nil
}

// Load reads the primary save.
func (s *FileStore) Load(ctx context.Context) (*models.State, error) {
	data, err := os.ReadFile(s.StatePath())
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.IOFailure(err, "read state")
	}
	st, err := decodeState(data)
	if err != nil {
		return nil, err
	}
	if encoded, err := encodeState(st); err == nil {
		s.remember(encoded)
	}
	return st, nil
}

// SetAside moves the primary save to <dir>/lottery_state.corrupt-<id>.json.
// Linking first means the bytes exist under the new name before the old
// name goes away.
func (s *FileStore) SetAside(ctx context.Context) (string, error) {
	id, err := s.newID()
	if err != nil {
		return "", errors.IOFailure(err, "generate set-aside id")
	}
	dest := filepath.Join(s.dir, setAsidePrefix+id+snapshotSuffix)
	if err := os.Link(s.StatePath(), dest); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", errors.IOFailure(err, "set aside state")
	}
	if err := os.Remove(s.StatePath()); err != nil {
		return "", errors.IOFailure(err, "set aside state")
	}
	s.forget()
	return dest, nil
}

// Snapshot writes a new snapshot file. The file is linked into place, which
// fails rather than replacing an existing snapshot with the same id.
func (s *FileStore) Snapshot(ctx context.Context, state *models.State, reason string) (string, error) {
	rec, err := s.newRecord(state, reason)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "encode snapshot")
	}

	dir := filepath.Join(s.dir, backupDirName)
	tmp, err := writeTemp(dir, data)
	if err != nil {
		return "", errors.IOFailure(err, "write snapshot")
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, s.snapshotPath(rec.BackupID)); err != nil {
		return "", errors.IOFailure(err, "publish snapshot")
	}
	return rec.BackupID, nil
}

func (s *FileStore) readRecords() ([]*models.SnapshotRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, backupDirName))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.IOFailure(err, "list snapshots")
	}

	var records []*models.SnapshotRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, backupDirName, name))
		if err != nil {
			logger.Warningf("Skipping unreadable snapshot %s: %v", name, err)
			continue
		}
		rec, err := decodeRecord(data)
		if err != nil {
			logger.Warningf("Skipping corrupt snapshot %s: %v", name, err)
			continue
		}
		// The file name is the id Restore and DeleteSnapshot look up; older
		// records carry a backup_id that includes the prefix.
		rec.BackupID = strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
		records = append(records, rec)
	}
	sortNewestFirst(records)
	return records, nil
}

// ListSnapshots returns snapshot summaries, newest first. Files that cannot
// be decoded are skipped.
func (s *FileStore) ListSnapshots(ctx context.Context) ([]models.SnapshotInfo, error) {
	records, err := s.readRecords()
	if err != nil {
		return nil, err
	}
	out := make([]models.SnapshotInfo, 0, len(records))
	for _, r := range records {
		out = append(out, r.Info())
	}
	return out, nil
}

// Restore reads the state held by snapshot id.
func (s *FileStore) Restore(ctx context.Context, id string) (*models.State, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.snapshotPath(id))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.SnapshotNotFound(id)
	}
	if err != nil {
		return nil, errors.IOFailure(err, "read snapshot")
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	st := rec.State
	return &st, nil
}

// DeleteSnapshot removes snapshot id.
func (s *FileStore) DeleteSnapshot(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	err := os.Remove(s.snapshotPath(id))
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.SnapshotNotFound(id)
	}
	if err != nil {
		return errors.IOFailure(err, "delete snapshot")
	}
	return nil
}

// PruneSnapshots removes the oldest snapshots beyond maxCount.
func (s *FileStore) PruneSnapshots(ctx context.Context, maxCount int) ([]string, error) {
	if err := checkMax(maxCount); err != nil {
		return nil, err
	}
	records, err := s.readRecords()
	if err != nil {
		return nil, err
	}
	removed := []string{}
	for i := len(records) - 1; i >= maxCount; i-- {
		id := records[i].BackupID
		if err := os.Remove(s.snapshotPath(id)); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return removed, errors.IOFailure(err, "prune snapshot")
		}
		removed = append(removed, id)
	}
	return removed, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

func sortNewestFirst(records []*models.SnapshotRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.BackupID > b.BackupID
	})
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := writeTemp(filepath.Dir(path), data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
