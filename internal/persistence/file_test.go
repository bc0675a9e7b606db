package persistence

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

func TestFileStoreSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	st := sampleState()
	require.NoError(t, s.Save(ctx, st))
	require.NoError(t, os.Remove(s.StatePath()))

	// Unchanged state: nothing is written.
	require.NoError(t, s.Save(ctx, st))
	_, err = os.Stat(s.StatePath())
	assert.True(t, os.IsNotExist(err))

	st.Round++
	require.NoError(t, s.Save(ctx, st))
	_, err = os.Stat(s.StatePath())
	assert.NoError(t, err)
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sampleState()))
	_, err = s.Snapshot(context.Background(), sampleState(), "")
	require.NoError(t, err)

	for _, sub := range []string{dir, filepath.Join(dir, backupDirName)} {
		matches, err := filepath.Glob(filepath.Join(sub, ".tmp-*"))
		require.NoError(t, err)
		assert.Empty(t, matches, sub)
	}
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.StatePath(), []byte("{not json"), 0o644))

	_, err = s.Load(context.Background())
	assert.Equal(t, errors.ErrCorruptState, errors.KindOf(err))
}

func TestFileStoreLoadsLegacyFile(t *testing.T) {
	legacy, err := os.ReadFile(filepath.Join("testdata", "legacy_state.json"))
	require.NoError(t, err)
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.StatePath(), legacy, 0o644))

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"王芳", "李娜", "赵磊"}, st.Undrawn)
	assert.Equal(t, []string{"张伟", "刘洋", "陈静"}, st.Drawn)
	assert.Equal(t, 4, st.Round)
	assert.Equal(t, map[string]int{"王芳": 8}, st.Weights)
	assert.True(t, st.Settings.AutoBackup)

	require.Len(t, st.History, 3)
	assert.Equal(t, models.ModeUniform, st.History[0].Mode)
	assert.Equal(t, models.ModeWeighted, st.History[1].Mode)
	assert.Equal(t, models.ModeUniform, st.History[2].Mode, "quick draws were uniform")
	assert.Equal(t, time.Date(2025, 3, 1, 9, 20, 30, 0, time.Local), st.History[1].Timestamp)

	require.Len(t, st.ImportHistory, 1)
	assert.Equal(t, "class.txt", st.ImportHistory[0].Label)
	assert.Len(t, st.ImportHistory[0].Names, 6)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local), st.ImportHistory[0].Timestamp)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 25, 0, 0, time.Local), st.LastUpdated)

	// Saving rewrites it in the current format, which loads back the same.
	st.Round++
	require.NoError(t, s.Save(context.Background(), st))
	again, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, st.History[1].Timestamp.Unix(), again.History[1].Timestamp.Unix())
	assert.Equal(t, st.History[1].Mode, again.History[1].Mode)
}

func TestFileStoreListsLegacyBackup(t *testing.T) {
	legacy, err := os.ReadFile(filepath.Join("testdata", "legacy_backup.json"))
	require.NoError(t, err)
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, backupDirName, "backup_20250301_091505.json"), legacy, 0o644))

	list, err := s.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "20250301_091505", list[0].ID)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 15, 5, 0, time.Local), list[0].CreatedAt)
	assert.Equal(t, 3, list[0].Total)

	st, err := s.Restore(context.Background(), list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModeFair, st.History[0].Mode)
}

func TestFileStoreSetAsideKeepsCorruptBytes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	broken := []byte(`{"unselected": ["A"], "round": "two"}`)
	require.NoError(t, os.WriteFile(s.StatePath(), broken, 0o644))

	_, err = s.Load(ctx)
	require.Equal(t, errors.ErrCorruptState, errors.KindOf(err))

	where, err := s.SetAside(ctx)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(where))
	assert.True(t, strings.HasPrefix(filepath.Base(where), setAsidePrefix))

	require.NoError(t, s.Save(ctx, sampleState()))
	kept, err := os.ReadFile(where)
	require.NoError(t, err)
	assert.Equal(t, broken, kept)

	list, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "set-aside files are not snapshots")
}

func TestFileStoreListSkipsCorruptSnapshots(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	_, err = s.Snapshot(context.Background(), sampleState(), "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, backupDirName, "backup_broken.json"), []byte("]["), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, backupDirName, "notes.txt"), []byte("hi"), 0o644))

	list, err := s.ListSnapshots(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.Restore(context.Background(), "broken")
	assert.Equal(t, errors.ErrCorruptState, errors.KindOf(err))
}

func TestFileStoreRejectsPathIDs(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	for _, id := range []string{"", "../lottery_state", "a/b"} {
		_, err := s.Restore(context.Background(), id)
		assert.Equal(t, errors.ErrSnapshotNotFound, errors.KindOf(err), id)
	}
}

func TestFileStoreSaveFailure(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	// A directory in place of the state file makes the rename fail.
	require.NoError(t, os.Mkdir(s.StatePath(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.StatePath(), "x"), nil, 0o644))

	err = s.Save(context.Background(), sampleState())
	assert.Equal(t, errors.ErrIOFailure, errors.KindOf(err))
}
