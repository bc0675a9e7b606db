package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/logger"
	_ "github.com/mattn/go-sqlite3"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

// SQLiteStore keeps the primary save in a single-row table and each snapshot
// as its own row.
type SQLiteStore struct {
	base
	db *sql.DB
}

var _ Manager = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.IOFailure(err, "open database")
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.IOFailure(err, "connect to database")
	}

	s := newSQLiteStore(db, opts...)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.IOFailure(err, "apply schema")
	}
	return s, nil
}

func newSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	return &SQLiteStore{base: newBase(opts), db: db}
}

func (s *SQLiteStore) migrate() error {
	statements := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS engine_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at)`,
		`CREATE TABLE IF NOT EXISTS set_aside_states (
			id TEXT PRIMARY KEY,
			set_aside_at INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// Save upserts the primary save row.
func (s *SQLiteStore) Save(ctx context.Context, state *models.State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if s.unchanged(data) {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO engine_state (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), s.now().UnixNano())
	if err != nil {
		return errors.IOFailure(err, "write state")
	}
	s.remember(data)
	return nil
}

// Load reads the primary save row.
func (s *SQLiteStore) Load(ctx context.Context) (*models.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM engine_state WHERE id = 1`).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.IOFailure(err, "read state")
	}
	st, err := decodeState([]byte(data))
	if err != nil {
		return nil, err
	}
	if encoded, err := encodeState(st); err == nil {
		s.remember(encoded)
	}
	return st, nil
}

// SetAside copies the primary save row into set_aside_states and deletes it,
// in one transaction.
func (s *SQLiteStore) SetAside(ctx context.Context) (string, error) {
	id, err := s.newID()
	if err != nil {
		return "", errors.IOFailure(err, "generate set-aside id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.IOFailure(err, "begin set aside")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO set_aside_states (id, set_aside_at, data)
		 SELECT ?, ?, data FROM engine_state WHERE id = 1`,
		id, s.now().UnixNano())
	if err != nil {
		return "", errors.IOFailure(err, "copy state aside")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM engine_state WHERE id = 1`); err != nil {
		return "", errors.IOFailure(err, "clear state")
	}
	if err := tx.Commit(); err != nil {
		return "", errors.IOFailure(err, "commit set aside")
	}
	s.forget()
	return "set_aside_states/" + id, nil
}

// Snapshot inserts a new snapshot row. Inserting never replaces a row.
func (s *SQLiteStore) Snapshot(ctx context.Context, state *models.State, reason string) (string, error) {
	rec, err := s.newRecord(state, reason)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "encode snapshot")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, created_at, reason, data) VALUES (?, ?, ?, ?)`,
		rec.BackupID, rec.CreatedAt.UnixNano(), reason, string(data))
	if err != nil {
		return "", errors.IOFailure(err, "write snapshot")
	}
	return rec.BackupID, nil
}

// ListSnapshots returns snapshot summaries, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]models.SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, data FROM snapshots ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.IOFailure(err, "list snapshots")
	}
	defer rows.Close()

	out := []models.SnapshotInfo{}
	for rows.Next() {
		var (
			id        string
			createdAt int64
			data      string
		)
		if err := rows.Scan(&id, &createdAt, &data); err != nil {
			return nil, errors.IOFailure(err, "scan snapshot")
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			logger.Warningf("Skipping corrupt snapshot %s: %v", id, err)
			continue
		}
		rec.BackupID = id
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, rec.Info())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IOFailure(err, "list snapshots")
	}
	return out, nil
}

// Restore reads the state held by snapshot id.
func (s *SQLiteStore) Restore(ctx context.Context, id string) (*models.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE id = ?`, id).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.SnapshotNotFound(id)
	}
	if err != nil {
		return nil, errors.IOFailure(err, "read snapshot")
	}
	rec, err := decodeRecord([]byte(data))
	if err != nil {
		return nil, err
	}
	st := rec.State
	return &st, nil
}

// DeleteSnapshot removes snapshot id.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return errors.IOFailure(err, "delete snapshot")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.SnapshotNotFound(id)
	}
	return nil
}

// PruneSnapshots deletes everything past the newest maxCount rows inside one
// transaction.
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, maxCount int) ([]string, error) {
	if err := checkMax(maxCount); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.IOFailure(err, "begin prune")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM snapshots ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?`, maxCount)
	if err != nil {
		return nil, errors.IOFailure(err, "select snapshots to prune")
	}
	var victims []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.IOFailure(err, "scan snapshot id")
		}
		victims = append(victims, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.IOFailure(err, "select snapshots to prune")
	}

	// Oldest first in the returned slice.
	removed := make([]string, 0, len(victims))
	for i := len(victims) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, victims[i]); err != nil {
			return nil, errors.IOFailure(err, "prune snapshot")
		}
		removed = append(removed, victims[i])
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.IOFailure(err, "commit prune")
	}
	return removed, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
