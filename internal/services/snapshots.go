package services

import (
	"context"

	"github.com/google/logger"

	"rollcall/internal/models"
)

// autoSnapshotLocked keeps a copy of the live state before a destructive
// command when auto backup is on, then prunes old snapshots. Failures are
// logged and never block the command.
func (s *LotteryService) autoSnapshotLocked(ctx context.Context, reason string) {
	if !s.settings.AutoBackup {
		return
	}
	id, err := s.store.Snapshot(ctx, s.stateLocked(), reason)
	if err != nil {
		logger.Warningf("Automatic snapshot %q failed: %v", reason, err)
		return
	}
	logger.Infof("Snapshot %s taken (%s)", id, reason)
	s.pruneLocked(ctx)
}

func (s *LotteryService) pruneLocked(ctx context.Context) {
	removed, err := s.store.PruneSnapshots(ctx, s.maxBackups)
	if err != nil {
		logger.Warningf("Pruning snapshots failed: %v", err)
		return
	}
	if len(removed) > 0 {
		logger.Infof("Pruned %d old snapshots", len(removed))
	}
}

// Snapshot stores a copy of the live state on demand.
func (s *LotteryService) Snapshot(ctx context.Context, reason string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reason == "" {
		reason = "manual"
	}
	id, err := s.store.Snapshot(ctx, s.stateLocked(), reason)
	if err != nil {
		return "", err
	}
	s.pruneLocked(ctx)
	return id, nil
}

// ListSnapshots returns the stored snapshots, newest first.
func (s *LotteryService) ListSnapshots(ctx context.Context) ([]models.SnapshotInfo, error) {
	return s.store.ListSnapshots(ctx)
}

// RestoreSnapshot replaces the live state with snapshot id. With auto backup
// on, the state being replaced is kept as a snapshot first.
func (s *LotteryService) RestoreSnapshot(ctx context.Context, id string) (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idleLocked(); err != nil {
		return nil, err
	}
	st, err := s.store.Restore(ctx, id)
	if err != nil {
		return nil, err
	}
	s.autoSnapshotLocked(ctx, "before restore")
	if err := s.installLocked(st); err != nil {
		return nil, err
	}
	s.commitLocked(ctx)
	logger.Infof("Restored snapshot %s", id)
	return s.stateLocked(), nil
}

// DeleteSnapshot removes snapshot id.
func (s *LotteryService) DeleteSnapshot(ctx context.Context, id string) error {
	return s.store.DeleteSnapshot(ctx, id)
}

// PruneSnapshots keeps only the newest maxCount snapshots.
func (s *LotteryService) PruneSnapshots(ctx context.Context, maxCount int) ([]string, error) {
	return s.store.PruneSnapshots(ctx, maxCount)
}
