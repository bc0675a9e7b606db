package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/logger"
	"github.com/spf13/cobra"

	"rollcall/internal/config"
	"rollcall/internal/errors"
	"rollcall/internal/persistence"
	"rollcall/internal/selector"
	"rollcall/internal/services"
)

// sqliteFileName is the database file inside the data directory.
const sqliteFileName = "lottery.db"

// session is an opened service plus the store behind it.
type session struct {
	cfg   config.Config
	store persistence.Manager
	svc   *services.LotteryService
}

func openStore(cfg config.Config) (persistence.Manager, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		return persistence.OpenSQLite(filepath.Join(cfg.DataDir, sqliteFileName))
	case config.StorageFile:
		return persistence.NewFileStore(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// openSession builds the service from the loaded config and installs the
// saved state. An unusable save has been set aside by the service, so it is
// only reported on stderr and the session starts empty. Any other load
// failure stops the command before a save could replace the old file.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, notifier services.Notifier) (*session, error) {
	cfg := opts.cfg
	store, err := openStore(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open storage", err)
	}

	svc := services.NewLotteryService(services.Options{
		Store:        store,
		Notifier:     notifier,
		Source:       selector.NewSource(cfg.Seed),
		Settings:     cfg.Settings(),
		MaxBackups:   cfg.MaxBackups,
		DefaultMode:  cfg.Mode(),
		TickInterval: cfg.TickInterval(),
		Ticks:        config.RevealTicks,
	})
	if err := svc.Load(ctx); err != nil {
		if !errors.Is(err, errors.ErrCorruptState) {
			store.Close()
			return nil, WrapExitError(ExitCommandError, "load session", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: saved session could not be loaded, starting empty: %v\n", err)
	}
	return &session{cfg: cfg, store: store, svc: svc}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		logger.Errorf("Failed to close storage: %v", err)
	}
}

// withSession opens a session for the duration of fn.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts, cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// flush saves the session once more so a write the service could only log
// becomes the command's error.
func (s *session) flush(ctx context.Context) error {
	if err := s.svc.Save(ctx); err != nil {
		return errors.IOFailure(err, "save session")
	}
	return nil
}
