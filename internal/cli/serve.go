package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/spf13/cobra"

	"rollcall/internal/handlers"
	"rollcall/internal/models"
	"rollcall/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr, publicURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the projector page and JSON API",
		Long: `Serve the projector page at / with live updates over /ws, and the JSON
API under /api. The session is saved after every change and, with
auto_save on, on a timer as well. Stop with Ctrl-C.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				rootOpts.cfg.Addr = addr
			}
			if cmd.Flags().Changed("public-url") {
				rootOpts.cfg.PublicURL = publicURL
			}
			return runServe(rootOpts, cmd)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "URL the QR code points at (overrides config)")
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Live update hub. It greets new clients with the current stats.
	var sess *session
	hub := websocket.New(func() models.Event {
		return models.Event{Type: models.EventStateChanged, Payload: sess.svc.Stats()}
	})

	// 2. Session service, publishing to the hub
	sess, err := openSession(ctx, opts, cmd, hub)
	if err != nil {
		return err
	}
	defer sess.Close()
	go hub.Run(ctx)

	// 3. HTTP handler and router
	httpHandler, err := handlers.NewHTTPHandler(sess.svc, hub, sess.cfg.PublicURL)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse templates", err)
	}
	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	httpHandler.RegisterRoutes(r)

	// 4. Periodic autosave
	if sess.cfg.AutoSave {
		go sess.svc.RunAutosave(ctx, sess.cfg.AutosaveInterval)
	}

	// 5. Run the server until interrupted
	srv := &http.Server{Addr: sess.cfg.Addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (storage: %s, data: %s)\n", sess.cfg.Addr, sess.cfg.Storage, sess.cfg.DataDir)
	logger.Infof("Server starting on %s", sess.cfg.Addr)

	select {
	case err := <-errCh:
		if !stderrors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "run server", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
	if err := sess.flush(shutdownCtx); err != nil {
		return WrapExitError(ExitCommandError, "final save", err)
	}
	logger.Info("Server stopped")
	return nil
}
