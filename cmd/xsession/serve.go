package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/xsession/internal/api"
	"github.com/benaskins/xsession/internal/audit"
	"github.com/benaskins/xsession/internal/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local bridge",
	Long: "Serve the account vault over a Unix socket so a local shell can list, add and switch " +
		"accounts and subscribe to change events. Legacy credentials are migrated on start.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.With("component", "serve")

	hub := notify.NewHub()
	s, err := openVault("bridge", hub)
	if err != nil {
		return err
	}
	defer s.close()

	m, err := s.vault.MigrateLegacy()
	if err != nil {
		return fmt.Errorf("migrating legacy credentials: %w", err)
	}
	if m.Imported {
		logger.Warn(migrationNotice(m))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	srv := api.NewServer(s.vault, hub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenUnix(cfg.Socket)
	}()

	watchExternalChanges(ctx, hub, s.audit)

	logger.Info("xsession bridge ready", "socket", cfg.Socket, "backend", cfg.Backend)

	// Wait for signal or error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server: %w", err)
		}
	}

	// Graceful shutdown
	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown", "error", err)
	}
	os.Remove(cfg.Socket)

	logger.Info("xsession bridge stopped")
	return nil
}

// watchExternalChanges publishes an event whenever another process writes
// to the secret store, as seen through the shared audit log.
func watchExternalChanges(ctx context.Context, hub *notify.Hub, auditLog *audit.Logger) {
	if auditLog == nil {
		return
	}
	follower, err := audit.NewFollower(auditLog.Path(), os.Getpid())
	if err != nil {
		slog.Warn("not watching for external changes", "error", err)
		return
	}
	go func() {
		err := notify.WatchFile(ctx, auditLog.Path(), notify.DefaultDebounce, notify.Forward(hub, follower.Changed))
		if err != nil {
			slog.Warn("audit log watcher stopped", "error", err)
		}
	}()
}
