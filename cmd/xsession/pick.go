package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benaskins/xsession/internal/logbuf"
	"github.com/benaskins/xsession/internal/notify"
	"github.com/benaskins/xsession/internal/tui"
)

var pickCmd = &cobra.Command{
	Use:     "pick",
	Aliases: []string{"ui"},
	Short:   "Switch accounts interactively",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Log lines would tear the full-screen UI; keep them for the footer.
		level, err := cfg.Level()
		if err != nil {
			return err
		}
		ring := logbuf.New(200)
		restore := redirectDefaultLogger(ring.Logger(level))
		defer restore()

		hub := notify.NewHub()
		s, err := openVault("tui", hub)
		if err != nil {
			return err
		}
		defer s.close()

		m, err := s.vault.MigrateLegacy()
		if err != nil {
			return err
		}

		events, unsubscribe := hub.Subscribe(16)
		defer unsubscribe()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		watchExternalChanges(ctx, hub, s.audit)

		model := tui.New(s.vault, events, ring).WithNotice(migrationNotice(m))
		return tui.Run(ctx, model)
	},
}

func init() {
	rootCmd.AddCommand(pickCmd)
}
