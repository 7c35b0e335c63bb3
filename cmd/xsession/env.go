package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/benaskins/xsession/internal/audit"
	"github.com/benaskins/xsession/internal/config"
	"github.com/benaskins/xsession/internal/keychain"
	"github.com/benaskins/xsession/internal/notify"
	"github.com/benaskins/xsession/internal/sqlitestore"
	"github.com/benaskins/xsession/internal/vault"
)

// cfg is loaded once per invocation by setup.
var cfg *config.Config

func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	loaded, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	level, err := loaded.Level()
	if err != nil {
		return err
	}
	cfg = loaded

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// openStore returns the configured secret store and a func releasing it.
// Tests replace it.
var openStore = func(c *config.Config) (keychain.Store, func(), error) {
	switch c.Backend {
	case config.BackendSQLite:
		db, err := sqlitestore.NewDB(c.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", keychain.ErrUnavailable, err)
		}
		return sqlitestore.NewStore(db, c.Service), func() { db.Close() }, nil
	default:
		s, err := keychain.NewSystemStore(c.Service)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

// session bundles a vault with the resources behind it.
type session struct {
	vault *vault.Vault
	audit *audit.Logger
	close func()
}

// openVault opens the configured store behind an audit log and returns a
// vault over it. actor names this process in audit entries.
func openVault(actor string, events notify.Publisher) (*session, error) {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	var auditLog *audit.Logger
	if cfg.AuditLog != "" {
		auditLog, err = audit.NewLogger(cfg.AuditLog)
		if err != nil {
			closeStore()
			return nil, err
		}
	}

	v, err := vault.New(vault.Options{
		Store:  keychain.NewAuditedStore(store, auditLog, actor),
		AppID:  cfg.AppID,
		KDF:    cfg.KDF,
		Logger: slog.Default(),
		Events: events,
	})
	if err != nil {
		auditLog.Close()
		closeStore()
		return nil, err
	}

	return &session{
		vault: v,
		audit: auditLog,
		close: func() {
			auditLog.Close()
			closeStore()
		},
	}, nil
}

// withVault runs fn against a freshly opened vault.
func withVault(actor string, fn func(v *vault.Vault) error) error {
	s, err := openVault(actor, nil)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s.vault)
}

func migrationNotice(m vault.Migration) string {
	if !m.Imported {
		return ""
	}
	return fmt.Sprintf("Found credentials from an older version. They cannot be matched to a username, "+
		"so a placeholder account %q was created without credentials. Sign in again to replace it.", m.Username)
}
