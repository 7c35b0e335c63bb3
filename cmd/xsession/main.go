package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benaskins/xsession/internal/vault"
)

var rootCmd = &cobra.Command{
	Use:               "xsession",
	Short:             "Encrypted multi-account session vault",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.xsession/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level from the config file")
}

// Exit codes are stable so scripts can tell failures apart.
const (
	exitGeneric       = 1
	exitNotFound      = 2
	exitUnavailable   = 3
	exitCrypto        = 4
	exitSerialization = 5
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, vault.ErrAccountNotFound),
		errors.Is(err, vault.ErrInvalidUsername),
		errors.Is(err, vault.ErrRecordTooLarge),
		errors.Is(err, vault.ErrNoCredentials):
		return exitNotFound
	case errors.Is(err, vault.ErrStoreUnavailable):
		return exitUnavailable
	case errors.Is(err, vault.ErrCrypto):
		return exitCrypto
	case errors.Is(err, vault.ErrSerialization):
		return exitSerialization
	default:
		return exitGeneric
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
