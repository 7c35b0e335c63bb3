package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/benaskins/xsession/internal/config"
	"github.com/benaskins/xsession/internal/keychain"
	"github.com/benaskins/xsession/internal/vault"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Check the secret store for missing or orphaned records",
	Long: `Lists the entries held by the configured secret store and compares them
with the account index. Records left behind by an interrupted remove are
reported as orphaned; accounts whose credentials were never written are
reported as missing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault("cli", func(v *vault.Vault) error {
			inv, err := v.Inventory()
			if errors.Is(err, keychain.ErrNotListable) {
				return fmt.Errorf("the %s backend cannot list its entries on this platform", cfg.Backend)
			}
			if err != nil {
				return err
			}

			missing := "-"
			if len(inv.Missing) > 0 {
				missing = strings.Join(inv.Missing, ", ")
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Backend:\t%s\n", cfg.Backend)
			fmt.Fprintf(w, "Location:\t%s\n", storeLocation(cfg))
			fmt.Fprintf(w, "Entries:\t%d\n", inv.Entries)
			fmt.Fprintf(w, "Index:\t%s\n", yesNo(inv.Index))
			fmt.Fprintf(w, "Legacy record:\t%s\n", yesNo(inv.Legacy))
			fmt.Fprintf(w, "Credential records:\t%d\n", inv.Credentials)
			fmt.Fprintf(w, "Missing credentials:\t%s\n", missing)
			fmt.Fprintf(w, "Orphaned records:\t%d\n", inv.Orphans)
			return w.Flush()
		})
	},
}

func storeLocation(c *config.Config) string {
	if c.Backend == config.BackendSQLite {
		return c.SQLitePath
	}
	return "service " + c.Service
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(storeCmd)
}
