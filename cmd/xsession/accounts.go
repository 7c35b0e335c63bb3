package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/benaskins/xsession/internal/vault"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"account", "acct"},
	Short:   "Manage stored accounts",
}

var accountsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List accounts",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault("cli", func(v *vault.Vault) error {
			idx, err := v.Snapshot()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(idx.Entries) == 0 {
				fmt.Fprintln(out, "No accounts")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACTIVE\tUSERNAME\tNAME\tUUID\tLAST USED")
			for _, a := range idx.Entries {
				active := ""
				if a.Username == idx.ActiveUsername {
					active = "*"
				}
				name := a.DisplayName
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					active, a.Username, name, a.UUID, formatUnix(a.LastUsed))
			}
			return w.Flush()
		})
	},
}

var accountsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Print the active account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault("cli", func(v *vault.Vault) error {
			name, ok, err := v.Active()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "No active account")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		})
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Store credentials for an account",
	Long: "Store credentials for an account, creating it if needed. The token is read from stdin " +
		"(prompted for when stdin is a terminal). The first account added becomes active.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noToken, _ := cmd.Flags().GetBool("no-token")
		sessionFile, _ := cmd.Flags().GetString("session-file")

		var secret vault.Secret
		if !noToken {
			token, err := readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			secret.Token = token
		}
		if sessionFile != "" {
			data, err := os.ReadFile(sessionFile)
			if err != nil {
				return fmt.Errorf("reading session file: %w", err)
			}
			secret.SessionData = string(data)
		}

		return withVault("cli", func(v *vault.Vault) error {
			id, err := v.Add(args[0], secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q stored (%s)\n", args[0], id)
			return nil
		})
	},
}

// readToken prompts without echo on a terminal and reads all of stdin
// otherwise.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return string(b), nil
	}

	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

var accountsSwitchCmd = &cobra.Command{
	Use:     "switch <username>",
	Aliases: []string{"use"},
	Short:   "Make an account active",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault("cli", func(v *vault.Vault) error {
			if err := v.SetActive(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to %q\n", args[0])
			return nil
		})
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:     "remove <username>",
	Aliases: []string{"rm"},
	Short:   "Remove an account and its credentials",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault("cli", func(v *vault.Vault) error {
			if err := v.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q removed\n", args[0])
			name, ok, err := v.Active()
			if err == nil && ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Active account: %s\n", name)
			}
			return nil
		})
	},
}

var accountsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import credentials stored by older single-account versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault("cli", func(v *vault.Vault) error {
			m, err := v.MigrateLegacy()
			if err != nil {
				return err
			}
			if !m.Imported {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to migrate")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), migrationNotice(m))
			return nil
		})
	},
}

var accountsShowCmd = &cobra.Command{
	Use:   "show <username>",
	Short: "Show the stored credentials of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reveal, _ := cmd.Flags().GetBool("reveal")
		return withVault("cli", func(v *vault.Vault) error {
			rec, err := v.Credentials(args[0])
			if err != nil {
				return err
			}

			token, session := mask(rec.Token), mask(rec.SessionData)
			if reveal {
				token, session = rec.Token, rec.SessionData
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Username:\t%s\n", rec.Username)
			fmt.Fprintf(w, "UUID:\t%s\n", rec.UUID)
			fmt.Fprintf(w, "Token:\t%s\n", token)
			fmt.Fprintf(w, "Session data:\t%s\n", session)
			fmt.Fprintf(w, "Created:\t%s\n", formatUnix(rec.CreatedAt))
			fmt.Fprintf(w, "Last used:\t%s\n", formatUnix(rec.LastUsed))
			return w.Flush()
		})
	},
}

func mask(s string) string {
	if s == "" {
		return "-"
	}
	return fmt.Sprintf("******** (%d bytes)", len(s))
}

var accountsProfileCmd = &cobra.Command{
	Use:   "profile <username>",
	Short: "Set the display name or avatar URL of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p vault.Profile
		if cmd.Flags().Changed("display-name") {
			s, _ := cmd.Flags().GetString("display-name")
			p.DisplayName = &s
		}
		if cmd.Flags().Changed("avatar-url") {
			s, _ := cmd.Flags().GetString("avatar-url")
			p.AvatarURL = &s
		}
		if p.DisplayName == nil && p.AvatarURL == nil {
			return fmt.Errorf("nothing to update: pass --display-name or --avatar-url")
		}

		return withVault("cli", func(v *vault.Vault) error {
			if err := v.UpdateProfile(args[0], p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile of %q updated\n", args[0])
			return nil
		})
	},
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Local().Format(time.DateTime)
}

func init() {
	accountsAddCmd.Flags().Bool("no-token", false, "store the account without a token")
	accountsAddCmd.Flags().String("session-file", "", "read opaque session data from this file")
	accountsShowCmd.Flags().Bool("reveal", false, "print the token and session data in clear")
	accountsProfileCmd.Flags().String("display-name", "", "display name (empty clears it)")
	accountsProfileCmd.Flags().String("avatar-url", "", "avatar URL (empty clears it)")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsActiveCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsSwitchCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
	accountsCmd.AddCommand(accountsMigrateCmd)
	accountsCmd.AddCommand(accountsShowCmd)
	accountsCmd.AddCommand(accountsProfileCmd)
	rootCmd.AddCommand(accountsCmd)
}
