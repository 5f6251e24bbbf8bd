// Package cmd holds the adminctl operator commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "adminctl",
		Short: "Operator tooling for the admin panel auth service",
		Long: `adminctl runs maintenance tasks against the admin panel auth service.

Configuration is read the same way as the API: ./config.yaml, ./config/config.yaml
or ADMINPANEL_* environment variables (e.g. ADMINPANEL_POSTGRES_DSN).

Commands:
  migrate         Apply or roll back the embedded schema migrations
  sessions sweep  Revoke sessions past their absolute expiry
  username        Derive the username for a new account
  hash-password   Produce an argon2id digest for a password
  gen-keys        Generate signing secrets and the token encryption key`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newMigrateCmd(),
		newSessionsCmd(),
		newUsernameCmd(),
		newHashPasswordCmd(),
		newGenKeysCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
