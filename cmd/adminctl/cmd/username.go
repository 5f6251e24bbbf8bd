package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"adminpanel/api/internal/service"
)

func newUsernameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "username <first-name> <last-name> <document>",
		Short: "Derive the username for a new account",
		Example: `  adminctl username Juan "Sánchez" 12345678
  # Output: jsanchez5678`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := service.BuildUsername(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), username)
			return nil
		},
	}
}
