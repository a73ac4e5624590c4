package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/givebridge/givebridge/internal/cli/commands"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the givebridge command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "givebridge",
		Short: "givebridge - access gate tooling",
		Long: `givebridge CLI - inspect the route table and the access gate.

Check which page a visitor ends up on, print the active route table, or mint
a session token for local testing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "givebridge version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewCheckCmd())
	rootCmd.AddCommand(commands.NewRoutesCmd())
	rootCmd.AddCommand(commands.NewTokenCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
