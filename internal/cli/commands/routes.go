package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/givebridge/givebridge/internal/routes"
)

// NewRoutesCmd creates the routes command
func NewRoutesCmd() *cobra.Command {
	var routeFile string

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the active route table",
		Long: `Print the route table in the YAML format accepted by ROUTE_TABLE_FILE.

The output of this command is a valid starting point for a custom table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(routeFile)
			if err != nil {
				return err
			}
			return runRoutes(cmd.OutOrStdout(), table)
		},
	}

	cmd.Flags().StringVar(&routeFile, "routes", "", "YAML route table (defaults to the compiled-in table)")

	return cmd
}

func runRoutes(out io.Writer, table *routes.Table) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(table); err != nil {
		return fmt.Errorf("failed to render route table: %w", err)
	}
	return enc.Close()
}
