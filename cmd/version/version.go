// Package version provides the version command
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

// Command creates and returns the version command
func Command(rt *runtime.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aoi %s\n", rt.Build)
		},
	}
}
