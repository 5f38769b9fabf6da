// Package cmd wires the aoi command line.
package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kent2980/aoi-data-manager/cmd/annotate"
	"github.com/kent2980/aoi-data-manager/cmd/config"
	"github.com/kent2980/aoi-data-manager/cmd/export"
	"github.com/kent2980/aoi-data-manager/cmd/importcsv"
	"github.com/kent2980/aoi-data-manager/cmd/merge"
	"github.com/kent2980/aoi-data-manager/cmd/push"
	"github.com/kent2980/aoi-data-manager/cmd/serve"
	"github.com/kent2980/aoi-data-manager/cmd/version"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

// skipInit marks commands that run without loading config.yaml.
const skipInit = "skip-init"

// RootCommand creates and returns the root command. The caller closes rt
// after Execute returns.
func RootCommand(rt *runtime.Context) *cobra.Command {
	var overrides runtime.Overrides

	rootCmd := &cobra.Command{
		Use:          "aoi",
		Short:        "AOI defect and repair data manager",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&overrides.ConfigFile, "config", "c", "", "Path to config.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().StringVar(&overrides.DataDir, "data-dir", "", "Directory holding aoi_data.db, overrides main.datadir")
	rootCmd.PersistentFlags().BoolVarP(&overrides.Debug, "debug", "d", false, "Enable debug output")

	versionCmd := version.Command(rt)
	versionCmd.Annotations = map[string]string{skipInit: "true"}
	configCmd := config.Command()
	configCmd.Annotations = map[string]string{skipInit: "true"}

	rootCmd.AddCommand(
		merge.Command(rt),
		importcsv.Command(rt),
		export.Command(rt),
		push.Command(rt),
		annotate.Command(rt),
		serve.Command(rt),
		configCmd,
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if skipsInit(cmd) {
			return nil
		}
		if overrides.DataDir != "" {
			abs, err := filepath.Abs(overrides.DataDir)
			if err != nil {
				return err
			}
			overrides.DataDir = abs
		}
		return rt.Init(overrides)
	}

	return rootCmd
}

func skipsInit(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipInit] == "true" {
			return true
		}
	}
	return false
}
