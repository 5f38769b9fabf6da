// Package merge provides the merge command
package merge

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kent2980/aoi-data-manager/internal/datastore"
	"github.com/kent2980/aoi-data-manager/internal/merge"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

type options struct {
	target          string
	deleteDefectIDs []string
	deleteRepairIDs []string
}

// Command creates and returns the merge command
func Command(rt *runtime.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "merge SOURCE_DIR",
		Short: "Merge a station database into the configured store",
		Long: `Merge upserts every defect and repair row of the SQLite database in SOURCE_DIR
into the target store (the configured data directory unless --target is given),
then deletes the ids passed with --delete-defect and --delete-repair from the target.
Source rows win over target rows with the same id. SOURCE_DIR must already hold a
database; its rows are never changed, only missing tables are created.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rt, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "Target data directory (default: main.datadir)")
	cmd.Flags().StringSliceVar(&opts.deleteDefectIDs, "delete-defect", nil, "Defect ids to delete from the target after merging")
	cmd.Flags().StringSliceVar(&opts.deleteRepairIDs, "delete-repair", nil, "Repair ids to delete from the target after merging")

	return cmd
}

func run(cmd *cobra.Command, rt *runtime.Context, sourceDir string, opts options) error {
	// stations always write SQLite files
	srcCfg := rt.StoreConfig(sourceDir)
	srcCfg.Engine = datastore.EngineSQLite
	srcCfg.DSN = ""

	report, err := merge.Run(
		merge.Location(srcCfg),
		merge.Location(rt.StoreConfig(opts.target)),
		merge.Options{
			DeleteDefectIDs: trimIDs(opts.deleteDefectIDs),
			DeleteRepairIDs: trimIDs(opts.deleteRepairIDs),
			Logger:          rt.Logger().Module("merge"),
			Metrics:         rt.Metrics(),
		},
	)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("defects: %d upserted, %d deleted\nrepairs: %d upserted, %d deleted",
		report.DefectsUpserted, report.DefectsDeleted, report.RepairsUpserted, report.RepairsDeleted)
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	rt.Notify("AOI merge from "+sourceDir, summary)
	return nil
}

func trimIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
