// Package importcsv provides the import command for defect and repair CSV files
package importcsv

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kent2980/aoi-data-manager/internal/datastore"
	"github.com/kent2980/aoi-data-manager/internal/fileio"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

const repairSuffix = "_repaird_list.csv"

// Command creates and returns the import command
func Command(rt *runtime.Context) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load defect or repair CSV files into the store",
		Long: `Import upserts the rows of each CSV file into the store. Files ending in
_repaird_list.csv are read as repair lists, everything else as defect lists,
unless --kind is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rt.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			for _, path := range args {
				n, k, err := importFile(rt, store, path, kind)
				if err != nil {
					return err
				}
				rt.Logger().Info("csv imported",
					logger.String("path", path),
					logger.String("kind", k),
					logger.Int("rows", n))
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d %s\n", filepath.Base(path), n, k)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "File kind: defects or repairs (default: by file name)")
	return cmd
}

func detectKind(path, kind string) (string, error) {
	switch kind {
	case "defects", "repairs":
		return kind, nil
	case "":
		if strings.HasSuffix(filepath.Base(path), repairSuffix) {
			return "repairs", nil
		}
		return "defects", nil
	}
	return "", fmt.Errorf("unknown kind %q, want defects or repairs", kind)
}

func importFile(rt *runtime.Context, store *datastore.Store, path, kind string) (int, string, error) {
	kind, err := detectKind(path, kind)
	if err != nil {
		return 0, "", err
	}

	if kind == "repairs" {
		repairs, err := fileio.ReadRepairs(path, rt.ReadOptions()...)
		if err != nil {
			return 0, kind, err
		}
		return len(repairs), kind, store.Repairs().UpsertBatch(repairs)
	}

	defects, err := fileio.ReadDefects(path, rt.ReadOptions()...)
	if err != nil {
		return 0, kind, err
	}
	return len(defects), kind, store.Defects().UpsertBatch(defects)
}
