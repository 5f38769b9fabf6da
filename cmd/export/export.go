// Package export provides the export command for CSV and workbook reports
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kent2980/aoi-data-manager/internal/datastore"
	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/fileio"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

type options struct {
	lot       string
	format    string
	outputDir string
	imageName string
}

// Command creates and returns the export command
func Command(rt *runtime.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write defects and repairs to CSV files or an XLSX workbook",
		Long: `Export writes the defects of one lot (or all lots) and their repairs.
With --format csv the files are {lot}_{image}.csv and {lot}_repaird_list.csv,
with --format xlsx a single {lot}.xlsx workbook is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.outputDir == "" {
				opts.outputDir = rt.Settings.Export.OutputDir
			}
			store, err := rt.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			paths, err := run(store, opts)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.lot, "lot", "l", "", "Lot number to export (default: all lots)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "csv", "Output format: csv or xlsx")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (default: export.outputdir)")
	cmd.Flags().StringVar(&opts.imageName, "image", "defects", "Image name used in the defect CSV file name")

	return cmd
}

func run(store *datastore.Store, opts options) ([]string, error) {
	defects, repairs, err := collect(store, opts.lot)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return nil, errors.FileError(err, opts.outputDir)
	}

	lot := opts.lot
	if lot == "" {
		lot = "all"
	}

	switch opts.format {
	case "csv":
		defectPath, err := fileio.DefectCSVPath(opts.outputDir, lot, opts.imageName)
		if err != nil {
			return nil, err
		}
		repairPath, err := fileio.RepairCSVPath(opts.outputDir, lot)
		if err != nil {
			return nil, err
		}
		if err := fileio.WriteDefects(defectPath, defects); err != nil {
			return nil, err
		}
		if err := fileio.WriteRepairs(repairPath, repairs); err != nil {
			return nil, err
		}
		return []string{defectPath, repairPath}, nil
	case "xlsx":
		path := filepath.Join(opts.outputDir, lot+".xlsx")
		if err := fileio.WriteWorkbook(path, defects, repairs); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}
	return nil, errors.Newf("unsupported export format %q, want csv or xlsx", opts.format).
		Category(errors.CategoryValidation).
		Build()
}

// collect loads the defects of lot and the repairs that belong to them.
func collect(store *datastore.Store, lot string) ([]entities.Defect, []entities.Repair, error) {
	var (
		defects []entities.Defect
		err     error
	)
	if lot != "" {
		defects, err = store.Defects().ByLot(lot)
	} else {
		defects, err = store.Defects().All()
	}
	if err != nil {
		return nil, nil, err
	}

	all, err := store.Repairs().All()
	if err != nil {
		return nil, nil, err
	}
	if lot == "" {
		return defects, all, nil
	}

	ids := make(map[string]struct{}, len(defects))
	for i := range defects {
		ids[defects[i].ID] = struct{}{}
	}
	var repairs []entities.Repair
	for _, r := range all {
		if _, ok := ids[r.ID]; ok {
			repairs = append(repairs, r)
		}
	}
	return defects, repairs, nil
}
