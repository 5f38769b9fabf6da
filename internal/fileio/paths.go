// Package fileio reads and writes the CSV, workbook and image files that sit
// next to the local database: per-board defect lists, per-lot repair lists,
// the defect name mapping and the inspector list.
package fileio

import (
	"path/filepath"

	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// RepairCSVPath returns {dir}/{lot}_repaird_list.csv.
func RepairCSVPath(dir, lot string) (string, error) {
	if lot == "" {
		return "", errors.ValidationError("Current lot number is not set.")
	}
	if dir == "" {
		return "", errors.ValidationError("Not Setting Data Directory")
	}
	return filepath.Join(dir, lot+"_repaird_list.csv"), nil
}

// DefectCSVPath returns {dir}/{lot}_{imageName}.csv. imageName has no extension.
func DefectCSVPath(dir, lot, imageName string) (string, error) {
	switch {
	case lot == "":
		return "", errors.ValidationError("Lot number is not set.")
	case imageName == "":
		return "", errors.ValidationError("Image filename is not set.")
	case dir == "":
		return "", errors.ValidationError("Data directory is not set.")
	}
	return filepath.Join(dir, lot+"_"+imageName+".csv"), nil
}
