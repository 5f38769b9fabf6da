package fileio

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// ImageInfo is the decoded name of a board image,
// {item}_{lotSuffix}_{model}_{board}_{side}.{ext}.
type ImageInfo struct {
	ItemCode  string
	LotSuffix string
	ModelName string
	BoardName string
	BoardSide string
	Ext       string
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// ParseImageFileName splits a board image file name into its parts.
func ParseImageFileName(name string) (ImageInfo, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	parts := strings.Split(strings.TrimSuffix(base, ext), "_")
	if len(parts) < 5 {
		return ImageInfo{}, errors.New(fmt.Errorf("unexpected image file name %q", base)).
			Component("fileio").
			Category(errors.CategoryValidation).
			Build()
	}
	return ImageInfo{
		ItemCode:  parts[0],
		LotSuffix: parts[1],
		ModelName: parts[2],
		BoardName: parts[3],
		BoardSide: strings.Join(parts[4:], "_"),
		Ext:       strings.ToLower(ext),
	}, nil
}

// LotSuffix returns the part of a lot number after its last '-', or the
// whole lot when it has none.
func LotSuffix(lot string) string {
	if i := strings.LastIndexByte(lot, '-'); i >= 0 {
		return lot[i+1:]
	}
	return lot
}

// FindImage returns the name of the first image in dir, in name order, that
// belongs to itemCode and lot.
func FindImage(dir, lot, itemCode string) (string, error) {
	if lot == "" || itemCode == "" {
		return "", errors.ValidationError("lot number and item code are required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.FileError(err, dir)
	}

	prefix := itemCode + "_" + LotSuffix(lot) + "_"
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			return e.Name(), nil
		}
	}

	return "", errors.Newf("no image for %s in %s: %w", prefix, dir, fs.ErrNotExist).
		Component("fileio").
		Category(errors.CategoryNotFound).
		Context("item_code", itemCode).
		Context("lot_number", lot).
		Build()
}
