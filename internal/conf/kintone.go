package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// SaveKintoneFile writes the connection part of k as JSON readable only by
// the owner, since it carries the API token.
func SaveKintoneFile(path string, k KintoneSettings) error {
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.FileError(err, path)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.FileError(err, path)
	}
	return nil
}

// LoadKintoneFile reads a file written by SaveKintoneFile. A missing file
// is an error wrapping os.ErrNotExist.
func LoadKintoneFile(path string) (KintoneSettings, error) {
	var k KintoneSettings
	data, err := os.ReadFile(path)
	if err != nil {
		return k, errors.FileError(fmt.Errorf("kintone settings file: %w", err), path)
	}
	if err := json.Unmarshal(data, &k); err != nil {
		return k, errors.New(fmt.Errorf("invalid kintone settings file: %w", err)).
			Category(errors.CategoryFileParsing).
			FileContext(path).
			Build()
	}
	return k, nil
}

// mergeFile fills empty connection fields from the settings file.
// Values from config.yaml or the environment win.
func (k *KintoneSettings) mergeFile(path string) error {
	f, err := LoadKintoneFile(path)
	if err != nil {
		return err
	}
	if k.Subdomain == "" {
		k.Subdomain = f.Subdomain
	}
	if k.AppID == 0 {
		k.AppID = f.AppID
	}
	if k.APIToken == "" {
		k.APIToken = f.APIToken
	}
	if k.ImageField == "" {
		k.ImageField = f.ImageField
	}
	return nil
}
