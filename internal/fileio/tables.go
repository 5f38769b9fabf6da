package fileio

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/text/transform"

	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// Table is a small lookup CSV held in memory.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the values of the named column, nil if absent.
func (t *Table) Column(name string) []string {
	idx := -1
	for i, h := range t.Header {
		if h == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		if idx < len(r) {
			out = append(out, r[idx])
		}
	}
	return out
}

// Lookup maps key column values to value column values. Later rows win.
func (t *Table) Lookup(keyCol, valueCol string) map[string]string {
	keys, values := t.Column(keyCol), t.Column(valueCol)
	out := make(map[string]string, len(keys))
	for i := range min(len(keys), len(values)) {
		out[keys[i]] = values[i]
	}
	return out
}

// ReadDefectMapping loads defect_mapping.csv, dropping rows with any empty cell.
func ReadDefectMapping(path string, opts ...Option) (*Table, error) {
	t, err := readTable(path, "defect_mapping.csv", opts)
	if err != nil {
		return nil, err
	}
	kept := t.Rows[:0]
	for _, r := range t.Rows {
		if len(r) == len(t.Header) && !hasEmpty(r) {
			kept = append(kept, r)
		}
	}
	t.Rows = kept
	return t, nil
}

// ReadUsers loads user.csv.
func ReadUsers(path string, opts ...Option) (*Table, error) {
	return readTable(path, "user.csv", opts)
}

func readTable(path, label string, opts []Option) (*Table, error) {
	o := readOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.New(fmt.Errorf("%s not found at %s: %w", label, path, err)).
				Component("fileio").
				Category(errors.CategoryFileIO).
				FileContext(path).
				Build()
		}
		return nil, errors.FileError(err, path)
	}
	defer f.Close()

	cr := csv.NewReader(transform.NewReader(f, decoder(o.encoding)))
	cr.FieldsPerRecord = -1

	t := &Table{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapRead(strings.TrimSuffix(label, ".csv"), path, err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if t.Header == nil {
			t.Header = rec
			continue
		}
		if isBlank(rec) {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

func hasEmpty(rec []string) bool {
	for _, f := range rec {
		if f == "" {
			return true
		}
	}
	return false
}
