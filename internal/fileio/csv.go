package fileio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// Encoding selects how CSV input is decoded.
type Encoding int

const (
	// UTF8 input; a leading byte order mark is dropped.
	UTF8 Encoding = iota
	// ShiftJIS input, as written by older inspection stations.
	ShiftJIS
)

// TimeLayout is used for insert_date when writing.
const TimeLayout = "2006-01-02 15:04:05"

var readLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05.999999",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type readOptions struct {
	encoding Encoding
	location *time.Location
}

// Option configures CSV reading.
type Option func(*readOptions)

// WithEncoding sets the input encoding.
func WithEncoding(e Encoding) Option {
	return func(o *readOptions) { o.encoding = e }
}

// WithLocation sets the zone for timestamps that carry no offset. Default Local.
func WithLocation(loc *time.Location) Option {
	return func(o *readOptions) { o.location = loc }
}

var defectColumns = []string{
	"id", "line_name", "model_code", "lot_number", "current_board_index",
	"defect_number", "serial", "reference", "defect_name", "x", "y",
	"aoi_user", "insert_date", "model_label", "board_label",
	"board_number_label", "kintone_record_id", "image_path",
}

var repairColumns = []string{
	"id", "is_repaird", "parts_type", "note", "insert_date", "kintone_record_id",
}

// older files name the timestamp column differently
var columnAliases = map[string]string{
	"insert_datetime": "insert_date",
	"inserted_at":     "insert_date",
	"is_repaired":     "is_repaird",
}

// ReadDefects loads defects from a CSV file with a header row. A missing
// file yields an empty list. Rows without an id get the derived identity.
func ReadDefects(path string, opts ...Option) ([]entities.Defect, error) {
	var out []entities.Defect
	err := readRows(path, opts, func(r row) error {
		board, err := r.int("current_board_index")
		if err != nil {
			return err
		}
		number, err := r.int("defect_number")
		if err != nil {
			return err
		}
		x, err := r.float("x")
		if err != nil {
			return err
		}
		y, err := r.float("y")
		if err != nil {
			return err
		}
		inserted, err := r.time("insert_date")
		if err != nil {
			return err
		}

		d := entities.Defect{
			ID:                r.str("id"),
			LineName:          r.str("line_name"),
			ModelCode:         r.str("model_code"),
			LotNumber:         r.str("lot_number"),
			CurrentBoardIndex: board,
			DefectNumber:      number,
			Serial:            r.str("serial"),
			Reference:         r.str("reference"),
			DefectName:        r.str("defect_name"),
			X:                 x,
			Y:                 y,
			AOIUser:           r.str("aoi_user"),
			InsertedAt:        inserted,
			ModelLabel:        r.str("model_label"),
			BoardLabel:        r.str("board_label"),
			BoardNumberLabel:  r.str("board_number_label"),
			KintoneRecordID:   r.str("kintone_record_id"),
			ImagePath:         r.str("image_path"),
		}
		d.Normalize()
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, wrapRead("defect", path, err)
	}
	if out == nil {
		out = []entities.Defect{}
	}
	return out, nil
}

// ReadRepairs loads repair rows. A missing file yields an empty list.
func ReadRepairs(path string, opts ...Option) ([]entities.Repair, error) {
	var out []entities.Repair
	err := readRows(path, opts, func(r row) error {
		id := r.str("id")
		if id == "" {
			return fmt.Errorf("line %d: id is empty", r.line)
		}
		repaired, ok := entities.ParseRepairedLabel(r.str("is_repaird"))
		if !ok {
			return fmt.Errorf("line %d: unknown repair status %q", r.line, r.str("is_repaird"))
		}
		inserted, err := r.time("insert_date")
		if err != nil {
			return err
		}
		out = append(out, entities.Repair{
			ID:              id,
			Repaired:        repaired,
			PartsType:       r.str("parts_type"),
			Note:            r.str("note"),
			InsertedAt:      inserted,
			KintoneRecordID: r.str("kintone_record_id"),
		})
		return nil
	})
	if err != nil {
		return nil, wrapRead("repaird", path, err)
	}
	if out == nil {
		out = []entities.Repair{}
	}
	return out, nil
}

// WriteDefects writes defects as UTF-8 CSV with a byte order mark so that
// spreadsheet tools detect the encoding.
func WriteDefects(path string, defects []entities.Defect) error {
	rows := make([][]string, 0, len(defects))
	for i := range defects {
		d := &defects[i]
		rows = append(rows, []string{
			d.ID, d.LineName, d.ModelCode, d.LotNumber,
			strconv.Itoa(d.CurrentBoardIndex), strconv.Itoa(d.DefectNumber),
			d.Serial, d.Reference, d.DefectName,
			formatFloat(d.X), formatFloat(d.Y),
			d.AOIUser, formatTime(d.InsertedAt), d.ModelLabel, d.BoardLabel,
			d.BoardNumberLabel, d.KintoneRecordID, d.ImagePath,
		})
	}
	if err := writeCSV(path, defectColumns, rows); err != nil {
		return errors.Newf("failed to save defect CSV: %w", err).
			Component("fileio").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return nil
}

// WriteRepairs writes repair rows with the status as its label.
func WriteRepairs(path string, repairs []entities.Repair) error {
	rows := make([][]string, 0, len(repairs))
	for i := range repairs {
		r := &repairs[i]
		rows = append(rows, []string{
			r.ID, r.StatusLabel(), r.PartsType, r.Note,
			formatTime(r.InsertedAt), r.KintoneRecordID,
		})
	}
	if err := writeCSV(path, repairColumns, rows); err != nil {
		return errors.Newf("failed to save repaird CSV: %w", err).
			Component("fileio").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	if _, err := bw.Write(utf8BOM); err != nil {
		f.Close()
		return err
	}
	w := csv.NewWriter(bw)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// row is one CSV record addressed by header name.
type row struct {
	line   int
	fields []string
	index  map[string]int
	loc    *time.Location
}

func (r row) str(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r row) int(col string) (int, error) {
	s := r.str(col)
	if s == "" {
		return 0, nil
	}
	// pandas writes integer columns containing blanks as floats
	s = strings.TrimSuffix(s, ".0")
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %w", r.line, col, err)
	}
	return v, nil
}

func (r row) float(col string) (float64, error) {
	s := r.str(col)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %w", r.line, col, err)
	}
	return v, nil
}

func (r row) time(col string) (time.Time, error) {
	s := r.str(col)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range readLayouts {
		if t, err := time.ParseInLocation(layout, s, r.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("line %d: %s: unrecognized time %q", r.line, col, s)
}

func decoder(e Encoding) transform.Transformer {
	if e == ShiftJIS {
		return japanese.ShiftJIS.NewDecoder()
	}
	return unicode.BOMOverride(unicode.UTF8.NewDecoder())
}

// readRows streams the records of path to fn. A missing file is not an error.
func readRows(path string, opts []Option, fn func(row) error) error {
	o := readOptions{location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	cr := csv.NewReader(transform.NewReader(f, decoder(o.encoding)))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	index := headerIndex(header)

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if isBlank(rec) {
			continue
		}
		if err := fn(row{line: line, fields: rec, index: index, loc: o.location}); err != nil {
			return err
		}
	}
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return index
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func wrapRead(kind, path string, err error) error {
	return errors.Newf("failed to read %s CSV: %w", kind, err).
		Component("fileio").
		Category(errors.CategoryFileParsing).
		FileContext(path).
		Build()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}
