package fileio

import (
	"github.com/xuri/excelize/v2"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// Sheet names used by WriteWorkbook.
const (
	DefectSheet = "defects"
	RepairSheet = "repairs"
)

// WriteWorkbook writes an XLSX report with one sheet of defects and one of
// repairs, columns matching the CSV layout.
func WriteWorkbook(path string, defects []entities.Defect, repairs []entities.Repair) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	fail := func(err error) error {
		return errors.Newf("failed to write workbook: %w", err).
			Component("fileio").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}

	if err := f.SetSheetName("Sheet1", DefectSheet); err != nil {
		return fail(err)
	}
	if _, err := f.NewSheet(RepairSheet); err != nil {
		return fail(err)
	}

	if err := setRow(f, DefectSheet, 1, toAny(defectColumns)); err != nil {
		return fail(err)
	}
	for i := range defects {
		d := &defects[i]
		values := []any{
			d.ID, d.LineName, d.ModelCode, d.LotNumber,
			d.CurrentBoardIndex, d.DefectNumber,
			d.Serial, d.Reference, d.DefectName, d.X, d.Y,
			d.AOIUser, formatTime(d.InsertedAt), d.ModelLabel, d.BoardLabel,
			d.BoardNumberLabel, d.KintoneRecordID, d.ImagePath,
		}
		if err := setRow(f, DefectSheet, i+2, values); err != nil {
			return fail(err)
		}
	}

	if err := setRow(f, RepairSheet, 1, toAny(repairColumns)); err != nil {
		return fail(err)
	}
	for i := range repairs {
		r := &repairs[i]
		values := []any{r.ID, r.StatusLabel(), r.PartsType, r.Note, formatTime(r.InsertedAt), r.KintoneRecordID}
		if err := setRow(f, RepairSheet, i+2, values); err != nil {
			return fail(err)
		}
	}

	for _, sheet := range []string{DefectSheet, RepairSheet} {
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
		}); err != nil {
			return fail(err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fail(err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
