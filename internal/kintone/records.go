package kintone

import (
	"time"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
)

// kintone datetime fields take UTC RFC3339 without fractional seconds
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func defectRecord(d *entities.Defect) map[string]fieldValue {
	return map[string]fieldValue{
		"line_name":           {d.LineName},
		"model_code":          {d.ModelCode},
		"lot_number":          {d.LotNumber},
		"current_board_index": {d.CurrentBoardIndex},
		"defect_number":       {d.DefectNumber},
		"serial":              {d.Serial},
		"reference":           {d.Reference},
		"defect_name":         {d.DefectName},
		"x":                   {d.X},
		"y":                   {d.Y},
		"aoi_user":            {d.AOIUser},
		"insert_date":         {formatTime(d.InsertedAt)},
		"model_label":         {d.ModelLabel},
		"board_label":         {d.BoardLabel},
		"board_number_label":  {d.BoardNumberLabel},
		UpdateKeyField:        {d.ID},
	}
}

func repairRecord(r *entities.Repair) map[string]fieldValue {
	return map[string]fieldValue{
		UpdateKeyField: {r.ID},
		"is_repaird":   {r.StatusLabel()},
		"parts_type":   {r.PartsType},
		"note":         {r.Note},
		"insert_date":  {formatTime(r.InsertedAt)},
	}
}

func upsertEntry(id string, record map[string]fieldValue) upsertRecord {
	return upsertRecord{
		UpdateKey: updateKey{Field: UpdateKeyField, Value: id},
		Revision:  -1,
		Record:    record,
	}
}
