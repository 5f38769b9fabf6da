package entities

import (
	"time"

	"gorm.io/gorm"
)

// Repair labels used at the CSV and kintone boundaries.
const (
	RepairedLabel   = "修理済み"
	UnrepairedLabel = "未修理"
)

// Repair records the repair disposition for the Defect with the same ID.
type Repair struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Repaired        bool      `json:"repaired"`
	PartsType       string    `gorm:"size:64" json:"parts_type"`
	Note            string    `gorm:"size:1024" json:"note,omitempty"`
	InsertedAt      time.Time `gorm:"column:inserted_at" json:"inserted_at"`
	KintoneRecordID string    `gorm:"column:kintone_record_id;size:32" json:"kintone_record_id"`
}

// TableName returns the table name for GORM.
func (Repair) TableName() string {
	return "repair_info"
}

// RecordID returns the row identity.
func (r Repair) RecordID() string {
	return r.ID
}

// StatusLabel returns the human-readable repair status.
func (r Repair) StatusLabel() string {
	if r.Repaired {
		return RepairedLabel
	}
	return UnrepairedLabel
}

// BeforeSave stamps the insertion time when the caller left it empty.
func (r *Repair) BeforeSave(*gorm.DB) error {
	if r.InsertedAt.IsZero() {
		r.InsertedAt = time.Now()
	}
	return nil
}

// ParseRepairedLabel accepts the status labels as well as "true"/"false"
// style booleans. ok is false for anything else.
func ParseRepairedLabel(s string) (repaired, ok bool) {
	switch s {
	case RepairedLabel, "true", "True", "TRUE", "1":
		return true, true
	case UnrepairedLabel, "false", "False", "FALSE", "0", "":
		return false, true
	}
	return false, false
}
