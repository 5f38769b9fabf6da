package entities

import (
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/kent2980/aoi-data-manager/internal/identity"
)

// Defect is one inspection defect on one board of a lot.
// X and Y are fractional positions on the board image, nominally in [0,1].
type Defect struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	LineName          string    `gorm:"size:64" json:"line_name"`
	ModelCode         string    `gorm:"size:64" json:"model_code"`
	LotNumber         string    `gorm:"size:64;index:idx_defect_info_lot" json:"lot_number"`
	CurrentBoardIndex int       `json:"current_board_index"`
	DefectNumber      int       `json:"defect_number"`
	Serial            string    `gorm:"size:128" json:"serial"`
	Reference         string    `gorm:"size:64" json:"reference"`
	DefectName        string    `gorm:"size:128" json:"defect_name"`
	X                 float64   `gorm:"column:x" json:"x"`
	Y                 float64   `gorm:"column:y" json:"y"`
	AOIUser           string    `gorm:"column:aoi_user;size:64" json:"aoi_user"`
	InsertedAt        time.Time `gorm:"column:inserted_at" json:"inserted_at"`
	ModelLabel        string    `gorm:"size:128" json:"model_label"`
	BoardLabel        string    `gorm:"size:128" json:"board_label"`
	BoardNumberLabel  string    `gorm:"size:128" json:"board_number_label"`
	KintoneRecordID   string    `gorm:"column:kintone_record_id;size:32" json:"kintone_record_id"`
	ImagePath         string    `gorm:"size:1024" json:"image_path,omitempty"`
}

// TableName returns the table name for GORM.
func (Defect) TableName() string {
	return "defect_info"
}

// RecordID returns the row identity.
func (d Defect) RecordID() string {
	return d.ID
}

// DefectParams carries the caller-supplied fields of a new Defect.
// An empty ID is derived from the lot, board index and defect number.
type DefectParams struct {
	ID                string
	LineName          string
	ModelCode         string
	LotNumber         string
	CurrentBoardIndex int
	DefectNumber      int
	Serial            string
	Reference         string
	DefectName        string
	X, Y              float64
	AOIUser           string
	InsertedAt        time.Time
	ModelLabel        string
	BoardLabel        string
	KintoneRecordID   string
	ImagePath         string
}

// NewDefect builds a Defect with its identity and board number label filled in.
func NewDefect(p DefectParams) Defect {
	d := Defect{
		ID:                p.ID,
		LineName:          p.LineName,
		ModelCode:         p.ModelCode,
		LotNumber:         p.LotNumber,
		CurrentBoardIndex: p.CurrentBoardIndex,
		DefectNumber:      p.DefectNumber,
		Serial:            p.Serial,
		Reference:         p.Reference,
		DefectName:        p.DefectName,
		X:                 p.X,
		Y:                 p.Y,
		AOIUser:           p.AOIUser,
		InsertedAt:        p.InsertedAt,
		ModelLabel:        p.ModelLabel,
		BoardLabel:        p.BoardLabel,
		KintoneRecordID:   p.KintoneRecordID,
		ImagePath:         p.ImagePath,
	}
	d.Normalize()
	return d
}

// Normalize fills derived fields that are still empty: the identity, the
// board number label and the insertion time. Explicit values are kept.
func (d *Defect) Normalize() {
	if d.ID == "" {
		d.ID = identity.Generate(d.LotNumber, d.CurrentBoardIndex, d.DefectNumber)
	}
	if d.BoardNumberLabel == "" {
		d.BoardNumberLabel = BoardNumberLabel(d.LotNumber, d.CurrentBoardIndex)
	}
	if d.InsertedAt.IsZero() {
		d.InsertedAt = time.Now()
	}
}

// BeforeSave normalizes rows built as struct literals before they are written.
func (d *Defect) BeforeSave(*gorm.DB) error {
	d.Normalize()
	return nil
}

// BoardNumberLabel formats the composite "{lot}_{board}" label.
func BoardNumberLabel(lot string, board int) string {
	return lot + "_" + strconv.Itoa(board)
}
