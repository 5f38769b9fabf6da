package datastore

import (
	"gorm.io/gorm"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
)

// DefectTable adds lot lookups to the defect table.
type DefectTable struct {
	*Table[entities.Defect]
}

// ByLot returns every defect recorded for lot. Order is unspecified.
func (t *DefectTable) ByLot(lot string) ([]entities.Defect, error) {
	var out []entities.Defect
	_, err := t.exec(metrics.OpByLot, func(db *gorm.DB) (int64, error) {
		res := db.Where("lot_number = ?", lot).Find(&out)
		return res.RowsAffected, res.Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
