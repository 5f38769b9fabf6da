// Package entities contains the GORM models persisted by the datastore.
//
// Two tables exist per store:
//
//   - defect_info: one row per defect observed on one board (Defect)
//   - repair_info: repair disposition sharing the defect's identity (Repair)
//
// The tables are joined only by identity value. No foreign key exists and
// deleting one row never removes its counterpart.
package entities
