package entities

// Record is the set of row types a datastore table can hold.
type Record interface {
	Defect | Repair
	TableName() string
	RecordID() string
}

// Models lists every persisted model, in migration order.
func Models() []any {
	return []any{&Defect{}, &Repair{}}
}
