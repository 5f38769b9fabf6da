// Package metrics provides Prometheus collectors for the datastore, the merge engine and outbound HTTP calls.
package metrics

// Operation label values.
const (
	OpInsert      = "insert"
	OpInsertBatch = "insert_batch"
	OpUpsert      = "upsert"
	OpUpsertBatch = "upsert_batch"
	OpGet         = "get"
	OpAll         = "all"
	OpByLot       = "by_lot"
	OpDelete      = "delete"
	OpDeleteBatch = "delete_batch"
	OpCount       = "count"
	OpSchema      = "schema"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Merge row actions.
const (
	ActionUpserted = "upserted"
	ActionDeleted  = "deleted"
)

// Histogram layout: 1ms doubling to ~16s.
const (
	BucketStart1ms = 0.001
	BucketFactor2  = 2
	BucketCount15  = 15
)
