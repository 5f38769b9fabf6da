package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *DatastoreMetrics {
	t.Helper()
	m, err := NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordOperation(OpInsert, "defect_info", StatusSuccess, 0.002)
	m.RecordOperation(OpInsert, "defect_info", StatusSuccess, 0.004)
	m.RecordOperation(OpInsert, "defect_info", StatusError, 0.001)

	assert.InDelta(t, 2, testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpInsert, "defect_info", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpInsert, "defect_info", StatusError)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestRecordRowsIgnoresZero(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordRows(OpDelete, "repair_info", 0)
	m.RecordRows(OpDelete, "repair_info", 3)

	assert.InDelta(t, 3, testutil.ToFloat64(m.rowsTotal.WithLabelValues(OpDelete, "repair_info")), 0)
}

func TestMergeRowsAndGauge(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordMergeRows("defect_info", ActionUpserted, 10)
	m.RecordMergeRows("defect_info", ActionDeleted, 2)
	m.StoreOpened()
	m.StoreOpened()
	m.StoreClosed()

	assert.InDelta(t, 10, testutil.ToFloat64(m.mergeRowsTotal.WithLabelValues("defect_info", ActionUpserted)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.mergeRowsTotal.WithLabelValues("defect_info", ActionDeleted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.storesOpen), 0)
}

func TestDoubleRegistrationFails(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()

	_, err := NewDatastoreMetrics(reg)
	require.NoError(t, err)
	_, err = NewDatastoreMetrics(reg)
	require.Error(t, err)
}

func TestHTTPClientRecordRequest(t *testing.T) {
	t.Parallel()
	m, err := NewHTTPClientMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRequest("kintone", "GET", 200, 0.01)
	m.RecordRequest("kintone", "GET", 200, 0.02)
	m.RecordRequest("kintone", "POST", 0, 0.5)

	assert.InDelta(t, 2, testutil.ToFloat64(m.requestsTotal.WithLabelValues("kintone", "GET", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("kintone", "POST", StatusError)), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}
