package datastore

import (
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
)

// Metrics is the collector a Store reports to. A nil *Metrics disables reporting.
type Metrics = metrics.DatastoreMetrics
