// Package kintone pushes defect and repair records to a kintone app over
// its REST API.
package kintone

import (
	"fmt"
	"time"

	"github.com/kent2980/aoi-data-manager/internal/httpclient"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
)

// Config holds configuration for the kintone client
type Config struct {
	Subdomain string        `json:"subdomain"`
	AppID     int           `json:"app_id"`
	APIToken  string        `json:"api_token"`
	BaseURL   string        `json:"base_url,omitempty"` // overrides https://{subdomain}.cybozu.com/k/v1
	Timeout   time.Duration `json:"timeout,omitempty"`

	// ImageField names the attachment field that receives Defect.ImagePath.
	// Empty disables image upload.
	ImageField string `json:"image_field,omitempty"`

	// UploadCacheTTL bounds how long an uploaded file key is reused.
	UploadCacheTTL time.Duration `json:"upload_cache_ttl,omitempty"`

	// RequestsPerSecond caps outbound calls; zero disables the limiter.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`

	HTTPClient *httpclient.Client         `json:"-"` // nil builds a client with Timeout
	Metrics    *metrics.HTTPClientMetrics `json:"-"`
	Logger     logger.Logger              `json:"-"`
}

// MaxRecordsPerRequest is kintone's limit for bulk record calls.
const MaxRecordsPerRequest = 100

// UpdateKeyField is the app field holding the record identity.
const UpdateKeyField = "unique_id"

const defaultUploadCacheTTL = 24 * time.Hour

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://%s.cybozu.com/k/v1", c.Subdomain)
}

// fieldValue is kintone's {"value": ...} wrapper
type fieldValue struct {
	Value any `json:"value"`
}

type updateKey struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type upsertRecord struct {
	UpdateKey updateKey             `json:"updateKey"`
	Revision  int                   `json:"revision"`
	Record    map[string]fieldValue `json:"record"`
}

type upsertRequest struct {
	App     int            `json:"app"`
	Records []upsertRecord `json:"records"`
	Upsert  bool           `json:"upsert"`
}

type upsertResponse struct {
	Records []struct {
		ID       string `json:"id"`
		Revision string `json:"revision"`
	} `json:"records"`
}

type deleteRequest struct {
	App int      `json:"app"`
	IDs []string `json:"ids"`
}

type fileResponse struct {
	FileKey string `json:"fileKey"`
}

type fileRef struct {
	FileKey string `json:"fileKey"`
}
