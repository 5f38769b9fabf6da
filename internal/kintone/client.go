package kintone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/httpclient"
	"github.com/kent2980/aoi-data-manager/internal/logger"
)

// maxErrorBody caps how much of a failed response is kept in APIError.
const maxErrorBody = 4096

// Client talks to one kintone app.
type Client struct {
	config      Config
	httpClient  *httpclient.Client
	uploadCache *cache.Cache
	limiter     *rate.Limiter
	log         logger.Logger
}

// metricsService labels kintone calls in the HTTP client metrics.
const metricsService = "kintone"

// NewClient validates cfg and creates a client.
func NewClient(cfg Config) (*Client, error) {
	if (cfg.Subdomain == "" && cfg.BaseURL == "") || cfg.AppID <= 0 || cfg.APIToken == "" {
		return nil, errors.New(ErrNotConfigured).
			Component("kintone").
			Category(errors.CategoryConfiguration).
			Context("subdomain", cfg.Subdomain).
			Context("app_id", cfg.AppID).
			Build()
	}

	if cfg.UploadCacheTTL == 0 {
		cfg.UploadCacheTTL = defaultUploadCacheTTL
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpclient.New(&httpclient.Config{DefaultTimeout: cfg.Timeout})
	}

	if m := cfg.Metrics; m != nil {
		hc.SetAfterResponseHook(func(req *http.Request, resp *http.Response, d time.Duration, _ error) {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			m.RecordRequest(metricsService, req.Method, status, d.Seconds())
		})
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("kintone")
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		config:      cfg,
		httpClient:  hc,
		uploadCache: cache.New(cfg.UploadCacheTTL, 2*cfg.UploadCacheTTL),
		limiter:     limiter,
		log:         log,
	}, nil
}

// wait blocks until the limiter admits one request.
func (c *Client) wait(ctx context.Context, op string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.New(err).
			Component("kintone").
			Category(errors.CategoryNetwork).
			Context("operation", op).
			Context("stage", "rate_limiter_wait").
			Build()
	}
	return nil
}

func (c *Client) url(path string) string {
	return c.config.baseURL() + path
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("X-Cybozu-API-Token", c.config.APIToken)
	return h
}

// PushDefects upserts defects keyed on unique_id and writes the returned
// kintone record IDs back onto the slice elements.
func (c *Client) PushDefects(ctx context.Context, defects []entities.Defect) error {
	records := make([]upsertRecord, 0, len(defects))
	for i := range defects {
		d := &defects[i]
		d.Normalize()
		rec := defectRecord(d)
		if c.config.ImageField != "" && d.ImagePath != "" {
			key, err := c.UploadFile(ctx, d.ImagePath)
			if err != nil {
				return err
			}
			rec[c.config.ImageField] = fieldValue{[]fileRef{{FileKey: key}}}
		}
		records = append(records, upsertEntry(d.ID, rec))
	}

	return c.upsert(ctx, records, func(i int, id string) {
		defects[i].KintoneRecordID = id
	})
}

// PushRepairs upserts repair rows and writes the returned record IDs back.
func (c *Client) PushRepairs(ctx context.Context, repairs []entities.Repair) error {
	records := make([]upsertRecord, 0, len(repairs))
	for i := range repairs {
		records = append(records, upsertEntry(repairs[i].ID, repairRecord(&repairs[i])))
	}

	return c.upsert(ctx, records, func(i int, id string) {
		repairs[i].KintoneRecordID = id
	})
}

// upsert sends records in chunks of MaxRecordsPerRequest; assign receives
// the index into records and the kintone ID returned for it.
func (c *Client) upsert(ctx context.Context, records []upsertRecord, assign func(int, string)) error {
	for start := 0; start < len(records); start += MaxRecordsPerRequest {
		end := min(start+MaxRecordsPerRequest, len(records))

		body := upsertRequest{App: c.config.AppID, Records: records[start:end], Upsert: true}
		var out upsertResponse
		if err := c.doJSON(ctx, "push records", http.MethodPut, "/records.json", body, &out); err != nil {
			return err
		}

		for j, r := range out.Records {
			if start+j >= end {
				break
			}
			assign(start+j, r.ID)
		}

		c.log.Debug("records pushed",
			logger.Int("count", end-start),
			logger.Int("app", c.config.AppID))
	}
	return nil
}

// DeleteRecord removes one kintone record by its record ID.
func (c *Client) DeleteRecord(ctx context.Context, recordID string) error {
	if recordID == "" {
		return errors.ValidationError("kintone record id is empty")
	}
	body := deleteRequest{App: c.config.AppID, IDs: []string{recordID}}
	return c.doJSON(ctx, "delete record", http.MethodDelete, "/records.json", body, nil)
}

// UploadFile uploads a file and returns its fileKey. Keys are reused for
// the same path and modification time until the cache entry expires.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.FileError(err, path)
	}

	cacheKey := fmt.Sprintf("%s|%d", path, info.ModTime().UnixNano())
	if key, found := c.uploadCache.Get(cacheKey); found {
		return key.(string), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", errors.FileError(err, path)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", errors.FileError(err, path)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/file.json"), &buf)
	if err != nil {
		return "", err
	}
	req.Header = c.header()
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if err := c.wait(ctx, "upload file"); err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return "", c.networkError("upload file", err)
	}
	defer resp.Body.Close()

	var out fileResponse
	if err := c.decode(resp, "upload file", &out); err != nil {
		return "", err
	}

	c.uploadCache.Set(cacheKey, out.FileKey, cache.DefaultExpiration)
	c.log.Debug("file uploaded",
		logger.String("path", path),
		logger.String("file_key", out.FileKey))
	return out.FileKey, nil
}

// IsConnected reports whether the app endpoint answers with 200.
func (c *Client) IsConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.wait(ctx, "connection check"); err != nil {
		c.log.Warn("kintone unreachable", logger.Error(err))
		return false
	}
	path := fmt.Sprintf("/app.json?id=%d", c.config.AppID)
	resp, err := c.httpClient.DoJSON(ctx, http.MethodGet, c.url(path), c.header(), nil)
	if err != nil {
		c.log.Warn("kintone unreachable", logger.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.Close()
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	resp, err := c.httpClient.DoJSON(ctx, method, c.url(path), c.header(), body)
	if err != nil {
		return c.networkError(op, err)
	}
	defer resp.Body.Close()
	return c.decode(resp, op, out)
}

func (c *Client) decode(resp *http.Response, op string, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data), Operation: op}
		return errors.New(apiErr).
			Component("kintone").
			Category(errors.CategoryHTTP).
			Context("operation", op).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Newf("kintone %s: failed to parse response: %w", op, err).
			Component("kintone").
			Category(errors.CategoryHTTP).
			Build()
	}
	return nil
}

func (c *Client) networkError(op string, err error) error {
	return errors.Newf("kintone %s: %w", op, err).
		Component("kintone").
		Category(errors.CategoryNetwork).
		Context("operation", op).
		Build()
}
