package kintone

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kent2980/aoi-data-manager/internal/datastore"
	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/httpclient"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
)

const testBase = "https://factory.cybozu.com/k/v1"

func newTestClient(t *testing.T, cfg Config) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	cfg.Subdomain = "factory"
	if cfg.AppID == 0 {
		cfg.AppID = 12
	}
	cfg.APIToken = "token-abc"
	cfg.HTTPClient = httpclient.New(&httpclient.Config{Transport: transport})
	cfg.Logger = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c, transport
}

func testDefect(number int) entities.Defect {
	return entities.NewDefect(entities.DefectParams{
		ModelCode:         "Y8470722R",
		LotNumber:         "1234567-10",
		CurrentBoardIndex: 1,
		DefectNumber:      number,
		Reference:         "R1",
		DefectName:        "ブリッジ",
		X:                 0.5,
		Y:                 0.25,
		InsertedAt:        time.Date(2024, 4, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*3600)),
	})
}

func TestNewClientRequiresConfiguration(t *testing.T) {
	_, err := NewClient(Config{Subdomain: "factory", AppID: 1})
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = NewClient(Config{Subdomain: "factory", APIToken: "x"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestPushDefectsSendsUpsertAndStoresRecordIDs(t *testing.T) {
	c, transport := newTestClient(t, Config{})

	var got upsertRequest
	transport.RegisterResponder(http.MethodPut, testBase+"/records.json",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "token-abc", req.Header.Get("X-Cybozu-API-Token"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"records": []map[string]string{
					{"id": "101", "revision": "1"},
					{"id": "102", "revision": "1"},
				},
			})
		})

	defects := []entities.Defect{testDefect(1), testDefect(2)}
	require.NoError(t, c.PushDefects(context.Background(), defects))

	assert.Equal(t, "101", defects[0].KintoneRecordID)
	assert.Equal(t, "102", defects[1].KintoneRecordID)

	require.Len(t, got.Records, 2)
	assert.Equal(t, 12, got.App)
	assert.True(t, got.Upsert)
	first := got.Records[0]
	assert.Equal(t, UpdateKeyField, first.UpdateKey.Field)
	assert.Equal(t, defects[0].ID, first.UpdateKey.Value)
	assert.Equal(t, -1, first.Revision)
	assert.Equal(t, "2024-04-01T00:00:00Z", first.Record["insert_date"].Value)
	assert.Equal(t, "1234567-10", first.Record["lot_number"].Value)
	assert.Equal(t, defects[0].ID, first.Record[UpdateKeyField].Value)
}

func TestPushDefectsChunksLargeBatches(t *testing.T) {
	c, transport := newTestClient(t, Config{})

	var sizes []int
	transport.RegisterResponder(http.MethodPut, testBase+"/records.json",
		func(req *http.Request) (*http.Response, error) {
			var body upsertRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			sizes = append(sizes, len(body.Records))
			out := upsertResponse{}
			for range body.Records {
				out.Records = append(out.Records, struct {
					ID       string `json:"id"`
					Revision string `json:"revision"`
				}{ID: "1", Revision: "1"})
			}
			return httpmock.NewJsonResponse(http.StatusOK, out)
		})

	defects := make([]entities.Defect, 0, 250)
	for i := range 250 {
		defects = append(defects, testDefect(i+1))
	}
	require.NoError(t, c.PushDefects(context.Background(), defects))
	assert.Equal(t, []int{100, 100, 50}, sizes)
}

func TestPushRepairsUsesStatusLabel(t *testing.T) {
	c, transport := newTestClient(t, Config{})

	var got upsertRequest
	transport.RegisterResponder(http.MethodPut, testBase+"/records.json",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"records": []map[string]string{{"id": "7", "revision": "3"}},
			})
		})

	repairs := []entities.Repair{{ID: "r-1", Repaired: true, PartsType: "chip"}}
	require.NoError(t, c.PushRepairs(context.Background(), repairs))

	assert.Equal(t, "7", repairs[0].KintoneRecordID)
	require.Len(t, got.Records, 1)
	assert.Equal(t, entities.RepairedLabel, got.Records[0].Record["is_repaird"].Value)
	assert.Equal(t, "chip", got.Records[0].Record["parts_type"].Value)
}

func TestPushReturnsAPIErrorOnRejection(t *testing.T) {
	c, transport := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodPut, testBase+"/records.json",
		httpmock.NewStringResponder(http.StatusBadRequest, `{"code":"CB_VA01","message":"bad"}`))

	defects := []entities.Defect{testDefect(1)}
	err := c.PushDefects(context.Background(), defects)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "CB_VA01")
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
	assert.Empty(t, defects[0].KintoneRecordID)
}

func TestDeleteRecord(t *testing.T) {
	c, transport := newTestClient(t, Config{})

	var got deleteRequest
	transport.RegisterResponder(http.MethodDelete, testBase+"/records.json",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	require.NoError(t, c.DeleteRecord(context.Background(), "55"))
	assert.Equal(t, deleteRequest{App: 12, IDs: []string{"55"}}, got)

	err := c.DeleteRecord(context.Background(), "")
	assert.True(t, errors.IsValidation(err))
}

func TestUploadFileCachesFileKey(t *testing.T) {
	c, transport := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodPost, testBase+"/file.json",
		func(req *http.Request) (*http.Response, error) {
			f, header, err := req.FormFile("file")
			if err != nil {
				return nil, err
			}
			defer f.Close()
			assert.Equal(t, "board.png", header.Filename)
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"fileKey": "fk-1"})
		})

	path := filepath.Join(t.TempDir(), "board.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o600))

	for range 3 {
		key, err := c.UploadFile(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "fk-1", key)
	}
	assert.Equal(t, 1, transport.GetTotalCallCount())

	_, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestPushDefectsAttachesImage(t *testing.T) {
	c, transport := newTestClient(t, Config{ImageField: "board_image"})
	transport.RegisterResponder(http.MethodPost, testBase+"/file.json",
		httpmock.NewStringResponder(http.StatusOK, `{"fileKey":"fk-9"}`))

	var got upsertRequest
	transport.RegisterResponder(http.MethodPut, testBase+"/records.json",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"records":[{"id":"1","revision":"1"}]}`), nil
		})

	path := filepath.Join(t.TempDir(), "board.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))

	d := testDefect(1)
	d.ImagePath = path
	require.NoError(t, c.PushDefects(context.Background(), []entities.Defect{d}))

	require.Len(t, got.Records, 1)
	files, ok := got.Records[0].Record["board_image"].Value.([]any)
	require.True(t, ok)
	require.Len(t, files, 1)
	assert.Equal(t, map[string]any{"fileKey": "fk-9"}, files[0])
}

func TestIsConnected(t *testing.T) {
	c, transport := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodGet, testBase+"/app.json?id=12",
		httpmock.NewStringResponder(http.StatusOK, `{"appId":"12"}`))
	assert.True(t, c.IsConnected(context.Background()))

	transport.Reset()
	transport.RegisterResponder(http.MethodGet, testBase+"/app.json?id=12",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{}`))
	assert.False(t, c.IsConnected(context.Background()))

	transport.Reset()
	assert.False(t, c.IsConnected(context.Background()))
}

func TestSyncStorePersistsRecordIDs(t *testing.T) {
	store, err := datastore.Open(datastore.Config{
		Dir:    t.TempDir(),
		Logger: logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.CreateSchema())

	d := testDefect(1)
	other := testDefect(2)
	other.LotNumber = "9999999-01"
	other.ID = ""
	other.Normalize()
	require.NoError(t, store.Defects().InsertBatch([]entities.Defect{d, other}))
	require.NoError(t, store.Repairs().Insert(&entities.Repair{ID: d.ID, Repaired: true}))

	c, transport := newTestClient(t, Config{})
	transport.RegisterResponder(http.MethodPut, testBase+"/records.json",
		httpmock.NewStringResponder(http.StatusOK, `{"records":[{"id":"900","revision":"1"}]}`))

	res, err := SyncStore(context.Background(), c, store, "1234567-10")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Defects: 1, Repairs: 1}, res)
	assert.Equal(t, 2, transport.GetTotalCallCount())

	stored, err := store.Defects().Get(d.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "900", stored.KintoneRecordID)

	untouched, err := store.Defects().Get(other.ID)
	require.NoError(t, err)
	assert.Empty(t, untouched.KintoneRecordID)

	repair, err := store.Repairs().Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "900", repair.KintoneRecordID)
}

func TestClientRecordsRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewHTTPClientMetrics(reg)
	require.NoError(t, err)

	c, transport := newTestClient(t, Config{Metrics: m})
	transport.RegisterResponder(http.MethodGet, testBase+"/app.json?id=12",
		httpmock.NewStringResponder(http.StatusOK, `{"appId":"12"}`))
	transport.RegisterResponder(http.MethodDelete, testBase+"/records.json",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{}`))

	assert.True(t, c.IsConnected(context.Background()))
	require.Error(t, c.DeleteRecord(context.Background(), "5"))

	expected := `
# HELP aoi_http_client_requests_total Total number of outbound HTTP requests
# TYPE aoi_http_client_requests_total counter
aoi_http_client_requests_total{method="DELETE",service="kintone",status_code="401"} 1
aoi_http_client_requests_total{method="GET",service="kintone",status_code="200"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "aoi_http_client_requests_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(m, "aoi_http_client_request_duration_seconds"))
}

func TestClientRateLimitRejectsWhenDeadlineTooShort(t *testing.T) {
	c, transport := newTestClient(t, Config{RequestsPerSecond: 0.01})
	transport.RegisterResponder(http.MethodDelete, testBase+"/records.json",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	require.NoError(t, c.DeleteRecord(context.Background(), "1"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.DeleteRecord(ctx, "2")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
	assert.Equal(t, 1, transport.GetTotalCallCount())
}
