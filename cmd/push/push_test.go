package push

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kent2980/aoi-data-manager/internal/buildinfo"
	"github.com/kent2980/aoi-data-manager/internal/conf"
	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

const appURL = "https://factory.cybozu.com/k/v1/app.json?id=12"

func testRuntime(t *testing.T) (*runtime.Context, *httpmock.MockTransport) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
main:
  datadir: `+dir+`
kintone:
  enabled: true
  subdomain: factory
  appid: 12
  apitoken: token-abc
  ratelimit: 0
`), 0o600))

	settings, err := conf.Load(path)
	require.NoError(t, err)

	transport := httpmock.NewMockTransport()
	rt := runtime.New(buildinfo.New("test", ""))
	rt.Settings = settings
	rt.Transport = transport
	return rt, transport
}

func execute(rt *runtime.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := Command(rt)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPushCheckReportsConnection(t *testing.T) {
	rt, transport := testRuntime(t)
	transport.RegisterResponder(http.MethodGet, appURL,
		httpmock.NewStringResponder(http.StatusOK, `{"appId":"12"}`))

	out, err := execute(rt, "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "kintone connection ok")
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestPushCheckFailsWhenUnreachable(t *testing.T) {
	rt, transport := testRuntime(t)
	transport.RegisterResponder(http.MethodGet, appURL,
		httpmock.NewStringResponder(http.StatusUnauthorized, `{}`))

	_, err := execute(rt, "--check")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}

func TestPushUploadsStoredDefects(t *testing.T) {
	rt, transport := testRuntime(t)

	store, err := rt.OpenStore()
	require.NoError(t, err)
	d := entities.NewDefect(entities.DefectParams{LotNumber: "LOT-A", CurrentBoardIndex: 1, DefectNumber: 1})
	require.NoError(t, store.Defects().Insert(&d))
	require.NoError(t, store.Close())

	transport.RegisterResponder(http.MethodPut, "https://factory.cybozu.com/k/v1/records.json",
		httpmock.NewStringResponder(http.StatusOK, `{"records":[{"id":"900","revision":"1"}]}`))

	out, err := execute(rt, "--lot", "LOT-A")
	require.NoError(t, err)
	assert.Contains(t, out, "pushed 1 defects, 0 repairs")

	store, err = rt.OpenStore()
	require.NoError(t, err)
	defer store.Close()
	stored, err := store.Defects().Get(d.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "900", stored.KintoneRecordID)
}

func TestPushRequiresEnabledKintone(t *testing.T) {
	rt, transport := testRuntime(t)
	rt.Settings.Kintone.Enabled = false

	_, err := execute(rt, "--check")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Zero(t, transport.GetTotalCallCount())
}
