package serve

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kent2980/aoi-data-manager/internal/buildinfo"
	"github.com/kent2980/aoi-data-manager/internal/conf"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func testRuntime(t *testing.T) *runtime.Context {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("main:\n  datadir: "+dir+"\nserver:\n  shutdowntimeout: 2s\n"), 0o600))

	settings, err := conf.Load(path)
	require.NoError(t, err)

	rt := runtime.New(buildinfo.New("test", ""))
	rt.Settings = settings
	rt.Registry = prometheus.NewRegistry()
	return rt
}

func TestServeStartsAndShutsDownOnCancel(t *testing.T) {
	rt := testRuntime(t)
	addr := freeAddress(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := Command(rt)
	cmd.SetArgs([]string{"--listen", addr})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/api/v1/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := client.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}

	_, err = client.Get("http://" + addr + "/api/v1/health")
	assert.Error(t, err)
}

func TestServeReportsListenError(t *testing.T) {
	rt := testRuntime(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cmd := Command(rt)
	cmd.SetArgs([]string{"--listen", l.Addr().String()})
	err = cmd.ExecuteContext(context.Background())
	require.Error(t, err)
}
