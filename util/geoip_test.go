package util

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitGeoIP_EmptyPath(t *testing.T) {
	t.Setenv("GEOIP_DB_PATH", "")
	assert.NoError(t, InitGeoIP(""))
}

func TestInitGeoIP_NonExistentFile(t *testing.T) {
	assert.Error(t, InitGeoIP("/nonexistent/path/to/geoip.mmdb"))
	assert.Error(t, ValidateGeoIP("/nonexistent/path/to/geoip.mmdb"))
}

func TestGetIPLocation_LocalAndInvalid(t *testing.T) {
	for _, ip := range []string{"", "not-an-ip", "127.0.0.1", "::1", "10.255.255.255", "192.168.0.1", "172.16.4.4", "::", "::ffff"} {
		assert.Equal(t, IPLocation{}, GetIPLocation(ip), ip)
	}
}

func TestGetIPLocation_NoDB(t *testing.T) {
	geoipDB = nil
	geoipCache = nil
	assert.Equal(t, IPLocation{}, GetIPLocation("8.8.8.8"))

	_, _, size := GetGeoIPCacheMetrics()
	assert.Equal(t, 0, size)
}

func TestCloseGeoIP_NilSafe(t *testing.T) {
	geoipDB = nil
	CloseGeoIP()
	assert.Nil(t, geoipDB)
}

func TestDownloadGeoIP_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := DownloadGeoIP(context.Background(), server.URL, filepath.Join(t.TempDir(), "geoip.mmdb"))
	assert.Error(t, err)
}

func TestDownloadGeoIP_Success(t *testing.T) {
	payload := []byte("mock geoip database content")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "geoip.mmdb")
	got, err := DownloadGeoIP(context.Background(), server.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, got)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1, "temporary file should be renamed, not left behind")
}

func TestDownloadGeoIP_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("compressed db"))
	_ = gz.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "geoip.mmdb")
	_, err := DownloadGeoIP(context.Background(), server.URL+"/db.mmdb.gz", dest)
	require.NoError(t, err)

	data, _ := os.ReadFile(dest)
	assert.Equal(t, "compressed db", string(data))
}

func TestDownloadGeoIP_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := DownloadGeoIP(ctx, server.URL, filepath.Join(t.TempDir(), "geoip.mmdb"))
	assert.Error(t, err)
}
