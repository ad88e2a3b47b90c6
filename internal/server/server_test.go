package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dev-tams/cachesweep/internal/storage/memory"
)

func newTestServer(t *testing.T, media MediaStore, smoke bool) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "cachesweep_test_total", Help: "test"}))

	return New(Options{
		SmokeTests: smoke,
		Media:      media,
		Gatherer:   reg,
		Logger:     zaptest.NewLogger(t),
		NewID:      func() string { return "0123abcd" },
	})
}

func decodeBody(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, memory.New("media"), true)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/smoke/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, resp.Body))
}

func TestSmokeRoutesDisabled(t *testing.T) {
	srv := newTestServer(t, memory.New("media"), false)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/smoke/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestDebugTest(t *testing.T) {
	srv := newTestServer(t, memory.New("media"), true)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/smoke/debug-test", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, "smoke/debug/0123abcd.txt", body["path"])
	assert.Equal(t, false, body["existsBefore"])
}

func TestMediaUploadRoundTrip(t *testing.T) {
	media := memory.New("media")
	srv := newTestServer(t, media, true)

	resp, err := srv.App().Test(httptest.NewRequest("POST", "/smoke/media-upload", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, "smoke-upload", body["content"])
	assert.True(t, media.Has("smoke/0123abcd.txt"))
}

type brokenMedia struct{}

func (brokenMedia) Put(context.Context, string, io.Reader, int64) error {
	return errors.New("write refused")
}

func (brokenMedia) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("read refused")
}

func (brokenMedia) Exists(context.Context, string) (bool, error) {
	return false, errors.New("head refused")
}

func TestSmokeFailuresReturn500(t *testing.T) {
	srv := newTestServer(t, brokenMedia{}, true)

	tests := []struct {
		method, path, want string
	}{
		{"POST", "/smoke/media-upload", "Smoke test media upload failed."},
		{"GET", "/smoke/debug-test", "Smoke debug test failed."},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := srv.App().Test(httptest.NewRequest(tt.method, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, 500, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(raw))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, false)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "cachesweep_test_total"))
}

func TestSmokeTestsEnabled(t *testing.T) {
	t.Setenv(SmokeTestsEnv, "")
	assert.False(t, SmokeTestsEnabled(false))
	assert.True(t, SmokeTestsEnabled(true))

	t.Setenv(SmokeTestsEnv, "1")
	assert.True(t, SmokeTestsEnabled(false))
}
