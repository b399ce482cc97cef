package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/feedgen/internal"
	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/dukerupert/feedgen/internal/service"
	"github.com/dukerupert/feedgen/internal/storage"
	"github.com/dukerupert/feedgen/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeeds struct {
	mu       sync.Mutex
	profiles []internal.Profile
	result   *service.RunResult
	err      error
	calls    []string
}

func (f *fakeFeeds) RunProfile(ctx context.Context, name string) (*service.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.result, f.err
}

func (f *fakeFeeds) RunAll(ctx context.Context) ([]*service.RunResult, error) {
	return nil, nil
}

func (f *fakeFeeds) Profiles() []internal.Profile { return f.profiles }

func (f *fakeFeeds) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestServer(t *testing.T, feeds *fakeFeeds) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	metrics := telemetry.NewFeedMetrics("test", nil)
	metrics.RecordExport("main", "xml", 3, time.Second, nil)
	s := New(feeds, Config{DocumentRoot: root, Registry: metrics.Registry()}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, root
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"unknown_code", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, &fakeFeeds{})
	rec := do(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t, &fakeFeeds{})
	rec := do(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_feed_exports_total{format="xml",profile="main",status="success"} 1`)
}

func TestServer_ServesFeedFiles(t *testing.T) {
	s, root := newTestServer(t, &fakeFeeds{})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "google"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "google", "feed.xml"), []byte("<rss/>"), 0644))

	rec := do(s, http.MethodGet, "/feeds/google/feed.xml")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<rss/>", rec.Body.String())

	rec = do(s, http.MethodGet, "/feeds/missing.xml")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ServesPublishedFeeds(t *testing.T) {
	published, err := storage.NewLocalStorage(t.TempDir(), "/published")
	require.NoError(t, err)
	_, err = published.Put(context.Background(), "market/offers.yml", strings.NewReader("<yml_catalog/>"), storage.ContentType("yml"))
	require.NoError(t, err)

	s := New(&fakeFeeds{}, Config{Published: published}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := do(s, http.MethodGet, "/published/market/offers.yml")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "<yml_catalog/>", rec.Body.String())

	rec = do(s, http.MethodGet, "/published/market/missing.yml")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ENOTFOUND)
}

func TestServer_MetricsCollectorRegistration(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	// a second server on the same registry finds its collectors already there
	reg := prometheus.NewRegistry()
	New(&fakeFeeds{}, Config{Registry: reg}, logger)
	New(&fakeFeeds{}, Config{Registry: reg}, logger)
	assert.NotContains(t, logs.String(), "metrics collector not registered")

	// a foreign metric under a runtime collector name is a real conflict
	conflicting := prometheus.NewRegistry()
	conflicting.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "go_goroutines", Help: "Not the runtime gauge."}))
	New(&fakeFeeds{}, Config{Registry: conflicting}, logger)
	assert.Contains(t, logs.String(), "metrics collector not registered")
}

func TestServer_ListProfiles(t *testing.T) {
	feeds := &fakeFeeds{profiles: []internal.Profile{{
		Name:      "main",
		CatalogID: 2,
		Schedule:  time.Hour,
		Feeds:     []internal.FeedTarget{{Path: "a.xml", Format: "xml"}, {Path: "a.yml", Format: "yml"}},
	}}}
	s, _ := newTestServer(t, feeds)

	rec := do(s, http.MethodGet, "/api/profiles")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"profiles":[{
		"name": "main",
		"catalog_id": 2,
		"schedule": "1h0m0s",
		"formats": ["xml", "yml"],
		"paths": ["a.xml", "a.yml"]
	}]}`, rec.Body.String())
}

func TestServer_RunExport(t *testing.T) {
	tests := []struct {
		name       string
		result     *service.RunResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{"success", &service.RunResult{RunID: "r1", Profile: "main"}, nil, http.StatusOK, ""},
		{"unknown profile", nil, domain.NotFound("feed.run_profile", "profile", "main"), http.StatusNotFound, domain.ENOTFOUND},
		{"already running", nil, service.ErrRunInProgress, http.StatusConflict, domain.ECONFLICT},
		{"store failure", nil, domain.Internal(errors.New("db"), "feed.enrich", "failed"), http.StatusInternalServerError, domain.EINTERNAL},
		{"partial failure", &service.RunResult{RunID: "r2"}, errors.New("csv failed"), http.StatusInternalServerError, domain.EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeFeeds{result: tt.result, err: tt.err})
			rec := do(s, http.MethodPost, "/api/exports/main")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.wantCode == "" {
				assert.Contains(t, string(body["run_id"]), "r1")
				return
			}
			var eb ErrorBody
			require.NoError(t, json.Unmarshal(body["error"], &eb))
			assert.Equal(t, tt.wantCode, eb.Code)
		})
	}
}

func TestServer_RunExportAsync(t *testing.T) {
	feeds := &fakeFeeds{
		profiles: []internal.Profile{{Name: "main"}},
		result:   &service.RunResult{RunID: "r1"},
	}
	s, _ := newTestServer(t, feeds)

	rec := do(s, http.MethodPost, "/api/exports/main?async=true")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool { return feeds.callCount() == 1 }, time.Second, 5*time.Millisecond)

	rec = do(s, http.MethodPost, "/api/exports/other?async=true")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
