package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/api/origins", "/api/origins"},
		{"/api/scenes", "/api/scenes"},
		{"/api/scenes/origin", "/api/scenes/origin"},
		{"/api/scenes/123", "/api/scenes/{id}"},
		{"/api/origins/42", "/api/origins/{id}"},
		{"/api/origins/domain/museum.example.com", "/api/origins/domain/{domain}"},
		{"/api/upload", "/api/upload"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/unknown/route", "/unknown/route"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestHTTPMetricsRecordsRequests(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/scenes", strings.NewReader(`{}`))
	req.Header.Set("Content-Length", "2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("POST", "/api/scenes", "201"))
	if got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}

	// Histograms are not readable through ToFloat64; inspect the gathered
	// families for the duration observation instead.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var duration *dto.MetricFamily
	for _, fam := range families {
		if fam.GetName() == MetricHTTPRequestDuration {
			duration = fam
		}
	}
	if duration == nil {
		t.Fatal("duration histogram not gathered")
	}
	if duration.GetType() != dto.MetricType_HISTOGRAM {
		t.Errorf("type = %v, want histogram", duration.GetType())
	}
	if count := duration.GetMetric()[0].GetHistogram().GetSampleCount(); count != 1 {
		t.Errorf("histogram sample count = %d, want 1", count)
	}
}

func TestHTTPMetricsNormalizesDynamicSegments(t *testing.T) {
	metrics := NewMetrics()

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/api/scenes/1", "/api/scenes/2", "/api/scenes/3"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/api/scenes/{id}", "200"))
	if got != 3 {
		t.Errorf("requests_total = %v, want 3 under one normalized label", got)
	}
}

func TestHTTPMetricsSkipsProbes(t *testing.T) {
	metrics := NewMetrics()

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", path, "200"))
		if got != 0 {
			t.Errorf("%s recorded %v requests, want 0", path, got)
		}
	}
}

func TestSceneUpsertCounter(t *testing.T) {
	metrics := NewMetrics()

	metrics.IncSceneUpsert("created")
	metrics.IncSceneUpsert("created")
	metrics.IncSceneUpsert("updated")

	if got := testutil.ToFloat64(metrics.sceneUpserts.WithLabelValues("created")); got != 2 {
		t.Errorf("created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.sceneUpserts.WithLabelValues("updated")); got != 1 {
		t.Errorf("updated = %v, want 1", got)
	}
}

func TestOriginCacheLookupCounter(t *testing.T) {
	metrics := NewMetrics()

	metrics.IncOriginCacheLookup("hit")
	metrics.IncOriginCacheLookup("miss")
	metrics.IncOriginCacheLookup("hit")

	if got := testutil.ToFloat64(metrics.originCacheLookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("hit = %v, want 2", got)
	}
}
