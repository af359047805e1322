package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResponseWriterCapturesStatusAndSize(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // second call must be ignored
	n, err := rw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}

	if rw.statusCode != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rw.statusCode)
	}
	if rw.size != 5 {
		t.Errorf("size = %d, want 5", rw.size)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("recorder status = %d", rec.Code)
	}
}

func TestLoggingEmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/origins", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	line := buf.String()
	for _, want := range []string{`"method":"GET"`, `"path":"/api/origins"`, `"status":200`, `"latency_ms"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %s: %s", want, line)
		}
	}
	if !strings.Contains(line, `"level":"INFO"`) {
		t.Errorf("expected INFO level: %s", line)
	}
}

func TestLoggingLevelByStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if !strings.Contains(buf.String(), `"level":"`+tt.wantLevel+`"`) {
			t.Errorf("status %d: expected level %s in %s", tt.status, tt.wantLevel, buf.String())
		}
	}
}

func TestLoggingPicksUpHandlerContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	// The handler attaches an error code and the tenant domain after the
	// middleware captured the request context; UpdateResponseContext carries
	// them back through the writer.
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetErrorCode(r.Context(), "tenant_not_found")
		ctx = SetOriginDomain(ctx, "museum.example.com")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/scenes/origin", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	line := buf.String()
	if !strings.Contains(line, `"error_code":"tenant_not_found"`) {
		t.Errorf("log line missing error_code: %s", line)
	}
	if !strings.Contains(line, `"origin_domain":"museum.example.com"`) {
		t.Errorf("log line missing origin_domain: %s", line)
	}
}

func TestLoggingNoErrorCodeOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	// Error codes attached to a 2xx response must not be logged.
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "leftover"))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if strings.Contains(buf.String(), "error_code") {
		t.Errorf("error_code logged for 2xx response: %s", buf.String())
	}
}

func TestUpdateResponseContextThroughMetricsWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "not_found"))
		w.WriteHeader(http.StatusNotFound)
	})

	// Production order: metrics wraps the mux inside the logging middleware,
	// so handlers see the metrics writer. SetContext must travel through it.
	metrics := NewMetrics()
	handler := Logging(logger)(HTTPMetrics(metrics)(inner))

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !strings.Contains(buf.String(), `"error_code":"not_found"`) {
		t.Errorf("error_code lost crossing the metrics writer: %s", buf.String())
	}
}

func TestUpdateResponseContextPlainWriterNoop(t *testing.T) {
	rec := httptest.NewRecorder()
	// Must not panic on writers that do not carry a context.
	UpdateResponseContext(rec, SetErrorCode(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "x"))
}
