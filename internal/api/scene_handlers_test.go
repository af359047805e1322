package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/icarotours/panoapi/internal/origin"
	"github.com/icarotours/panoapi/internal/scene"
	"github.com/icarotours/panoapi/internal/stats"
	"github.com/icarotours/panoapi/internal/tour"
)

func newTestServer(t *testing.T) (*http.ServeMux, *origin.InMemoryRepository, *scene.InMemoryRepository) {
	t.Helper()

	origins := origin.NewInMemoryRepository()
	scenes := scene.NewInMemoryRepository()
	origins.SetSceneCounter(scenes.CountByOrigin)
	service := tour.NewService(origins, scenes, nil, stats.NewUpsertStats(), nil)

	mux := NewRouter(RouterConfig{
		Origins: NewOriginHandlers(origins, service, nil),
		Scenes:  NewSceneHandlers(service, nil, ""),
		Health:  NewHealthHandlers(HealthHandlersConfig{}),
	})
	return mux, origins, scenes
}

func seedOrigin(t *testing.T, mux *http.ServeMux, name, domain string) {
	t.Helper()
	body := `{"name": "` + name + `", "domain": "` + domain + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/origins", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seeding origin %s: status %d body %s", domain, rec.Code, rec.Body.String())
	}
}

func seedScene(t *testing.T, mux *http.ServeMux, domain, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/scenes", strings.NewReader(body))
	req.Header.Set("Origin", "https://"+domain)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("seeding scene: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding seed response: %v", err)
	}
	return resp
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return resp.Error.Code
}

func TestResolveScenesByOriginHeader(t *testing.T) {
	mux, _, _ := newTestServer(t)

	seedOrigin(t, mux, "Museum", "museum.example.com")
	seedScene(t, mux, "museum.example.com",
		`{"title": "Lobby", "image_url": "https://cdn.example.com/lobby.jpg"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/scenes/origin", nil)
	req.Header.Set("Origin", "https://museum.example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var set struct {
		Domain      string                     `json:"domain"`
		TotalScenes int                        `json:"total_scenes"`
		Scenes      map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &set); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if set.Domain != "museum.example.com" {
		t.Errorf("domain = %q", set.Domain)
	}
	if set.TotalScenes != 1 || len(set.Scenes) != 1 {
		t.Errorf("total=%d scenes=%d", set.TotalScenes, len(set.Scenes))
	}
}

func TestResolveScenesByQueryParameter(t *testing.T) {
	mux, _, _ := newTestServer(t)

	seedOrigin(t, mux, "Museum", "museum.example.com")
	seedScene(t, mux, "museum.example.com",
		`{"title": "Lobby", "image_url": "https://cdn.example.com/lobby.jpg"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/scenes/origin?origin=museum.example.com", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestResolveScenesUnknownDomain(t *testing.T) {
	mux, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/scenes/origin", nil)
	req.Header.Set("Origin", "https://ghost.example")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != ErrCodeTenantNotFound {
		t.Errorf("error code %q, want %q", code, ErrCodeTenantNotFound)
	}
}

func TestResolveScenesOriginWithoutScenes(t *testing.T) {
	mux, _, _ := newTestServer(t)

	seedOrigin(t, mux, "Empty", "empty.example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/scenes/origin", nil)
	req.Header.Set("Origin", "https://empty.example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != ErrCodeNotFound {
		t.Errorf("error code %q, want %q", code, ErrCodeNotFound)
	}
}

func TestUpsertSceneCreateThenUpdate(t *testing.T) {
	mux, _, _ := newTestServer(t)

	seedOrigin(t, mux, "Museum", "museum.example.com")

	created := seedScene(t, mux, "museum.example.com",
		`{"title": "Lobby", "image_url": "https://cdn.example.com/lobby.jpg"}`)
	if created["created"] != true {
		t.Error("expected created=true on first write")
	}

	data := created["data"].(map[string]any)
	id := int64(data["id"].(float64))

	req := httptest.NewRequest(http.MethodPost, "/api/scenes",
		strings.NewReader(`{"id": `+jsonInt(id)+`, "title": "Grand Lobby"}`))
	req.Header.Set("Origin", "https://museum.example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp["created"] != false {
		t.Error("expected created=false on update")
	}
	updated := resp["data"].(map[string]any)
	if updated["title"] != "Grand Lobby" {
		t.Errorf("title = %v", updated["title"])
	}
	if updated["image_url"] != "https://cdn.example.com/lobby.jpg" {
		t.Error("omitted image_url not preserved")
	}
}

func TestUpsertSceneValidation(t *testing.T) {
	mux, _, _ := newTestServer(t)

	seedOrigin(t, mux, "Museum", "museum.example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/scenes", strings.NewReader(`{}`))
	req.Header.Set("Origin", "https://museum.example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != ErrCodeValidation {
		t.Errorf("error code %q, want %q", code, ErrCodeValidation)
	}
}

func TestUpsertSceneRejectsBadImageURL(t *testing.T) {
	mux, _, _ := newTestServer(t)

	seedOrigin(t, mux, "Museum", "museum.example.com")

	body := `{"title": "Lobby", "image_url": "javascript:alert(1)"}`
	req := httptest.NewRequest(http.MethodPost, "/api/scenes", strings.NewReader(body))
	req.Header.Set("Origin", "https://museum.example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Error.Code != ErrCodeValidation {
		t.Errorf("error code %q, want %q", resp.Error.Code, ErrCodeValidation)
	}
	if len(resp.Error.Fields) != 1 || !strings.HasPrefix(resp.Error.Fields[0], "image_url: ") {
		t.Errorf("fields = %v, want one image_url message", resp.Error.Fields)
	}
}

func TestUpsertSceneBadHotspot(t *testing.T) {
	mux, _, _ := newTestServer(t)

	seedOrigin(t, mux, "Museum", "museum.example.com")

	body := `{"title": "Lobby", "image_url": "https://x.example/p.jpg",
		"hotspots": {"x": {"kind": "portal", "pitch": 0, "yaw": 0}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/scenes", strings.NewReader(body))
	req.Header.Set("Origin", "https://museum.example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(resp.Error.Fields) == 0 {
		t.Error("expected itemized validation fields")
	}
}

func TestUpsertSceneUnknownOrigin(t *testing.T) {
	mux, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scenes",
		strings.NewReader(`{"title": "x", "image_url": "https://x.example/p.jpg"}`))
	req.Header.Set("Origin", "https://ghost.example")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != ErrCodeTenantNotFound {
		t.Errorf("error code %q", code)
	}
}

func TestGetSceneByID(t *testing.T) {
	mux, _, _ := newTestServer(t)

	seedOrigin(t, mux, "Museum", "museum.example.com")
	created := seedScene(t, mux, "museum.example.com",
		`{"title": "Lobby", "image_url": "https://cdn.example.com/lobby.jpg"}`)
	data := created["data"].(map[string]any)
	id := jsonInt(int64(data["id"].(float64)))

	req := httptest.NewRequest(http.MethodGet, "/api/scenes/"+id, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if _, ok := doc[id]; !ok {
		t.Errorf("fragment missing key %s: %s", id, rec.Body.String())
	}
}

func TestGetSceneNotFound(t *testing.T) {
	mux, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/scenes/999", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != ErrCodeSceneNotFound {
		t.Errorf("error code %q", code)
	}
}

func TestGetSceneBadID(t *testing.T) {
	mux, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/scenes/lobby", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestDeleteSceneIdempotent(t *testing.T) {
	mux, _, _ := newTestServer(t)

	seedOrigin(t, mux, "Museum", "museum.example.com")
	created := seedScene(t, mux, "museum.example.com",
		`{"title": "Lobby", "image_url": "https://cdn.example.com/lobby.jpg"}`)
	data := created["data"].(map[string]any)
	id := jsonInt(int64(data["id"].(float64)))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/api/scenes/"+id, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete %d: status %d", i+1, rec.Code)
		}
	}

	// Deleted scene disappears from reads.
	req := httptest.NewRequest(http.MethodGet, "/api/scenes/"+id, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d after delete, want 404", rec.Code)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
