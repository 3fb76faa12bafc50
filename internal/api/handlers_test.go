package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cristim67/audio-analysis-platform/internal/data"
	"github.com/cristim67/audio-analysis-platform/internal/hub"
	"github.com/cristim67/audio-analysis-platform/internal/storage"
)

func newTestHandler(t *testing.T, staticDir string) (*Handler, *storage.Buffer) {
	t.Helper()
	store, err := storage.OpenStore(context.Background(), storage.StoreConfig{
		Path:     filepath.Join(t.TempDir(), "relay_test.db"),
		PoolSize: 2,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	buffer := storage.NewBuffer(store, 100, 1000, zerolog.Nop())
	relay := hub.NewRelay(hub.NewHub(zerolog.Nop()), buffer, nil, nil, nil, hub.Options{
		HeartbeatInterval: time.Hour,
		PongWait:          2 * time.Hour,
		WriteWait:         time.Second,
	}, zerolog.Nop())
	return NewHandler(relay, buffer, store, staticDir, zerolog.Nop()), buffer
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func seedEvents(buffer *storage.Buffer, n int) {
	for i := 0; i < n; i++ {
		buffer.Add(data.SensorEvent{
			Timestamp: "2026-03-01T12:00:00Z",
			Client:    "test",
			Source:    "arduino",
			Fields:    map[string]any{"seq": i},
		})
	}
}

func TestHealth(t *testing.T) {
	h, buffer := newTestHandler(t, t.TempDir())
	seedEvents(buffer, 3)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["latest_data_count"].(float64) != 3 {
		t.Errorf("latest_data_count = %v", body["latest_data_count"])
	}
	if body["active_connections"].(float64) != 0 {
		t.Errorf("active_connections = %v", body["active_connections"])
	}
}

func TestLatest(t *testing.T) {
	h, buffer := newTestHandler(t, t.TempDir())
	seedEvents(buffer, 25)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
	}{
		{"default count", "", http.StatusOK, 10},
		{"explicit count", "?count=5", http.StatusOK, 5},
		{"count above buffered", "?count=500", http.StatusOK, 25},
		{"zero count returns all", "?count=0", http.StatusOK, 25},
		{"non-numeric count", "?count=abc", http.StatusBadRequest, 0},
		{"negative count", "?count=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Latest(rec, httptest.NewRequest(http.MethodGet, "/data/latest"+tt.query, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			body := decodeBody(t, rec)
			if int(body["count"].(float64)) != tt.wantCount {
				t.Errorf("count = %v, want %d", body["count"], tt.wantCount)
			}
			if len(body["data"].([]any)) != tt.wantCount {
				t.Errorf("data length = %d, want %d", len(body["data"].([]any)), tt.wantCount)
			}
		})
	}
}

func TestLatestFlattensEvents(t *testing.T) {
	h, buffer := newTestHandler(t, t.TempDir())
	buffer.Add(data.SensorEvent{
		Timestamp: "2026-03-01T12:00:00Z",
		Client:    "10.0.0.7",
		Source:    "arduino",
		Fields:    map[string]any{"temperature": 21.5},
	})

	rec := httptest.NewRecorder()
	h.Latest(rec, httptest.NewRequest(http.MethodGet, "/data/latest", nil))
	body := decodeBody(t, rec)

	ev := body["data"].([]any)[0].(map[string]any)
	if ev["temperature"] != 21.5 || ev["source"] != "arduino" || ev["timestamp"] != "2026-03-01T12:00:00Z" {
		t.Errorf("event = %v", ev)
	}
}

func TestStats(t *testing.T) {
	h, buffer := newTestHandler(t, t.TempDir())
	seedEvents(buffer, 4)
	buffer.Flush(context.Background())
	seedEvents(buffer, 2) // left pending

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/data/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["total_records"].(float64) != 4 {
		t.Errorf("total_records = %v", body["total_records"])
	}
	if body["pending_events"].(float64) != 2 {
		t.Errorf("pending_events = %v", body["pending_events"])
	}
	if body["latest_data_count"].(float64) != 6 {
		t.Errorf("latest_data_count = %v", body["latest_data_count"])
	}
	if _, ok := body["uptime_seconds"]; !ok {
		t.Error("missing uptime_seconds")
	}
}

func TestHomeWithoutStaticAssets(t *testing.T) {
	h, _ := newTestHandler(t, t.TempDir())

	rec := httptest.NewRecorder()
	h.Home(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := decodeBody(t, rec)
	if body["websocket"] != "/ws" || body["dashboard"] != "/ws-dashboard" {
		t.Errorf("API directory = %v", body)
	}
}

func TestHomeServesIndex(t *testing.T) {
	dir := t.TempDir()
	page := "<!doctype html><title>dashboard</title>"
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}
	h, _ := newTestHandler(t, dir)

	rec := httptest.NewRecorder()
	h.Home(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != page {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
}

func TestRouterWiring(t *testing.T) {
	h, _ := newTestHandler(t, t.TempDir())
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	for _, path := range []string{"/", "/health", "/data/latest", "/data/stats"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}
