package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/cristim67/audio-analysis-platform/internal/data"
	"github.com/cristim67/audio-analysis-platform/internal/hub"
	"github.com/cristim67/audio-analysis-platform/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Devices and dashboards connect from anywhere; the relay does
	// not authenticate clients.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StatsStore is the slice of the persistence adapter the statistics
// endpoint needs.
type StatsStore interface {
	TotalCount(ctx context.Context) (int64, error)
	FileSize() int64
}

// Handler serves the HTTP surface around the relay: socket upgrades,
// health/statistics, and static dashboard assets.
type Handler struct {
	relay     *hub.Relay
	buffer    *storage.Buffer
	store     StatsStore
	staticDir string
	startTime time.Time
	logger    zerolog.Logger
}

func NewHandler(relay *hub.Relay, buffer *storage.Buffer, store StatsStore, staticDir string, logger zerolog.Logger) *Handler {
	return &Handler{
		relay:     relay,
		buffer:    buffer,
		store:     store,
		staticDir: staticDir,
		startTime: time.Now(),
		logger:    logger,
	}
}

// CombinedSocket serves the device/audio channel.
func (h *Handler) CombinedSocket(w http.ResponseWriter, r *http.Request) {
	h.serveSocket(w, r, hub.EndpointCombined)
}

// AudioSocket serves the legacy audio-only channel.
func (h *Handler) AudioSocket(w http.ResponseWriter, r *http.Request) {
	h.serveSocket(w, r, hub.EndpointAudio)
}

// DashboardSocket serves the read-mostly dashboard channel.
func (h *Handler) DashboardSocket(w http.ResponseWriter, r *http.Request) {
	h.serveSocket(w, r, hub.EndpointDashboard)
}

func (h *Handler) serveSocket(w http.ResponseWriter, r *http.Request, endpoint hub.Endpoint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	h.relay.ServeConn(conn, endpoint)
}

// Home serves the dashboard page when static assets are present,
// otherwise a small API directory.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(h.staticDir, "index.html")
	if _, err := os.Stat(index); err == nil {
		http.ServeFile(w, r, index)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "telemetry relay server",
		"websocket": "/ws",
		"dashboard": "/ws-dashboard",
		"status":    "running",
	})
}

// Health reports liveness and the current connection/buffer gauges.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"timestamp":          data.FormatTimestamp(time.Now()),
		"active_connections": h.relay.Hub().DashboardCount(),
		"latest_data_count":  h.buffer.Len(),
	})
}

// Latest returns the newest events from the in-memory ring.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	count := 10
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "count must be a non-negative integer", http.StatusBadRequest)
			return
		}
		count = n
	}

	events := h.buffer.Latest(count)
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(events),
		"data":  events,
	})
}

// Stats reports persistence totals plus process resource usage.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	total, err := h.store.TotalCount(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("stats query failed")
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}

	stats := map[string]any{
		"total_records":                total,
		"db_size_kb":                   float64(h.store.FileSize()) / 1024,
		"latest_data_count":            h.buffer.Len(),
		"pending_events":               h.buffer.PendingLen(),
		"active_dashboard_connections": h.relay.Hub().DashboardCount(),
		"uptime_seconds":               int64(time.Since(h.startTime).Seconds()),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			stats["cpu_percent"] = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			stats["memory_rss_mb"] = float64(mem.RSS) / 1024 / 1024
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
