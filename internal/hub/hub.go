package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// forwardWarnInterval rate-limits the "no device" log on the audio
// fast path, which otherwise fires per dropped frame.
const forwardWarnInterval = 5 * time.Second

// Hub is the connection registry: the single device slot and the set
// of dashboard subscribers. All operations are idempotent, none
// block; mutations are guarded by an explicit mutex since sessions
// run on parallel goroutines.
type Hub struct {
	mu         sync.RWMutex
	device     *Client
	dashboards map[*Client]struct{}
	sessions   map[*Client]struct{}

	warnMu       sync.Mutex
	lastFwdWarn  time.Time
	droppedAudio uint64

	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		dashboards: make(map[*Client]struct{}),
		sessions:   make(map[*Client]struct{}),
		logger:     logger,
	}
}

// track and untrack maintain the full session set, which exists only
// so Shutdown can close every live connection (audio sources are not
// otherwise registered).
func (h *Hub) track(c *Client) {
	h.mu.Lock()
	h.sessions[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) untrack(c *Client) {
	h.mu.Lock()
	delete(h.sessions, c)
	h.mu.Unlock()
}

// SetDevice installs c as the device connection. A later registration
// silently supersedes the former: the old connection, if still open,
// is simply no longer addressable as the device.
func (h *Hub) SetDevice(c *Client) {
	h.mu.Lock()
	prev := h.device
	h.device = c
	h.mu.Unlock()

	if prev != nil && prev != c {
		h.logger.Info().Str("old", prev.ID).Str("new", c.ID).Msg("device connection superseded")
	}
}

// ClearDevice releases the device slot, but only if it still belongs
// to c. A superseded device's late disconnect must not unregister its
// successor.
func (h *Hub) ClearDevice(c *Client) {
	h.mu.Lock()
	if h.device == c {
		h.device = nil
	}
	h.mu.Unlock()
}

// Device returns the registered device connection, or nil.
func (h *Hub) Device() *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.device
}

func (h *Hub) AddDashboard(c *Client) {
	h.mu.Lock()
	h.dashboards[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) RemoveDashboard(c *Client) {
	h.mu.Lock()
	delete(h.dashboards, c)
	h.mu.Unlock()
}

func (h *Hub) DashboardCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.dashboards)
}

// Broadcast queues a text frame to every dashboard. The subscriber
// set is snapshotted before any send so concurrent joins and leaves
// cannot corrupt the iteration; sends are fire-and-forget and a slow
// dashboard drops frames instead of blocking the producer.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.dashboards))
	for c := range h.dashboards {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.SendText(payload)
	}
}

// ForwardToDevice relays a raw binary frame byte-for-byte to the
// device connection. Reports success; a missing device or a full
// device queue is a silent drop surfaced only through a rate-limited
// log. No retry, no queuing.
func (h *Hub) ForwardToDevice(frame []byte) bool {
	device := h.Device()
	if device == nil {
		h.noteForwardFailure("no device registered")
		return false
	}
	if !device.SendBinary(frame) {
		h.noteForwardFailure("device send queue full")
		return false
	}
	return true
}

// ForwardTextToDevice relays a text frame to the device connection
// with the same no-retry, no-queuing semantics as ForwardToDevice.
func (h *Hub) ForwardTextToDevice(payload []byte) bool {
	device := h.Device()
	if device == nil {
		h.noteForwardFailure("no device registered")
		return false
	}
	if !device.SendText(payload) {
		h.noteForwardFailure("device send queue full")
		return false
	}
	return true
}

func (h *Hub) noteForwardFailure(reason string) {
	h.warnMu.Lock()
	h.droppedAudio++
	dropped := h.droppedAudio
	shouldLog := time.Since(h.lastFwdWarn) >= forwardWarnInterval
	if shouldLog {
		h.lastFwdWarn = time.Now()
	}
	h.warnMu.Unlock()

	if shouldLog {
		h.logger.Warn().Str("reason", reason).Uint64("dropped_total", dropped).Msg("audio frame dropped")
	}
}

// Shutdown closes every tracked connection. Sessions observe the
// closed sockets and run their normal cleanup paths.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.sessions))
	for c := range h.sessions {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.close()
	}
}
