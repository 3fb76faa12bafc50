package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cristim67/audio-analysis-platform/internal/alerting"
	"github.com/cristim67/audio-analysis-platform/internal/anomaly"
	"github.com/cristim67/audio-analysis-platform/internal/data"
	"github.com/cristim67/audio-analysis-platform/internal/protocol"
	"github.com/cristim67/audio-analysis-platform/internal/storage"
)

// Endpoint identifies which socket path a connection arrived on. All
// three speak the same frame protocol; the endpoint only fixes the
// initial role.
type Endpoint int

const (
	// EndpointCombined serves both the device and audio sources; the
	// first text frame classifies the connection.
	EndpointCombined Endpoint = iota
	// EndpointAudio is the legacy audio-only channel.
	EndpointAudio
	// EndpointDashboard is the read-mostly subscriber channel.
	EndpointDashboard
)

// EventPublisher mirrors stored events to an external broker.
// Optional; nil disables egress.
type EventPublisher interface {
	PublishEvent(ev data.SensorEvent)
}

// Options carries the per-connection timing and routing knobs.
type Options struct {
	HeartbeatInterval time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
	MaxMessageSize    int64
	SendBuffer        int

	// SummaryEvery reduces audio summary volume: one summary event
	// per this many binary frames.
	SummaryEvery int

	// InitialDataCount bounds the dashboard bootstrap replay.
	InitialDataCount int
}

// Relay owns one session loop per websocket connection: it starts the
// write pump (liveness monitor), reads frames, routes them through
// the classification and relay rules, and guarantees registry cleanup
// on every exit path.
type Relay struct {
	hub      *Hub
	buffer   *storage.Buffer
	detector *anomaly.Detector
	alerter  *alerting.Alerter
	egress   EventPublisher
	opts     Options
	logger   zerolog.Logger
}

func NewRelay(h *Hub, buffer *storage.Buffer, detector *anomaly.Detector, alerter *alerting.Alerter, egress EventPublisher, opts Options, logger zerolog.Logger) *Relay {
	if opts.SummaryEvery <= 0 {
		opts.SummaryEvery = 1
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Relay{
		hub:      h,
		buffer:   buffer,
		detector: detector,
		alerter:  alerter,
		egress:   egress,
		opts:     opts,
		logger:   logger,
	}
}

// Hub exposes the registry for status handlers.
func (r *Relay) Hub() *Hub { return r.hub }

// ServeConn runs the session for one accepted websocket connection
// and blocks until the peer disconnects or errors. Cleanup — registry
// de-registration, pump shutdown, final flush for a departing device —
// runs on every path out.
func (r *Relay) ServeConn(conn *websocket.Conn, endpoint Endpoint) {
	c := newClient(conn, r.opts.SendBuffer, r.logger)
	r.hub.track(c)

	go c.writePump(r.opts.HeartbeatInterval, r.opts.WriteWait)

	defer func() {
		c.close()
		r.hub.untrack(c)
		r.hub.RemoveDashboard(c)
		r.hub.ClearDevice(c)
		if c.Role() == protocol.RoleDevice {
			// The primary telemetry producer is gone; persist what we
			// have rather than wait out the flush interval.
			r.buffer.TriggerFlush()
		}
		c.logger.Info().Stringer("role", c.Role()).Msg("disconnected")
	}()

	switch endpoint {
	case EndpointDashboard:
		c.classify(protocol.RoleDashboard)
		r.hub.AddDashboard(c)
		c.logger.Info().Int("dashboards", r.hub.DashboardCount()).Msg("dashboard connected")
		r.sendInitialData(c)
	case EndpointAudio:
		c.classify(protocol.RoleAudioSource)
		c.logger.Info().Msg("audio source connected")
	default:
		// Combined channel: role decided by the first text frame.
		c.SendText(protocol.WelcomeMessage())
		c.logger.Info().Msg("connection accepted, awaiting classification")
	}

	r.readLoop(c)
}

// readLoop is the per-connection receive loop. The read deadline is
// refreshed by pongs, so it only fires when the peer stops answering
// the heartbeat pings — an idle but live peer is never closed.
func (r *Relay) readLoop(c *Client) {
	c.conn.SetReadLimit(r.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(r.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(r.opts.PongWait))
	})

	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("read ended")
			}
			return
		}
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(r.opts.PongWait))

		switch msgType {
		case websocket.TextMessage:
			r.routeText(c, payload)
		case websocket.BinaryMessage:
			r.routeBinary(c, payload)
		default:
			// Other frame kinds carry no application meaning here.
		}
	}
}

// routeText applies the text-frame relay rules: classify on first
// contact, stamp, store, broadcast, and for audio sources forward
// the original frame to the device.
func (r *Relay) routeText(c *Client, payload []byte) {
	fields, err := data.ParseText(payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("payload", truncate(payload, 256)).Msg("invalid JSON, dropping frame")
		return
	}

	if c.Role() == protocol.RoleUnclassified {
		role := protocol.ClassifyFirstMessage(fields)
		if c.classify(role) {
			if role == protocol.RoleDevice {
				r.hub.SetDevice(c)
			}
			c.logger.Info().Stringer("role", role).Msg("connection classified")
		}
	}

	role := c.Role()
	if role == protocol.RoleDashboard {
		// Read-mostly channel; dashboard commands are logged and
		// otherwise ignored.
		c.logger.Debug().Str("payload", truncate(payload, 256)).Msg("dashboard message ignored")
		return
	}

	ev := data.NewTextEvent(fields, c.RemoteAddr, protocol.SourceTag(role), time.Now())
	r.dispatch(ev)

	switch role {
	case protocol.RoleDevice:
		// The device firmware treats the echo as a receipt ack.
		c.SendText(append([]byte("Echo: "), payload...))
	case protocol.RoleAudioSource:
		if r.hub.ForwardTextToDevice(payload) {
			c.logger.Debug().Msg("forwarded audio data to device")
		}
	}
}

// routeBinary applies the binary relay rules: frames under 8 bytes
// and undefined type bytes are dropped; audio frames take the
// zero-decode fast path to the device, with a summary event emitted
// at the reduced sampling rate.
func (r *Relay) routeBinary(c *Client, payload []byte) {
	header, audio, err := protocol.ParseFrame(payload)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping malformed binary frame")
		return
	}
	if header.Type != protocol.FrameTypeAudio {
		c.logger.Debug().Uint8("type", header.Type).Msg("dropping binary frame with undefined type")
		return
	}

	r.hub.ForwardToDevice(payload)

	c.audioFrames++
	if (c.audioFrames-1)%uint64(r.opts.SummaryEvery) != 0 {
		return
	}
	r.dispatch(data.NewAudioSummaryEvent(header, len(audio), c.RemoteAddr, time.Now()))
}

// dispatch is the shared fan-out for a stamped event: telemetry
// buffer, dashboard broadcast, anomaly check, external egress.
func (r *Relay) dispatch(ev data.SensorEvent) {
	r.buffer.Add(ev)

	if msg, err := ev.MarshalJSON(); err == nil {
		r.hub.Broadcast(msg)
	} else {
		r.logger.Warn().Err(err).Msg("event broadcast marshal failed")
	}

	if r.detector != nil {
		if alerts := r.detector.Check(ev); len(alerts) > 0 && r.alerter != nil {
			r.alerter.Process(alerts)
		}
	}
	if r.egress != nil {
		r.egress.PublishEvent(ev)
	}
}

// sendInitialData seeds a new dashboard with the recent-event replay.
func (r *Relay) sendInitialData(c *Client) {
	events := r.buffer.Latest(r.opts.InitialDataCount)
	if len(events) == 0 {
		return
	}
	msg, err := protocol.InitialDataMessage(events)
	if err != nil {
		c.logger.Warn().Err(err).Msg("initial data marshal failed")
		return
	}
	c.SendText(msg)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
