package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cristim67/audio-analysis-platform/internal/protocol"
)

// message is one outbound frame queued for a connection's write pump.
type message struct {
	kind    int // websocket.TextMessage or websocket.BinaryMessage
	payload []byte
}

// Client wraps one websocket connection: its identity, role, outbound
// queue and liveness bookkeeping. All sends go through the buffered
// send channel so each peer observes this connection's frames in
// submission order; enqueueing is non-blocking and drops when the
// peer is too slow to keep up.
type Client struct {
	ID         string
	RemoteAddr string

	conn *websocket.Conn
	send chan message

	role         atomic.Int32
	lastActivity atomic.Int64

	// audioFrames counts binary audio frames this session relayed;
	// only the session loop touches it.
	audioFrames uint64

	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once

	logger zerolog.Logger
}

func newClient(conn *websocket.Conn, sendBuffer int, logger zerolog.Logger) *Client {
	c := &Client{
		ID:         uuid.NewString(),
		RemoteAddr: conn.RemoteAddr().String(),
		conn:       conn,
		send:       make(chan message, sendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.logger = logger.With().Str("conn", c.ID).Str("remote", c.RemoteAddr).Logger()
	c.touch()
	return c
}

// Role returns the connection's current classification.
func (c *Client) Role() protocol.Role {
	return protocol.Role(c.role.Load())
}

// classify sets the role exactly once; later classifying frames are
// ignored so a role never reverts.
func (c *Client) classify(r protocol.Role) bool {
	return c.role.CompareAndSwap(int32(protocol.RoleUnclassified), int32(r))
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity is the receipt time of the last frame or pong.
func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// SendText queues a text frame. Reports whether the frame was
// accepted; a full queue or a closing connection drops it.
func (c *Client) SendText(payload []byte) bool {
	return c.enqueue(message{kind: websocket.TextMessage, payload: payload})
}

// SendBinary queues a raw binary frame unmodified.
func (c *Client) SendBinary(payload []byte) bool {
	return c.enqueue(message{kind: websocket.BinaryMessage, payload: payload})
}

func (c *Client) enqueue(m message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- m:
		return true
	default:
		c.logger.Debug().Int("kind", m.kind).Msg("send queue full, dropping frame")
		return false
	}
}

// close tears the connection down once: stops the write pump, closes
// the socket, and waits for the pump to exit so no task outlives the
// connection.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	<-c.writerDone
}

// writePump is the connection's single writer. It drains the send
// queue and emits the liveness heartbeat: every interval a
// `{"type":"heartbeat",...}` text frame plus a protocol-level ping,
// independent of read activity. Exits on send failure or close.
func (c *Client) writePump(heartbeat, writeWait time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case m := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(m.kind, m.payload); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage,
				protocol.HeartbeatMessage(time.Now())); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
