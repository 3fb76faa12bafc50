package hub

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cristim67/audio-analysis-platform/internal/protocol"
)

// newFakeClient builds a Client with no socket behind it. Sends only
// touch the queue, so registry and forwarder behavior can be tested
// without a network.
func newFakeClient(id string, queue int) *Client {
	writerDone := make(chan struct{})
	close(writerDone)
	return &Client{
		ID:         id,
		RemoteAddr: "fake:" + id,
		send:       make(chan message, queue),
		done:       make(chan struct{}),
		writerDone: writerDone,
		logger:     zerolog.Nop(),
	}
}

func TestDeviceSlotSupersede(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a := newFakeClient("a", 1)
	b := newFakeClient("b", 1)

	h.SetDevice(a)
	if h.Device() != a {
		t.Fatal("device slot should hold a")
	}

	// B's classification silently supersedes A.
	h.SetDevice(b)
	if h.Device() != b {
		t.Fatal("device slot should hold b after supersede")
	}

	// A's late disconnect must not unregister B.
	h.ClearDevice(a)
	if h.Device() != b {
		t.Fatal("superseded device's cleanup cleared its successor")
	}

	h.ClearDevice(b)
	if h.Device() != nil {
		t.Fatal("device slot should be empty")
	}
}

func TestDashboardSetIdempotent(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newFakeClient("dash", 1)

	h.AddDashboard(c)
	h.AddDashboard(c)
	if got := h.DashboardCount(); got != 1 {
		t.Errorf("DashboardCount = %d after duplicate add, want 1", got)
	}

	h.RemoveDashboard(c)
	h.RemoveDashboard(c)
	if got := h.DashboardCount(); got != 0 {
		t.Errorf("DashboardCount = %d after duplicate remove, want 0", got)
	}
}

func TestForwardWithoutDevice(t *testing.T) {
	h := NewHub(zerolog.Nop())
	if h.ForwardToDevice([]byte{0x01, 0, 0, 0, 0, 0, 0, 0}) {
		t.Fatal("forward succeeded with no device registered")
	}
}

func TestForwardDeliversVerbatim(t *testing.T) {
	h := NewHub(zerolog.Nop())
	device := newFakeClient("dev", 4)
	h.SetDevice(device)

	frame := protocol.EncodeFrame(protocol.FrameHeader{
		Type: protocol.FrameTypeAudio, Timestamp: 1000, SampleRate: 44100, ChunkSize: 1024,
	}, []byte{1, 2, 3, 4, 5})

	if !h.ForwardToDevice(frame) {
		t.Fatal("forward failed with device registered")
	}

	select {
	case m := <-device.send:
		if m.kind != websocket.BinaryMessage {
			t.Errorf("forwarded kind = %d, want BinaryMessage", m.kind)
		}
		if string(m.payload) != string(frame) {
			t.Errorf("forwarded frame modified:\n got %x\nwant %x", m.payload, frame)
		}
	default:
		t.Fatal("nothing queued on device connection")
	}
}

func TestForwardFullQueueDropsSilently(t *testing.T) {
	h := NewHub(zerolog.Nop())
	device := newFakeClient("dev", 1)
	h.SetDevice(device)

	if !h.ForwardToDevice([]byte("frame-1")) {
		t.Fatal("first forward should fit the queue")
	}
	if h.ForwardToDevice([]byte("frame-2")) {
		t.Fatal("second forward should report a drop, queue is full")
	}
	// The producer saw a boolean, nothing more; the queued frame is
	// untouched.
	if m := <-device.send; string(m.payload) != "frame-1" {
		t.Errorf("queued frame = %q", m.payload)
	}
}

func TestBroadcastSnapshotsAndDrops(t *testing.T) {
	h := NewHub(zerolog.Nop())
	fast := newFakeClient("fast", 4)
	slow := newFakeClient("slow", 1)
	h.AddDashboard(fast)
	h.AddDashboard(slow)

	h.Broadcast([]byte("m1"))
	h.Broadcast([]byte("m2"))

	if len(fast.send) != 2 {
		t.Errorf("fast dashboard queued %d frames, want 2", len(fast.send))
	}
	// The slow dashboard drops the overflow but is never removed and
	// never blocks the broadcast.
	if len(slow.send) != 1 {
		t.Errorf("slow dashboard queued %d frames, want 1", len(slow.send))
	}
	if h.DashboardCount() != 2 {
		t.Errorf("DashboardCount = %d, want 2", h.DashboardCount())
	}

	// Per-connection submission order.
	if m := <-fast.send; string(m.payload) != "m1" {
		t.Errorf("first frame = %q, want m1", m.payload)
	}
	if m := <-fast.send; string(m.payload) != "m2" {
		t.Errorf("second frame = %q, want m2", m.payload)
	}
}

func TestClassifyOnce(t *testing.T) {
	c := newFakeClient("c", 1)
	if !c.classify(protocol.RoleDevice) {
		t.Fatal("first classification rejected")
	}
	if c.classify(protocol.RoleAudioSource) {
		t.Fatal("role reverted on second classification")
	}
	if c.Role() != protocol.RoleDevice {
		t.Errorf("Role = %v, want device", c.Role())
	}
}
