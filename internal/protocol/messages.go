package protocol

import (
	"encoding/json"
	"time"
)

// WelcomeMessage is sent to a connection on the combined channel
// immediately after accept, before classification.
func WelcomeMessage() []byte {
	return []byte(`{"status":"connected","message":"Welcome!"}`)
}

// HeartbeatMessage is the keepalive text frame sent on every liveness
// interval.
func HeartbeatMessage(now time.Time) []byte {
	msg, _ := json.Marshal(map[string]string{
		"type":      "heartbeat",
		"timestamp": now.Format(time.RFC3339),
	})
	return msg
}

// InitialDataMessage is the dashboard bootstrap frame carrying up to N
// recent events.
func InitialDataMessage(events any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": "initial_data",
		"data": events,
	})
}

// AlertMessage wraps an anomaly alert for dashboard broadcast.
func AlertMessage(alert any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":    "alert",
		"payload": alert,
	})
}
