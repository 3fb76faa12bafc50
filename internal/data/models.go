package data

import (
	"encoding/json"
	"time"
)

// SensorEvent is one observed telemetry event. Timestamp, Client and
// Source are assigned by the server at receipt; Fields carries the
// sender's payload as-is, or the summary fields derived from a binary
// audio frame (never the raw audio bytes).
type SensorEvent struct {
	Timestamp string         `json:"timestamp"`
	Client    string         `json:"client"`
	Source    string         `json:"source"`
	Fields    map[string]any `json:"-"`
}

// MarshalJSON flattens the event into a single object: the sender's
// fields plus the server-injected timestamp, client and source. The
// injected keys win on collision, matching what dashboards and the
// store expect.
func (e SensorEvent) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		flat[k] = v
	}
	flat["timestamp"] = e.Timestamp
	flat["client"] = e.Client
	flat["source"] = e.Source
	return json.Marshal(flat)
}

// Float returns a numeric field as float64. JSON numbers decode as
// float64; ints are accepted for events built in process.
func (e SensorEvent) Float(key string) (float64, bool) {
	switch v := e.Fields[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Alert describes a threshold violation detected on a stored event.
type Alert struct {
	Timestamp string  `json:"timestamp"`
	Severity  string  `json:"severity"`
	Message   string  `json:"message"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Client    string  `json:"client,omitempty"`
}

// FormatTimestamp renders a server-assigned timestamp the way every
// outgoing message and stored row expects it.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
