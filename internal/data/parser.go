package data

import (
	"encoding/json"
	"time"

	"github.com/cristim67/audio-analysis-platform/internal/protocol"
)

// ParseText decodes a text frame into its fields. Any valid JSON
// object is accepted; the caller decides what to do with a decode
// failure (log and drop, per the routing rules).
func ParseText(raw []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// NewTextEvent stamps parsed text-frame fields with the receipt
// timestamp, the sending client's remote identifier and its source
// tag.
func NewTextEvent(fields map[string]any, client, source string, now time.Time) SensorEvent {
	return SensorEvent{
		Timestamp: FormatTimestamp(now),
		Client:    client,
		Source:    source,
		Fields:    fields,
	}
}

// NewAudioSummaryEvent builds the lightweight event recorded for a
// binary audio frame: sample rate, chunk size and payload length, but
// never the audio bytes themselves.
func NewAudioSummaryEvent(h protocol.FrameHeader, payloadLen int, client string, now time.Time) SensorEvent {
	return SensorEvent{
		Timestamp: FormatTimestamp(now),
		Client:    client,
		Source:    protocol.SourceAudio,
		Fields: map[string]any{
			"type":             "audio_chunk",
			"sample_rate":      h.SampleRate,
			"chunk_size":       h.ChunkSize,
			"payload_bytes":    payloadLen,
			"device_timestamp": int64(h.Timestamp),
		},
	}
}
