package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed length of the binary frame header.
const HeaderSize = 8

// FrameTypeAudio is the only binary frame type currently defined.
// Frames carrying any other type byte are counted and dropped.
const FrameTypeAudio = 0x01

// ErrShortFrame is returned for binary frames under HeaderSize bytes.
var ErrShortFrame = errors.New("binary frame shorter than 8-byte header")

// FrameHeader is the decoded form of the 8-byte binary frame header:
//
//	byte 0    message type (0x01 = audio)
//	bytes 1-4 little-endian uint32 timestamp in ms (wraps ~49 days,
//	          display only)
//	bytes 5-6 little-endian uint16 sample rate divided by 100
//	byte 7    chunk size divided by 64
type FrameHeader struct {
	Type       byte
	Timestamp  uint32
	SampleRate int // Hz, already multiplied back out
	ChunkSize  int // samples, already multiplied back out
}

// ParseFrame decodes the header of a raw binary frame and returns it
// together with the payload that follows. The input slice is not
// copied; the payload aliases frame.
func ParseFrame(frame []byte) (FrameHeader, []byte, error) {
	if len(frame) < HeaderSize {
		return FrameHeader{}, nil, fmt.Errorf("%w: got %d bytes", ErrShortFrame, len(frame))
	}
	h := FrameHeader{
		Type:       frame[0],
		Timestamp:  binary.LittleEndian.Uint32(frame[1:5]),
		SampleRate: int(binary.LittleEndian.Uint16(frame[5:7])) * 100,
		ChunkSize:  int(frame[7]) * 64,
	}
	return h, frame[HeaderSize:], nil
}

// EncodeFrame builds a raw binary frame from a header and payload.
// Used by test clients and device simulators; the server itself only
// parses and relays frames verbatim.
func EncodeFrame(h FrameHeader, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	frame[0] = h.Type
	binary.LittleEndian.PutUint32(frame[1:5], h.Timestamp)
	binary.LittleEndian.PutUint16(frame[5:7], uint16(h.SampleRate/100))
	frame[7] = byte(h.ChunkSize / 64)
	copy(frame[HeaderSize:], payload)
	return frame
}
