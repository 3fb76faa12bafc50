package protocol

// Role is the classification of a websocket connection. It is set at
// most once per connection; the first classifying message wins and the
// role never reverts.
type Role int32

const (
	RoleUnclassified Role = iota
	RoleDevice
	RoleAudioSource
	RoleDashboard
)

func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "device"
	case RoleAudioSource:
		return "audio_source"
	case RoleDashboard:
		return "dashboard"
	default:
		return "unclassified"
	}
}

// AudioSourceTag is the `source` value that marks a sender as an
// audio-source client on the combined channel. Anything else (or a
// missing source field) classifies the sender as the device.
const AudioSourceTag = "laptop_microphone"

// Source tags stamped onto stored events.
const (
	SourceDevice  = "arduino"
	SourceAudio   = "laptop_microphone"
	SourceUnknown = "unknown"
)

// ClassifyFirstMessage derives a connection role from the fields of
// the first text frame received on the combined device/audio channel.
// It is deliberately independent of the transport so the rules can be
// tested without a socket.
func ClassifyFirstMessage(fields map[string]any) Role {
	if src, ok := fields["source"].(string); ok && src == AudioSourceTag {
		return RoleAudioSource
	}
	return RoleDevice
}

// SourceTag maps a connection role to the source tag stamped onto
// events it produces.
func SourceTag(r Role) string {
	switch r {
	case RoleDevice:
		return SourceDevice
	case RoleAudioSource:
		return SourceAudio
	default:
		return SourceUnknown
	}
}
