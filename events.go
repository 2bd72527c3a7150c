package convai

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// EventKind tags the decoded inbound variant. Exactly one kind is
// active per frame; shapes that match nothing map to EventUnknown.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventInitMetadata
	EventAgentAudio
	EventUserTranscript
	EventAgentTranscript
	EventPing
	EventError
	EventInterruption
	EventAgentCorrection
)

func (k EventKind) String() string {
	switch k {
	case EventInitMetadata:
		return "conversation_initiation_metadata"
	case EventAgentAudio:
		return "agent_audio"
	case EventUserTranscript:
		return "user_transcript"
	case EventAgentTranscript:
		return "agent_transcript"
	case EventPing:
		return "ping"
	case EventError:
		return "error"
	case EventInterruption:
		return "interruption"
	case EventAgentCorrection:
		return "agent_response_correction"
	default:
		return "unknown"
	}
}

// InboundEvent is the closed variant decoded from one server frame.
// Only the fields relevant to Kind are populated.
type InboundEvent struct {
	Kind     EventKind
	AudioB64 string // EventAgentAudio: base64 PCM16 payload
	Text     string // transcripts
	EventID  any    // EventPing: echoed verbatim in the pong
	Message  string // EventError
}

// DecodeInboundEvent parses a raw frame into its variant. Fields are
// checked in a fixed priority order because real payload shapes overlap
// across variants of the same event; the first match wins.
func DecodeInboundEvent(raw []byte) (*InboundEvent, error) {
	var m map[string]any
	if err := sonic.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling inbound frame: %w", err)
	}

	if s, _ := m["type"].(string); s == "conversation_initiation_metadata" {
		return &InboundEvent{Kind: EventInitMetadata}, nil
	}

	if _, hasAudio := m["audio"]; hasAudio || hasKey(m, "audio_event") {
		return &InboundEvent{Kind: EventAgentAudio, AudioB64: extractAudioB64(m)}, nil
	}
	if _, ok := m["audio_base_64"]; ok {
		return &InboundEvent{Kind: EventAgentAudio, AudioB64: extractAudioB64(m)}, nil
	}

	if ev, ok := m["user_transcription_event"].(map[string]any); ok {
		if text, ok := ev["user_transcript"].(string); ok {
			return &InboundEvent{Kind: EventUserTranscript, Text: text}, nil
		}
	}
	if ev, ok := m["agent_response_event"].(map[string]any); ok {
		if text, ok := ev["agent_response"].(string); ok {
			return &InboundEvent{Kind: EventAgentTranscript, Text: text}, nil
		}
	}
	if text, ok := m["message"].(string); ok {
		return &InboundEvent{Kind: EventAgentTranscript, Text: text}, nil
	}

	if ev, ok := m["ping_event"].(map[string]any); ok {
		if id, ok := ev["event_id"]; ok {
			return &InboundEvent{Kind: EventPing, EventID: id}, nil
		}
	}

	if v, ok := m["error"]; ok {
		return &InboundEvent{Kind: EventError, Message: errorMessage(v)}, nil
	}
	if v, ok := m["error_event"]; ok {
		return &InboundEvent{Kind: EventError, Message: errorMessage(v)}, nil
	}

	if hasKey(m, "interruption_event") {
		return &InboundEvent{Kind: EventInterruption}, nil
	}
	if hasKey(m, "agent_response_correction_event") {
		return &InboundEvent{Kind: EventAgentCorrection}, nil
	}

	return &InboundEvent{Kind: EventUnknown}, nil
}

// extractAudioB64 pulls the agent audio payload out of the shapes the
// provider has been seen sending. First non-empty wins.
func extractAudioB64(m map[string]any) string {
	if s, ok := m["audio"].(string); ok && s != "" {
		return s
	}
	if ev, ok := m["audio_event"].(map[string]any); ok {
		if s, ok := ev["audio_base_64"].(string); ok && s != "" {
			return s
		}
		if s, ok := ev["audio"].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := m["audio_base_64"].(string); ok && s != "" {
		return s
	}
	return ""
}

func errorMessage(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		if s, ok := e["message"].(string); ok {
			return s
		}
	}
	return "unspecified provider error"
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// Outbound control envelopes. These shapes are the external interface
// of this client and must match the provider byte-for-byte.

type initiationEnvelope struct {
	Type string `json:"type"`
}

func newInitiationEnvelope() initiationEnvelope {
	return initiationEnvelope{Type: "conversation_initiation_client_data"}
}

type audioChunkEnvelope struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

type pongEnvelope struct {
	Type    string `json:"type"`
	EventID any    `json:"event_id"`
}

func newPongEnvelope(eventID any) pongEnvelope {
	return pongEnvelope{Type: "pong_event", EventID: eventID}
}
