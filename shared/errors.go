package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNoLogger               = errors.New("no logger provided")
	ErrNoBootstrap            = errors.New("no bootstrap provider given")
	ErrNoCaptureProvider      = errors.New("no capture provider given")
	ErrNoAudioSink            = errors.New("no audio sink given")
	ErrNoAgentSelected        = errors.New("no agent selected")
	ErrIntegrationInactive    = errors.New("voice integration not configured or inactive")
	ErrMicrophoneDenied       = errors.New("microphone access denied")
	ErrCallAlreadyRunning     = errors.New("call already running")
	ErrSessionClosed          = errors.New("session closed")
	ErrWebRTCNotImplemented   = errors.New("webrtc transport not implemented, use websocket")
	ErrEmptyAudioPayload      = errors.New("empty audio payload")
	ErrOddAudioPayload        = errors.New("audio payload is not whole 16-bit samples")
	ErrOutboundChannelNotOpen = errors.New("outbound channel is not open")
	ErrUnknownConnectionType  = errors.New("unknown connection type")
)

// PreconditionError is surfaced to the caller before any connection is
// attempted: no agent selected, integration inactive, microphone denied.
type PreconditionError struct {
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %v", e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// ProviderError carries an error event the voice-agent provider sent
// over the wire. Receiving one ends the call.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return "provider error: " + e.Message
}

// TransportError is an abnormal socket close. Code is the websocket
// close code that ended the connection.
type TransportError struct {
	Code   int
	Reason string
}

func (e *TransportError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transport closed abnormally (code %d)", e.Code)
	}
	return fmt.Sprintf("transport closed abnormally (code %d): %s", e.Code, e.Reason)
}

// ProtocolError marks an inbound frame that could not be decoded. It is
// logged and dropped, never surfaced as a call failure.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// PlaybackError marks a segment the audio sink rejected. The segment is
// skipped and the queue continues.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback error: %v", e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// UnsupportedModeError rejects connection types the client does not
// implement. No partial session is created.
type UnsupportedModeError struct {
	Mode string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("connection type %q: %v", e.Mode, ErrWebRTCNotImplemented)
}

func (e *UnsupportedModeError) Unwrap() error { return ErrWebRTCNotImplemented }
