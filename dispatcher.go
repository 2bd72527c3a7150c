package convai

import (
	"github.com/siwaht/convai/shared"
	"go.uber.org/zap"
)

// controlSender is the slice of OutboundChannel the dispatcher needs.
type controlSender interface {
	SendControl(v any)
}

// DispatcherHooks are the session-owned reactions to decoded events.
// They run on the dispatcher's calling goroutine.
type DispatcherHooks struct {
	// OnInitMetadata confirms the provider handshake.
	OnInitMetadata func()
	// OnProviderError forces the call to end.
	OnProviderError func(message string)
	// OnTranscript observes appended turns. Optional.
	OnTranscript func(entry TranscriptEntry)
	// OnEvent observes every decoded kind, informational ones included.
	// Optional.
	OnEvent func(kind EventKind)
}

// Dispatcher parses inbound frames and routes each variant: transcript
// appends, playback enqueues, pong echoes, provider-error teardown.
// A frame that cannot be decoded is logged and dropped; nothing here
// can fail the call except an explicit provider error event.
type Dispatcher struct {
	logger     shared.LoggerAdapter
	out        controlSender
	playback   *PlaybackQueue
	transcript *TranscriptLog
	speakerOn  func() bool
	hooks      DispatcherHooks
}

func NewDispatcher(
	logger shared.LoggerAdapter,
	out controlSender,
	playback *PlaybackQueue,
	transcript *TranscriptLog,
	speakerOn func() bool,
	hooks DispatcherHooks,
) *Dispatcher {
	return &Dispatcher{
		logger:     logger,
		out:        out,
		playback:   playback,
		transcript: transcript,
		speakerOn:  speakerOn,
		hooks:      hooks,
	}
}

func (d *Dispatcher) Dispatch(raw []byte) {
	ev, err := DecodeInboundEvent(raw)
	if err != nil {
		d.logger.Warn("dropping inbound frame",
			zap.Error(&shared.ProtocolError{Err: err}))
		return
	}
	if d.hooks.OnEvent != nil {
		d.hooks.OnEvent(ev.Kind)
	}
	switch ev.Kind {
	case EventInitMetadata:
		if d.hooks.OnInitMetadata != nil {
			d.hooks.OnInitMetadata()
		}
	case EventAgentAudio:
		if !d.speakerOn() {
			// Acknowledged but discarded: disabling the speaker is not
			// retroactive and the payload is not kept for later.
			d.logger.Debug("speaker disabled, discarding agent audio")
			return
		}
		d.playback.Enqueue(PlaybackItem{B64: ev.AudioB64})
	case EventUserTranscript:
		d.append(RoleUser, ev.Text)
	case EventAgentTranscript:
		d.append(RoleAssistant, ev.Text)
	case EventPing:
		d.out.SendControl(newPongEnvelope(ev.EventID))
	case EventError:
		d.logger.Error("provider error event", &shared.ProviderError{Message: ev.Message})
		if d.hooks.OnProviderError != nil {
			d.hooks.OnProviderError(ev.Message)
		}
	case EventInterruption, EventAgentCorrection:
		// Informational only: neither clears playback nor mutates the
		// transcript. Observed through OnEvent above.
		d.logger.Debug("informational event", zap.Stringer("kind", ev.Kind))
	case EventUnknown:
		d.logger.Trace("dropping unrecognized frame")
	}
}

func (d *Dispatcher) append(role Role, text string) {
	entry := d.transcript.Append(role, text)
	if d.hooks.OnTranscript != nil {
		d.hooks.OnTranscript(entry)
	}
}
