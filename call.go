package convai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/siwaht/convai/audio"
	"github.com/siwaht/convai/shared"
	"go.uber.org/zap"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateInitializing
	StateActive
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// Observer receives session notifications. Callbacks run on the
// session's own goroutine and must not call back into the session.
type Observer interface {
	StateChanged(s State)
	TranscriptAppended(entry TranscriptEntry)
	EventReceived(kind EventKind)
	ErrorSurfaced(err error)
}

type NopObserver struct{}

func (NopObserver) StateChanged(State)                 {}
func (NopObserver) TranscriptAppended(TranscriptEntry) {}
func (NopObserver) EventReceived(EventKind)            {}
func (NopObserver) ErrorSurfaced(error)                {}

// CaptureConfig is handed to a CaptureProvider on acquisition.
// OnSamples delivers raw float32 mono sample buffers as they arrive;
// OnError reports a device or track failure, which ends the call.
type CaptureConfig struct {
	SampleRate int
	OnSamples  func(samples []float32)
	OnError    func(err error)
}

// CaptureTrack is the per-track stop control of an acquired microphone.
type CaptureTrack interface {
	Stop() error
}

// CaptureProvider acquires a live microphone stream. nativeRate is the
// rate the device actually delivers; the session resamples when it
// differs from the requested rate.
type CaptureProvider interface {
	Acquire(ctx context.Context, cfg CaptureConfig) (track CaptureTrack, nativeRate int, err error)
}

// Dialer opens the websocket. Replaceable for tests.
type Dialer func(ctx context.Context, socketURL string) (*websocket.Conn, error)

func defaultDial(ctx context.Context, socketURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, socketURL, nil)
	return conn, err
}

// Deps are the external collaborators a session consumes.
type Deps struct {
	Bootstrap SignedURLProvider
	Capture   CaptureProvider
	Sink      AudioSink
}

type Option func(*CallSession)

func WithObserver(o Observer) Option {
	return func(s *CallSession) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithDialer(d Dialer) Option {
	return func(s *CallSession) {
		if d != nil {
			s.dial = d
		}
	}
}

const (
	cmdQueueSize     = 16
	inboundQueueSize = 64

	silenceDelay         = 500 * time.Millisecond
	silenceFrameDuration = 10 * time.Millisecond
)

// CallSession is the top-level state machine of one voice conversation
// (Idle → Connecting → Initializing → Active → Ending → Idle). A single
// run goroutine owns all session state; capture callbacks, socket
// reads, the 1 Hz duration tick and control calls reach it through
// bounded channels, so no broad locking is needed.
type CallSession struct {
	logger   shared.LoggerAdapter
	deps     Deps
	dial     Dialer
	observer Observer

	state    atomic.Int32
	duration atomic.Int64
	muted    atomic.Bool
	speaker  atomic.Bool
	lastErr  atomic.Value // errBox

	transcript atomic.Pointer[TranscriptLog]

	cmds      chan func()
	closed    chan struct{}
	closeOnce sync.Once

	call *activeCall // owned by the run goroutine
}

type errBox struct{ err error }

type socketClose struct {
	code   int
	reason string
}

// activeCall bundles the per-call entities. All of them are created at
// Connecting and torn down together; none survives into the next call.
type activeCall struct {
	id         string
	started    atomic.Bool // gates capture → outbound until Active
	transcript *TranscriptLog
	playback   *PlaybackQueue
	outbound   *OutboundChannel
	dispatcher *Dispatcher
	encoder    *audio.CaptureEncoder
	track      CaptureTrack
	inbound    chan []byte
	sockClosed chan socketClose
	ticker     *time.Ticker
	silence    *time.Timer
}

func NewCallSession(logger shared.LoggerAdapter, deps Deps, opts ...Option) (*CallSession, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if deps.Bootstrap == nil {
		return nil, shared.ErrNoBootstrap
	}
	if deps.Capture == nil {
		return nil, shared.ErrNoCaptureProvider
	}
	if deps.Sink == nil {
		return nil, shared.ErrNoAudioSink
	}
	s := &CallSession{
		logger:   logger,
		deps:     deps,
		dial:     defaultDial,
		observer: NopObserver{},
		cmds:     make(chan func(), cmdQueueSize),
		closed:   make(chan struct{}),
	}
	s.speaker.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s, nil
}

func (s *CallSession) run() {
	for {
		var inbound chan []byte
		var sockClosed chan socketClose
		var tick <-chan time.Time
		if s.call != nil {
			inbound = s.call.inbound
			sockClosed = s.call.sockClosed
			if s.call.ticker != nil {
				tick = s.call.ticker.C
			}
		}
		select {
		case <-s.closed:
			s.teardown(true, websocket.CloseNormalClosure, nil)
			return
		case fn := <-s.cmds:
			fn()
		case raw := <-inbound:
			s.call.dispatcher.Dispatch(raw)
		case ci := <-sockClosed:
			s.onSocketClose(ci)
		case <-tick:
			if s.State() == StateActive {
				s.duration.Add(1)
			}
		}
	}
}

// exec runs fn on the session goroutine and waits for its result.
func (s *CallSession) exec(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- func() { reply <- fn() }:
	case <-s.closed:
		return shared.ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.closed:
		return shared.ErrSessionClosed
	}
}

// async posts fn to the session goroutine without waiting.
func (s *CallSession) async(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.closed:
	}
}

// Start begins a call: precondition checks, microphone acquisition,
// socket open and the initiation handshake. It returns once the
// session reaches Initializing; Active follows on receipt of the
// provider's initiation metadata.
func (s *CallSession) Start(ctx context.Context, agentID string, connType ConnectionType) error {
	return s.exec(func() error { return s.handleStart(ctx, agentID, connType) })
}

func (s *CallSession) handleStart(ctx context.Context, agentID string, connType ConnectionType) error {
	if s.State() != StateIdle {
		return shared.ErrCallAlreadyRunning
	}
	if connType == ConnectionWebRTC {
		return &shared.UnsupportedModeError{Mode: connType.String()}
	}
	if agentID == "" {
		return &shared.PreconditionError{Err: shared.ErrNoAgentSelected}
	}
	socketURL, err := s.deps.Bootstrap.SignedURL(ctx, agentID)
	if err != nil {
		return &shared.PreconditionError{Err: err}
	}

	s.setState(StateConnecting)
	s.duration.Store(0)
	s.muted.Store(false)
	s.speaker.Store(true)
	s.lastErr.Store(errBox{})

	call := &activeCall{
		id:         uuid.NewString(),
		transcript: NewTranscriptLog(),
		inbound:    make(chan []byte, inboundQueueSize),
		sockClosed: make(chan socketClose, 1),
	}
	logger := s.logger.With(zap.String("conversationId", call.id))
	call.playback = NewPlaybackQueue(logger, s.deps.Sink)

	// Microphone before socket: a permission denial must leave no
	// connection behind.
	track, nativeRate, err := s.deps.Capture.Acquire(ctx, CaptureConfig{
		SampleRate: audio.TargetRate,
		OnSamples: func(samples []float32) {
			if call.started.Load() {
				call.encoder.Push(samples)
			}
		},
		OnError: func(devErr error) {
			s.async(func() {
				if s.call == call {
					s.teardown(false, websocket.CloseAbnormalClosure, devErr)
				}
			})
		},
	})
	if err != nil {
		call.playback.Stop()
		s.setState(StateIdle)
		return &shared.PreconditionError{Err: fmt.Errorf("%w: %w", shared.ErrMicrophoneDenied, err)}
	}
	call.track = track

	conn, err := s.dial(ctx, socketURL)
	if err != nil {
		_ = track.Stop()
		call.playback.Stop()
		s.setState(StateIdle)
		return fmt.Errorf("opening socket: %w", err)
	}

	call.outbound = NewOutboundChannel(logger, conn)
	call.encoder = audio.NewCaptureEncoder(nativeRate, func(frame []int16) {
		if s.State() == StateActive {
			call.outbound.SendAudioFrame(frame)
		}
	})
	call.dispatcher = NewDispatcher(logger, call.outbound, call.playback, call.transcript,
		s.speaker.Load, DispatcherHooks{
			OnInitMetadata: func() { s.onInitMetadata(call) },
			OnProviderError: func(msg string) {
				s.teardown(false, websocket.CloseInternalServerErr, &shared.ProviderError{Message: msg})
			},
			OnTranscript: s.observer.TranscriptAppended,
			OnEvent:      s.observer.EventReceived,
		})
	s.call = call
	s.transcript.Store(call.transcript)

	// Exactly one initiation message; audio does not flow until the
	// provider confirms with its initiation metadata.
	call.outbound.SendControl(newInitiationEnvelope())
	s.setState(StateInitializing)

	go s.readPump(conn, call)
	return nil
}

func (s *CallSession) readPump(conn *websocket.Conn, call *activeCall) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			reason := ""
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
				reason = ce.Text
			}
			select {
			case call.sockClosed <- socketClose{code: code, reason: reason}:
			default:
			}
			return
		}
		select {
		case call.inbound <- raw:
		default:
			s.logger.Warn("inbound queue full, dropping frame")
		}
	}
}

func (s *CallSession) onInitMetadata(call *activeCall) {
	if s.call != call || s.State() != StateInitializing {
		s.logger.Warn("unexpected initiation metadata", zap.Stringer("state", s.State()))
		return
	}
	s.setState(StateActive)
	call.encoder.Reset()
	call.started.Store(true)
	call.ticker = time.NewTicker(time.Second)
	// Some agents wait for the human to speak first; one 10 ms zero
	// frame elicits the greeting. This is not a keepalive.
	call.silence = time.AfterFunc(silenceDelay, func() {
		s.async(func() {
			if s.call == call && s.State() == StateActive {
				call.outbound.SendAudioFrame(audio.Silence(silenceFrameDuration))
			}
		})
	})
}

func (s *CallSession) onSocketClose(ci socketClose) {
	if s.call == nil {
		return
	}
	switch ci.code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway:
		s.teardown(false, ci.code, nil)
	default:
		s.teardown(false, ci.code, &shared.TransportError{Code: ci.code, Reason: ci.reason})
	}
}

// teardown is the single exit path for every way a call can end. It
// releases everything in a fixed order so partial teardown (socket
// closed, capture still open) cannot happen. Idempotent: with no
// active call it does nothing.
func (s *CallSession) teardown(userInitiated bool, code int, surfaced error) {
	call := s.call
	if call == nil {
		return
	}
	s.setState(StateEnding)
	if call.ticker != nil {
		call.ticker.Stop()
	}
	if call.silence != nil {
		call.silence.Stop()
	}
	call.started.Store(false)
	call.playback.Stop()
	if call.track != nil {
		if err := call.track.Stop(); err != nil {
			s.logger.Error("stopping capture track", err)
		}
	}
	if call.outbound != nil {
		closeCode := code
		if userInitiated {
			closeCode = websocket.CloseNormalClosure
		}
		call.outbound.Close(closeCode)
	}
	s.call = nil
	s.transcript.Store(nil)
	s.duration.Store(0)
	s.muted.Store(false)
	s.speaker.Store(true)
	s.setState(StateIdle)
	if surfaced != nil {
		s.lastErr.Store(errBox{err: surfaced})
		s.observer.ErrorSurfaced(surfaced)
	}
}

// End finishes the call from any state. Safe to call repeatedly and
// while no call is running.
func (s *CallSession) End() error {
	return s.exec(func() error {
		s.teardown(true, websocket.CloseNormalClosure, nil)
		return nil
	})
}

// Mute stops outbound audio accumulation. Valid while Initializing or
// Active, a no-op otherwise. Socket state is untouched.
func (s *CallSession) Mute() { s.setMuted(true) }

func (s *CallSession) Unmute() { s.setMuted(false) }

func (s *CallSession) setMuted(muted bool) {
	_ = s.exec(func() error {
		st := s.State()
		if st != StateInitializing && st != StateActive {
			return nil
		}
		s.muted.Store(muted)
		if s.call != nil && s.call.encoder != nil {
			s.call.encoder.SetMuted(muted)
		}
		return nil
	})
}

// ToggleSpeaker flips agent-audio playback. Disabling does not stop
// audio already queued; it only stops future segments from enqueuing.
// Valid while Initializing or Active, a no-op otherwise.
func (s *CallSession) ToggleSpeaker() {
	_ = s.exec(func() error {
		st := s.State()
		if st != StateInitializing && st != StateActive {
			return nil
		}
		s.speaker.Store(!s.speaker.Load())
		return nil
	})
}

func (s *CallSession) State() State {
	return State(s.state.Load())
}

// DurationSeconds counts whole seconds spent Active in the current
// call; zero between calls.
func (s *CallSession) DurationSeconds() int64 {
	return s.duration.Load()
}

func (s *CallSession) Muted() bool {
	return s.muted.Load()
}

func (s *CallSession) SpeakerEnabled() bool {
	return s.speaker.Load()
}

// Transcript returns the current call's turns in arrival order, or nil
// between calls.
func (s *CallSession) Transcript() []TranscriptEntry {
	if t := s.transcript.Load(); t != nil {
		return t.Entries()
	}
	return nil
}

// Err returns the error surfaced by the most recent call, if any.
func (s *CallSession) Err() error {
	if box, ok := s.lastErr.Load().(errBox); ok {
		return box.err
	}
	return nil
}

// Close ends any running call and shuts the session down for good.
func (s *CallSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *CallSession) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	s.logger.Debug("session state changed",
		zap.Stringer("prev", prev),
		zap.Stringer("new", st),
	)
	s.observer.StateChanged(st)
}
