package convai

import (
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/siwaht/convai/audio"
	"github.com/siwaht/convai/shared"
	"go.uber.org/zap"
)

const (
	writeQueueSize = 256
	writeTimeout   = 10 * time.Second
)

// OutboundChannel serializes control and audio messages onto the
// socket. All writes funnel through a single pump goroutine. Sends are
// dropped, never queued, while the socket is not open: buffering
// outbound audio across a stall only produces stale playback later.
type OutboundChannel struct {
	logger shared.LoggerAdapter
	conn   *websocket.Conn

	writeCh   chan []byte
	open      atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewOutboundChannel wraps an open socket and starts the write pump.
// The initiation handshake is the caller's first SendControl.
func NewOutboundChannel(logger shared.LoggerAdapter, conn *websocket.Conn) *OutboundChannel {
	ch := &OutboundChannel{
		logger:  logger,
		conn:    conn,
		writeCh: make(chan []byte, writeQueueSize),
		done:    make(chan struct{}),
	}
	ch.open.Store(true)
	go ch.writePump()
	return ch
}

func (ch *OutboundChannel) Open() bool {
	return ch.open.Load()
}

// SendControl marshals and queues a control message. A no-op (logged,
// not retried) when the channel is not open.
func (ch *OutboundChannel) SendControl(v any) {
	if !ch.open.Load() {
		ch.logger.Debug("dropping control message", zap.Error(shared.ErrOutboundChannelNotOpen))
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		ch.logger.Error("marshaling control message", err)
		return
	}
	ch.enqueue(data)
}

// SendAudioFrame base64-encodes one PCM16 frame and queues it inside
// the user_audio_chunk envelope. Dropped when the channel is not open.
func (ch *OutboundChannel) SendAudioFrame(samples []int16) {
	if !ch.open.Load() {
		ch.logger.Debug("dropping audio frame",
			zap.Int("samples", len(samples)),
			zap.Error(shared.ErrOutboundChannelNotOpen))
		return
	}
	b64 := base64.StdEncoding.EncodeToString(audio.SamplesToBytes(samples))
	data, err := sonic.Marshal(audioChunkEnvelope{UserAudioChunk: b64})
	if err != nil {
		ch.logger.Error("marshaling audio chunk", err)
		return
	}
	ch.enqueue(data)
}

func (ch *OutboundChannel) enqueue(data []byte) {
	select {
	case ch.writeCh <- data:
	default:
		// Queue full: same drop policy as a closed socket.
		ch.logger.Warn("outbound queue full, dropping message")
	}
}

func (ch *OutboundChannel) writePump() {
	for {
		select {
		case <-ch.done:
			return
		case data := <-ch.writeCh:
			_ = ch.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ch.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				ch.logger.Warn("socket write failed", zap.Error(err))
				ch.open.Store(false)
				return
			}
		}
	}
}

// Close marks the channel not-open, sends a close frame with the given
// code and closes the socket. Idempotent.
func (ch *OutboundChannel) Close(code int) {
	ch.closeOnce.Do(func() {
		ch.open.Store(false)
		close(ch.done)
		_ = ch.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(writeTimeout),
		)
		_ = ch.conn.Close()
	})
}
