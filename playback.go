package convai

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/siwaht/convai/audio"
	"github.com/siwaht/convai/shared"
	"go.uber.org/zap"
)

// AudioSink accepts a complete WAV clip and plays it to completion,
// returning when playback finishes or the context is canceled.
type AudioSink interface {
	Play(ctx context.Context, wav []byte) error
}

// PlaybackItem is one base64-encoded PCM16 agent-audio segment.
type PlaybackItem struct {
	B64 string
}

// PlaybackQueue serializes agent audio into exactly one concurrent
// playback stream: items drain FIFO and at most one is being rendered
// at any instant. A bad segment (empty, or not whole 16-bit samples) is
// skipped immediately and never stalls the rest of the queue.
type PlaybackQueue struct {
	logger shared.LoggerAdapter
	sink   AudioSink

	mu       sync.Mutex
	items    []PlaybackItem
	draining bool

	ctx    context.Context
	cancel context.CancelFunc
	idle   sync.WaitGroup
}

func NewPlaybackQueue(logger shared.LoggerAdapter, sink AudioSink) *PlaybackQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &PlaybackQueue{
		logger: logger,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue appends an item and starts the drain loop if it is not
// already running.
func (q *PlaybackQueue) Enqueue(item PlaybackItem) {
	q.mu.Lock()
	if q.ctx.Err() != nil {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, item)
	if !q.draining {
		q.draining = true
		q.idle.Add(1)
		go q.drain()
	}
	q.mu.Unlock()
}

func (q *PlaybackQueue) drain() {
	defer q.idle.Done()
	for {
		q.mu.Lock()
		if len(q.items) == 0 || q.ctx.Err() != nil {
			q.draining = false
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		raw, err := base64.StdEncoding.DecodeString(item.B64)
		if err != nil {
			q.logger.Warn("discarding undecodable playback segment", zap.Error(err))
			continue
		}
		if len(raw) == 0 {
			q.logger.Warn("discarding playback segment", zap.Error(shared.ErrEmptyAudioPayload))
			continue
		}
		if len(raw)%2 != 0 {
			q.logger.Warn("discarding playback segment", zap.Error(shared.ErrOddAudioPayload))
			continue
		}

		wav := audio.FrameWav(audio.BytesToSamples(raw), audio.TargetRate)
		if err := q.sink.Play(q.ctx, wav); err != nil {
			// Sink failures skip the segment, the queue continues.
			q.logger.Warn("playback failed", zap.Error(&shared.PlaybackError{Err: err}))
		}
	}
}

// Pending returns the number of queued (not yet rendered) items.
func (q *PlaybackQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stop clears the queue and aborts any in-flight playback. The queue
// accepts nothing afterwards; a new call builds a new queue.
func (q *PlaybackQueue) Stop() {
	q.cancel()
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	q.idle.Wait()
}
