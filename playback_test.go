package convai

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siwaht/convai/audio"
	"github.com/siwaht/convai/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink counts concurrent Play calls to prove playback never
// overlaps.
type recordingSink struct {
	mu       sync.Mutex
	plays    [][]byte
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	played   chan struct{}
	err      error
	block    chan struct{} // when set, Play waits for ctx
}

func newRecordingSink(buffer int) *recordingSink {
	return &recordingSink{played: make(chan struct{}, buffer)}
}

func (s *recordingSink) Play(ctx context.Context, wav []byte) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if n <= prev || s.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	if s.block != nil {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	s.plays = append(s.plays, wav)
	s.mu.Unlock()
	s.played <- struct{}{}
	return s.err
}

func (s *recordingSink) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.plays))
	copy(out, s.plays)
	return out
}

func b64Samples(samples []int16) string {
	return base64.StdEncoding.EncodeToString(audio.SamplesToBytes(samples))
}

func waitPlayed(t *testing.T, sink *recordingSink, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-sink.played:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for playback")
		}
	}
}

func TestPlaybackQueueFIFO(t *testing.T) {
	sink := newRecordingSink(3)
	q := NewPlaybackQueue(shared.NewNopLogger(), sink)
	defer q.Stop()

	first := []int16{1, 1, 1}
	second := []int16{2, 2}
	third := []int16{3}
	q.Enqueue(PlaybackItem{B64: b64Samples(first)})
	q.Enqueue(PlaybackItem{B64: b64Samples(second)})
	q.Enqueue(PlaybackItem{B64: b64Samples(third)})

	waitPlayed(t, sink, 3)
	plays := sink.snapshot()
	require.Len(t, plays, 3)
	assert.Equal(t, first, audio.BytesToSamples(plays[0][audio.WavHeaderSize:]))
	assert.Equal(t, second, audio.BytesToSamples(plays[1][audio.WavHeaderSize:]))
	assert.Equal(t, third, audio.BytesToSamples(plays[2][audio.WavHeaderSize:]))
	assert.Equal(t, int32(1), sink.maxSeen.Load(), "playback must never overlap")
}

func TestPlaybackQueueFramesWav(t *testing.T) {
	sink := newRecordingSink(1)
	q := NewPlaybackQueue(shared.NewNopLogger(), sink)
	defer q.Stop()

	samples := []int16{10, -10, 20}
	q.Enqueue(PlaybackItem{B64: b64Samples(samples)})
	waitPlayed(t, sink, 1)

	wav := sink.snapshot()[0]
	require.Len(t, wav, audio.WavHeaderSize+len(samples)*2)
	assert.Equal(t, "RIFF", string(wav[0:4]))
}

func TestPlaybackQueueSkipsBadSegments(t *testing.T) {
	tests := []struct {
		name string
		b64  string
	}{
		{
			name: "Undecodable base64",
			b64:  "!!not base64!!",
		},
		{
			name: "Empty payload",
			b64:  "",
		},
		{
			name: "Odd byte count",
			b64:  base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newRecordingSink(1)
			q := NewPlaybackQueue(shared.NewNopLogger(), sink)
			defer q.Stop()

			q.Enqueue(PlaybackItem{B64: tt.b64})
			q.Enqueue(PlaybackItem{B64: b64Samples([]int16{5, 5})})

			// The bad segment is skipped and the good one still plays.
			waitPlayed(t, sink, 1)
			assert.Len(t, sink.snapshot(), 1)
		})
	}
}

func TestPlaybackQueueContinuesAfterSinkError(t *testing.T) {
	sink := newRecordingSink(2)
	sink.err = errors.New("device gone")
	q := NewPlaybackQueue(shared.NewNopLogger(), sink)
	defer q.Stop()

	q.Enqueue(PlaybackItem{B64: b64Samples([]int16{1})})
	q.Enqueue(PlaybackItem{B64: b64Samples([]int16{2})})
	waitPlayed(t, sink, 2)
	assert.Len(t, sink.snapshot(), 2)
}

func TestPlaybackQueueStop(t *testing.T) {
	sink := newRecordingSink(1)
	sink.block = make(chan struct{})
	q := NewPlaybackQueue(shared.NewNopLogger(), sink)

	q.Enqueue(PlaybackItem{B64: b64Samples([]int16{1, 2, 3})})
	q.Enqueue(PlaybackItem{B64: b64Samples([]int16{4})})

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not abort in-flight playback")
	}
	assert.Zero(t, q.Pending())

	// Closed for good.
	q.Enqueue(PlaybackItem{B64: b64Samples([]int16{9})})
	assert.Zero(t, q.Pending())
}
