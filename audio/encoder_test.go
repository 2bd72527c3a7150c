package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestEncoder(nativeRate int, emit EmitFunc) (*CaptureEncoder, *fakeClock) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	e := NewCaptureEncoder(nativeRate, emit)
	e.now = clock.now
	e.lastFlush = clock.t
	return e, clock
}

func TestCaptureEncoderFlushCadence(t *testing.T) {
	var frames [][]int16
	e, clock := newTestEncoder(TargetRate, func(samples []int16) {
		frames = append(frames, samples)
	})

	// One second of capture callbacks every 50 ms.
	chunk := make([]float32, FrameSamples(50*time.Millisecond, TargetRate, 1))
	for i := 0; i < 20; i++ {
		clock.advance(50 * time.Millisecond)
		e.Push(chunk)
	}

	// Flushes land at 250, 500, 750 and 1000 ms.
	require.Len(t, frames, 4)
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	assert.Equal(t, FrameSamples(time.Second, TargetRate, 1), total)
}

func TestCaptureEncoderMuted(t *testing.T) {
	var frames int
	e, clock := newTestEncoder(TargetRate, func([]int16) {
		frames++
	})
	e.SetMuted(true)
	assert.True(t, e.Muted())

	chunk := make([]float32, FrameSamples(50*time.Millisecond, TargetRate, 1))
	for i := 0; i < 20; i++ {
		clock.advance(50 * time.Millisecond)
		e.Push(chunk)
	}
	assert.Zero(t, frames, "muted capture must emit nothing, not silence")
}

func TestCaptureEncoderUnmuteResumes(t *testing.T) {
	var frames int
	e, clock := newTestEncoder(TargetRate, func([]int16) {
		frames++
	})
	chunk := make([]float32, FrameSamples(50*time.Millisecond, TargetRate, 1))

	e.SetMuted(true)
	for i := 0; i < 10; i++ {
		clock.advance(50 * time.Millisecond)
		e.Push(chunk)
	}
	require.Zero(t, frames)

	e.SetMuted(false)
	for i := 0; i < 10; i++ {
		clock.advance(50 * time.Millisecond)
		e.Push(chunk)
	}
	assert.Equal(t, 2, frames)
}

func TestCaptureEncoderResamples(t *testing.T) {
	var frames [][]int16
	e, clock := newTestEncoder(48000, func(samples []int16) {
		frames = append(frames, samples)
	})

	// 250 ms of 48 kHz capture must flush as 250 ms at the target rate.
	chunk := make([]float32, FrameSamples(50*time.Millisecond, 48000, 1))
	for i := 0; i < 5; i++ {
		clock.advance(50 * time.Millisecond)
		e.Push(chunk)
	}

	require.Len(t, frames, 1)
	assert.Len(t, frames[0], FrameSamples(250*time.Millisecond, TargetRate, 1))
}

func TestCaptureEncoderReset(t *testing.T) {
	var frames int
	e, clock := newTestEncoder(TargetRate, func([]int16) {
		frames++
	})
	chunk := make([]float32, FrameSamples(50*time.Millisecond, TargetRate, 1))

	for i := 0; i < 4; i++ {
		clock.advance(50 * time.Millisecond)
		e.Push(chunk)
	}
	e.Reset()
	clock.advance(50 * time.Millisecond)
	e.Push(chunk)
	assert.Zero(t, frames, "reset restarts the flush window")
}
