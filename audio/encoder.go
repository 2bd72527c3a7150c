package audio

import (
	"sync"
	"time"
)

// FlushInterval is the outbound batching cadence.
const FlushInterval = 250 * time.Millisecond

// EmitFunc receives one encoded frame. The frame is owned by the
// callee; the encoder retains nothing after emission.
type EmitFunc func(samples []int16)

// CaptureEncoder bridges a live microphone stream to discrete outbound
// PCM16 frames. Samples accumulate per capture callback and flush on a
// time cadence, so frame sizes vary. While muted nothing accumulates:
// silence is neither synthesized nor sent.
type CaptureEncoder struct {
	mu         sync.Mutex
	acc        []int16
	lastFlush  time.Time
	interval   time.Duration
	nativeRate int
	muted      bool

	emit EmitFunc
	now  func() time.Time
}

// NewCaptureEncoder builds an encoder for a capture stream running at
// nativeRate. Input is resampled to TargetRate before accumulation when
// the rates differ.
func NewCaptureEncoder(nativeRate int, emit EmitFunc) *CaptureEncoder {
	e := &CaptureEncoder{
		interval:   FlushInterval,
		nativeRate: nativeRate,
		emit:       emit,
		now:        time.Now,
	}
	e.lastFlush = e.now()
	return e
}

// Push handles one capture callback worth of float32 samples. Flushing
// is decided here: when at least FlushInterval has passed since the
// last flush and the accumulator is non-empty, the whole accumulator is
// emitted as one frame.
func (e *CaptureEncoder) Push(samples []float32) {
	e.mu.Lock()
	if !e.muted {
		resampled := Resample(samples, e.nativeRate, TargetRate)
		for _, s := range resampled {
			e.acc = append(e.acc, Convert(s))
		}
	}
	var frame []int16
	now := e.now()
	if now.Sub(e.lastFlush) >= e.interval && len(e.acc) > 0 {
		frame = e.acc
		e.acc = nil
		e.lastFlush = now
	}
	e.mu.Unlock()
	if frame != nil {
		e.emit(frame)
	}
}

func (e *CaptureEncoder) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

func (e *CaptureEncoder) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// Reset drops any accumulated samples and restarts the flush window.
func (e *CaptureEncoder) Reset() {
	e.mu.Lock()
	e.acc = nil
	e.lastFlush = e.now()
	e.mu.Unlock()
}
