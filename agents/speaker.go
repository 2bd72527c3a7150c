package agents

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	convai "github.com/siwaht/convai"
	"github.com/siwaht/convai/audio"
)

const otoBufferMs = 100

// OtoSink plays 16-bit mono PCM through the default output device.
// One oto context is shared across calls; players are per segment.
type OtoSink struct {
	otoCtx *oto.Context
}

var _ convai.AudioSink = (*OtoSink)(nil)

func NewOtoSink(sampleRate int) (*OtoSink, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(otoBufferMs) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("creating playback context: %w", err)
	}
	<-ready
	return &OtoSink{otoCtx: otoCtx}, nil
}

// Play blocks until the segment has been played out or ctx is
// canceled. The 44-byte container header is skipped; oto consumes the
// raw little-endian samples that follow it.
func (s *OtoSink) Play(ctx context.Context, wav []byte) error {
	if len(wav) <= audio.WavHeaderSize {
		return nil
	}
	player := s.otoCtx.NewPlayer(bytes.NewReader(wav[audio.WavHeaderSize:]))
	defer func() { _ = player.Close() }()
	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
