package agents

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
	convai "github.com/siwaht/convai"
)

// MalgoProvider acquires the default capture device through miniaudio.
// Samples are delivered as float32 mono at the requested rate;
// miniaudio resamples internally when the hardware rate differs.
type MalgoProvider struct{}

var _ convai.CaptureProvider = MalgoProvider{}

type malgoTrack struct {
	device *malgo.Device
	mctx   *malgo.AllocatedContext
}

func (t *malgoTrack) Stop() error {
	if err := t.device.Stop(); err != nil {
		t.device.Uninit()
		_ = t.mctx.Uninit()
		return fmt.Errorf("stopping capture device: %w", err)
	}
	t.device.Uninit()
	return t.mctx.Uninit()
}

func (MalgoProvider) Acquire(_ context.Context, cfg convai.CaptureConfig) (convai.CaptureTrack, int, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("initializing audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			samples := make([]float32, 0, frameCount)
			for i := 0; i+4 <= len(input); i += 4 {
				samples = append(samples,
					math.Float32frombits(binary.LittleEndian.Uint32(input[i:])))
			}
			cfg.OnSamples(samples)
		},
		Stop: func() {
			if cfg.OnError != nil {
				cfg.OnError(fmt.Errorf("capture device stopped"))
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return nil, 0, fmt.Errorf("initializing capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return nil, 0, fmt.Errorf("starting capture device: %w", err)
	}
	return &malgoTrack{device: device, mctx: mctx}, int(deviceConfig.SampleRate), nil
}
