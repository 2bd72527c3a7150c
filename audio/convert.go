// Package audio holds the PCM plumbing for the voice pipeline: float
// to int16 conversion, WAV framing, capture batching and resampling.
// Everything here is mono 16-bit little-endian PCM.
package audio

import "math"

// TargetRate is the wire sample rate. Capture is resampled to it and
// all playback segments are framed at it.
const TargetRate = 16000

// Convert maps a float32 sample in [-1, 1] to a signed 16-bit PCM
// sample. Out-of-range input is clamped first. Negative values scale by
// 32768 and non-negative by 32767 so the result stays inside int16; the
// asymmetry is part of the contract.
func Convert(s float32) int16 {
	if s <= -1 {
		return math.MinInt16
	}
	if s >= 1 {
		return math.MaxInt16
	}
	if s < 0 {
		return int16(math.Round(float64(s) * 32768))
	}
	return int16(math.Round(float64(s) * 32767))
}

// ConvertBuffer converts a whole capture buffer.
func ConvertBuffer(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = Convert(s)
	}
	return out
}
