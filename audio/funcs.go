package audio

import "time"

// FrameSamples returns the sample count for a frame of the given
// duration at the given rate and channel count.
func FrameSamples(duration time.Duration, rate, channels int) int {
	return int(duration.Seconds() * float64(channels) * float64(rate))
}

// Silence returns a zeroed PCM16 frame of the given duration at the
// target rate. Used for the one-shot greeting trigger.
func Silence(duration time.Duration) []int16 {
	return make([]int16, FrameSamples(duration, TargetRate, 1))
}
