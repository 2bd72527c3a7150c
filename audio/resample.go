package audio

// Resample converts a mono float32 buffer from one sample rate to
// another by linear interpolation. Good enough for speech capture; the
// wire metadata always reads the target rate downstream.
func Resample(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 {
		return in
	}
	n := int(float64(len(in)) * float64(toRate) / float64(fromRate))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}
