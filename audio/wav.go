package audio

import "encoding/binary"

// WavHeaderSize is the canonical PCM WAV header length.
const WavHeaderSize = 44

// FrameWav wraps mono PCM16 samples in a canonical WAV container:
// 44-byte RIFF/WAVE header (fmt chunk size 16, format 1, one channel,
// block align 2, 16 bits per sample) followed by the little-endian
// sample bytes. Consumers are generic WAV decoders with no leniency, so
// the layout is byte-exact.
func FrameWav(samples []int16, sampleRate uint32) []byte {
	dataLen := uint32(len(samples) * 2)
	buf := make([]byte, WavHeaderSize+int(dataLen))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataLen)
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate*2) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)            // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)           // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataLen)

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[WavHeaderSize+i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples reinterprets little-endian PCM16 bytes as samples. The
// input length must be even.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// SamplesToBytes packs samples as little-endian PCM16 bytes.
func SamplesToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}
