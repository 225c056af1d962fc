package audio

import "encoding/binary"

// Samples16 reinterprets little-endian 16-bit PCM bytes as samples. A
// trailing odd byte is ignored.
func Samples16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}

// Bytes16 renders samples back to little-endian 16-bit PCM bytes.
func Bytes16(samples []int16) []byte {
	pcm := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}
	return pcm
}
