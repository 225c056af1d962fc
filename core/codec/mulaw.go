package codec

import (
	"fmt"
	"time"

	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
)

// MuLawEncoder packs PCM into fixed-duration G.711 mu-law frames, the
// default outbound codec of the pipeline.
type MuLawEncoder struct {
	info       audio.EncodingInfo
	frameBytes int
	carry      []byte
}

// NewMuLaw returns an encoder producing frames of frameDuration each. The
// encoding info describes the incoming PCM and must be linear16.
func NewMuLaw(info audio.EncodingInfo, frameDuration time.Duration) (*MuLawEncoder, error) {
	if info.IsZero() {
		info = audio.GetDefaultEncodingInfo()
	}
	if info.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("mulaw encoder requires linear16 input, got %s", info.Format.Name())
	}
	frameBytes := info.BytesFor(frameDuration)
	if frameBytes <= 0 {
		return nil, fmt.Errorf("invalid frame duration %v", frameDuration)
	}

	return &MuLawEncoder{info: info, frameBytes: frameBytes}, nil
}

func (e *MuLawEncoder) Encode(pcm []byte, endOfStream bool) ([][]byte, error) {
	if len(pcm)%2 != 0 {
		logger.Warn("dropping trailing odd byte from pcm input", "bytes", len(pcm))
		pcm = pcm[:len(pcm)-1]
	}
	e.carry = append(e.carry, pcm...)

	var frames [][]byte
	for len(e.carry) >= e.frameBytes {
		frames = append(frames, encodeMuLawFrame(e.carry[:e.frameBytes]))
		e.carry = e.carry[e.frameBytes:]
	}

	if endOfStream && len(e.carry) > 0 {
		padded := make([]byte, e.frameBytes)
		copy(padded, e.carry)
		frames = append(frames, encodeMuLawFrame(padded))
		e.carry = nil
	}

	return frames, nil
}

func (e *MuLawEncoder) Reset() {
	e.carry = nil
}

func encodeMuLawFrame(pcm []byte) []byte {
	samples := audio.Samples16(pcm)
	frame := make([]byte, len(samples))
	for i, s := range samples {
		frame[i] = muLawFromSample(s)
	}
	return frame
}

const (
	muLawBias = 0x84
	muLawClip = 32635
)

func muLawFromSample(sample int16) byte {
	s := int32(sample)
	sign := byte(0)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(s>>(exponent+3)) & 0x0F

	return ^(sign | exponent<<4 | mantissa)
}
