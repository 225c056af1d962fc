package codec

import (
	"fmt"
	"time"

	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
)

// Linear16Encoder packs PCM into fixed-duration frames without transcoding.
// Local playback sinks consume these directly.
type Linear16Encoder struct {
	frameBytes int
	carry      []byte
}

func NewLinear16(info audio.EncodingInfo, frameDuration time.Duration) (*Linear16Encoder, error) {
	if info.IsZero() {
		info = audio.GetDefaultEncodingInfo()
	}
	if info.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("linear16 encoder requires linear16 input, got %s", info.Format.Name())
	}
	frameBytes := info.BytesFor(frameDuration)
	if frameBytes <= 0 {
		return nil, fmt.Errorf("invalid frame duration %v", frameDuration)
	}

	return &Linear16Encoder{frameBytes: frameBytes}, nil
}

func (e *Linear16Encoder) Encode(pcm []byte, endOfStream bool) ([][]byte, error) {
	if len(pcm)%2 != 0 {
		logger.Warn("dropping trailing odd byte from pcm input", "bytes", len(pcm))
		pcm = pcm[:len(pcm)-1]
	}
	e.carry = append(e.carry, pcm...)

	var frames [][]byte
	for len(e.carry) >= e.frameBytes {
		frame := make([]byte, e.frameBytes)
		copy(frame, e.carry[:e.frameBytes])
		frames = append(frames, frame)
		e.carry = e.carry[e.frameBytes:]
	}

	if endOfStream && len(e.carry) > 0 {
		frame := make([]byte, e.frameBytes)
		copy(frame, e.carry)
		frames = append(frames, frame)
		e.carry = nil
	}

	return frames, nil
}

func (e *Linear16Encoder) Reset() {
	e.carry = nil
}
