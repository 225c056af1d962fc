// Package wavfile reads and writes the RIFF/WAV files the pipeline plays
// back, validating them against the pipeline's canonical PCM encoding so a
// mismatched recording is rejected instead of played at the wrong pitch.
package wavfile

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
)

const pcmBitDepth = 16

// ErrFormatMismatch is returned when a decoded WAV does not match the
// expected encoding.
var ErrFormatMismatch = errors.New("wav format mismatch")

// DecodePCM reads a WAV file and returns its samples as raw 16-bit
// little-endian mono PCM. The file must already be mono 16-bit at the
// expected sample rate; no resampling is attempted.
func DecodePCM(path string, want audio.EncodingInfo) ([]byte, error) {
	if want.IsZero() {
		want = audio.GetDefaultEncodingInfo()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wav file: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}

	if int(dec.SampleRate) != want.SampleRate {
		return nil, fmt.Errorf("%w: sample rate %d, want %d", ErrFormatMismatch, dec.SampleRate, want.SampleRate)
	}
	if dec.NumChans != 1 {
		return nil, fmt.Errorf("%w: channels %d, want 1", ErrFormatMismatch, dec.NumChans)
	}
	if dec.BitDepth != pcmBitDepth {
		return nil, fmt.Errorf("%w: bit depth %d, want %d", ErrFormatMismatch, dec.BitDepth, pcmBitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading pcm data: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, sample := range buf.Data {
		samples[i] = int16(sample)
	}
	return audio.Bytes16(samples), nil
}

// WritePCM writes raw 16-bit little-endian mono PCM out as a WAV file.
func WritePCM(path string, pcm []byte, info audio.EncodingInfo) error {
	if info.IsZero() {
		info = audio.GetDefaultEncodingInfo()
	}
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating wav file: %w", err)
	}
	defer file.Close()

	samples := audio.Samples16(pcm)
	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: info.SampleRate},
		Data:   make([]int, len(samples)),
	}
	for i, sample := range samples {
		buffer.Data[i] = int(sample)
	}

	enc := wav.NewEncoder(file, info.SampleRate, pcmBitDepth, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("writing wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing wav encoder: %w", err)
	}
	return nil
}
