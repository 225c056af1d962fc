package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

// EncodingInfo describes raw audio as it moves through the pipeline:
// sample rate plus sample format. Mono throughout.
type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// BytesPerSecond returns the raw byte rate of this encoding, or -1 for an
// unknown format.
func (e EncodingInfo) BytesPerSecond() int {
	size := e.Format.ByteSize()
	if size < 0 {
		return -1
	}
	return e.SampleRate * size
}

// BytesFor returns how many bytes cover the given duration, rounded down to
// a whole sample.
func (e EncodingInfo) BytesFor(d time.Duration) int {
	rate := e.BytesPerSecond()
	if rate < 0 || d <= 0 {
		return 0
	}
	n := int(int64(rate) * int64(d) / int64(time.Second))
	size := e.Format.ByteSize()
	return n - n%size
}

// DurationOf returns the playback time of n bytes in this encoding.
func (e EncodingInfo) DurationOf(n int) time.Duration {
	rate := e.BytesPerSecond()
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
