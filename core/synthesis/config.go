package synthesis

import (
	"errors"

	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
)

// ErrMissingCredentials is returned by engine constructors when no API key
// is configured. Fatal at construction; there is nothing to retry.
var ErrMissingCredentials = errors.New("missing synthesis credentials")

// Config carries what every engine needs to open a stream. Engine-specific
// knobs stay in the respective provider packages.
type Config struct {
	APIKey string
	Model  string
	Voice  string

	// Encoding describes the raw PCM the engine is asked to produce.
	// Zero value means the pipeline default (16kHz linear16 mono).
	Encoding audio.EncodingInfo
}

func (c Config) EncodingOrDefault() audio.EncodingInfo {
	if c.Encoding.IsZero() {
		return audio.GetDefaultEncodingInfo()
	}
	return c.Encoding
}
