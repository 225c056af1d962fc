// Package deepgram implements the synthesis engine contract on top of the
// Deepgram speak websocket API.
package deepgram

import (
	"fmt"
	"os"
	"slices"

	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis"
)

const defaultEndpoint = "wss://api.deepgram.com/v1/speak"

type Engine struct {
	apiKey   string
	voice    string
	encoding encodingInfo

	endpoint string
}

type EngineOption func(*Engine)

// WithEndpoint overrides the service endpoint, mostly useful for tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) EngineOption {
	return func(e *Engine) { e.endpoint = endpoint }
}

func New(cfg synthesis.Config, opts ...EngineOption) (*Engine, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: set DEEPGRAM_API_KEY or pass an api key", synthesis.ErrMissingCredentials)
	}

	// Deepgram names voices through the model parameter.
	voice := cfg.Voice
	if voice == "" {
		voice = cfg.Model
	}
	if voice == "" {
		voice = defaultVoice
	}
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice %q", voice)
	}

	encoding, err := convertEncoding(cfg.EncodingOrDefault())
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	engine := &Engine{
		apiKey:   cfg.APIKey,
		voice:    voice,
		encoding: *encoding,
		endpoint: defaultEndpoint,
	}
	for _, opt := range opts {
		opt(engine)
	}

	return engine, nil
}
