// Package cosyvoice implements the synthesis engine contract on top of the
// DashScope duplex websocket API. One task runs per stream: text is fed in
// with continue-task commands while raw PCM comes back as binary frames on
// the same connection.
package cosyvoice

import (
	"fmt"
	"os"
	"time"

	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis"
)

const (
	defaultEndpoint = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"
	defaultModel    = "cosyvoice-v2"
	defaultVoice    = "longxiaochun_v2"

	defaultStartTimeout = 10 * time.Second
)

type Engine struct {
	apiKey string
	model  string
	voice  string

	sampleRate int

	endpoint       string
	startTimeout   time.Duration
	volume         int
	speechRate     float64
	pitch          float64
	dataInspection bool
}

type EngineOption func(*Engine)

// WithEndpoint overrides the service endpoint, mostly useful for tests and
// regional deployments.
func WithEndpoint(endpoint string) EngineOption {
	return func(e *Engine) { e.endpoint = endpoint }
}

// WithStartTimeout bounds how long Open waits for the service to
// acknowledge a new task.
func WithStartTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) { e.startTimeout = timeout }
}

// WithVolume sets the synthesis volume, 0 to 100.
func WithVolume(volume int) EngineOption {
	return func(e *Engine) { e.volume = volume }
}

// WithSpeechRate scales the speaking speed, 1 being the voice's natural
// pace.
func WithSpeechRate(rate float64) EngineOption {
	return func(e *Engine) { e.speechRate = rate }
}

// WithPitch scales the voice pitch, 1 being the voice's natural pitch.
func WithPitch(pitch float64) EngineOption {
	return func(e *Engine) { e.pitch = pitch }
}

// WithDataInspection opts in to the service-side content inspection.
func WithDataInspection() EngineOption {
	return func(e *Engine) { e.dataInspection = true }
}

func New(cfg synthesis.Config, opts ...EngineOption) (*Engine, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DASHSCOPE_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: set DASHSCOPE_API_KEY or pass an api key", synthesis.ErrMissingCredentials)
	}

	sampleRate, err := convertEncoding(cfg.EncodingOrDefault())
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	engine := &Engine{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		voice:      cfg.Voice,
		sampleRate: sampleRate,

		endpoint:     defaultEndpoint,
		startTimeout: defaultStartTimeout,
		volume:       50,
		speechRate:   1,
		pitch:        1,
	}
	if engine.model == "" {
		engine.model = defaultModel
	}
	if engine.voice == "" {
		engine.voice = defaultVoice
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine, nil
}

func convertEncoding(encoding audio.EncodingInfo) (int, error) {
	switch encoding.SampleRate {
	case 8000, 16000, 22050, 24000, 44100, 48000:
	default:
		return 0, fmt.Errorf("unsupported sample rate")
	}

	if encoding.Format != audio.EncodingLinear16 {
		return 0, fmt.Errorf("unsupported encoding, the service produces raw linear16 only")
	}

	return encoding.SampleRate, nil
}
