// Package config loads the runtime configuration for the delivery binary.
// Values come from defaults, an optional YAML file, environment overrides,
// and command line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type SynthesisConfig struct {
	Provider   string `yaml:"provider"` // cosyvoice, deepgram
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
}

type DeliveryConfig struct {
	FastPathBatches   int    `yaml:"fast_path_batches"`
	TrickleIntervalMS int    `yaml:"trickle_interval_ms"`
	FrameDurationMS   int    `yaml:"frame_duration_ms"`
	PollTimeoutMS     int    `yaml:"poll_timeout_ms"`
	CloseTimeoutMS    int    `yaml:"close_timeout_ms"`
	Codec             string `yaml:"codec"` // mulaw, linear16
}

type PlaybackConfig struct {
	Backend    string `yaml:"backend"` // miniaudio, portaudio, none
	BufferSize int    `yaml:"buffer_size"`
}

type MusicConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Directory        string   `yaml:"directory"`
	Extensions       []string `yaml:"extensions"`
	RefreshIntervalS int      `yaml:"refresh_interval_s"`
}

type ReportingConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Path             string `yaml:"path"`
	Endpoint         string `yaml:"endpoint"`
	DrainIntervalS   int    `yaml:"drain_interval_s"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	MaxBatch         int    `yaml:"max_batch"`
}

type Config struct {
	DeviceID  string          `yaml:"device_id"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Music     MusicConfig     `yaml:"music"`
	Reporting ReportingConfig `yaml:"reporting"`
}

func Default() Config {
	return Config{
		DeviceID: "voicepipe-dev",
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Synthesis: SynthesisConfig{
			Provider:   "cosyvoice",
			SampleRate: 16000,
		},
		Delivery: DeliveryConfig{
			FastPathBatches:   6,
			TrickleIntervalMS: 60,
			FrameDurationMS:   60,
			PollTimeoutMS:     1000,
			CloseTimeoutMS:    2000,
			Codec:             "mulaw",
		},
		Playback: PlaybackConfig{
			Backend: "none",
		},
		Music: MusicConfig{
			Enabled:          false,
			Directory:        "./music",
			Extensions:       []string{".wav"},
			RefreshIntervalS: 300,
		},
		Reporting: ReportingConfig{
			Enabled:          false,
			Path:             "./data/delivery-reports.db",
			DrainIntervalS:   30,
			RequestTimeoutMS: 5000,
			MaxBatch:         64,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RegisterFlags declares command line overrides for the settings most often
// changed per invocation. Flag values win over both the config file and the
// environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "", "Log verbosity: debug, info, warn or error")
	fs.String("provider", "", "Synthesis provider: cosyvoice or deepgram")
	fs.String("voice", "", "Synthesis voice override")
	fs.String("model", "", "Synthesis model override")
	fs.String("playback", "", "Playback backend: miniaudio, portaudio or none")
	fs.String("music-dir", "", "Music library directory")
}

// ApplyFlags copies changed flag values onto cfg and re-checks the result.
func ApplyFlags(cfg *Config, fs *pflag.FlagSet) error {
	applyStringFlag(&cfg.Telemetry.LogLevel, fs, "log-level")
	applyStringFlag(&cfg.Synthesis.Provider, fs, "provider")
	applyStringFlag(&cfg.Synthesis.Voice, fs, "voice")
	applyStringFlag(&cfg.Synthesis.Model, fs, "model")
	applyStringFlag(&cfg.Playback.Backend, fs, "playback")
	applyStringFlag(&cfg.Music.Directory, fs, "music-dir")
	return validate(*cfg)
}

func applyStringFlag(target *string, fs *pflag.FlagSet, name string) {
	if fs == nil || !fs.Changed(name) {
		return
	}
	if value, err := fs.GetString(name); err == nil {
		*target = value
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.DeviceID, "VOICEPIPE_DEVICE_ID")
	overrideString(&cfg.Telemetry.LogLevel, "VOICEPIPE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICEPIPE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICEPIPE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Synthesis.Provider, "VOICEPIPE_SYNTHESIS_PROVIDER")
	overrideString(&cfg.Synthesis.APIKey, "VOICEPIPE_SYNTHESIS_API_KEY")
	overrideString(&cfg.Synthesis.Model, "VOICEPIPE_SYNTHESIS_MODEL")
	overrideString(&cfg.Synthesis.Voice, "VOICEPIPE_SYNTHESIS_VOICE")
	overrideInt(&cfg.Synthesis.SampleRate, "VOICEPIPE_SYNTHESIS_SAMPLE_RATE")
	overrideInt(&cfg.Delivery.FastPathBatches, "VOICEPIPE_DELIVERY_FAST_PATH_BATCHES")
	overrideInt(&cfg.Delivery.TrickleIntervalMS, "VOICEPIPE_DELIVERY_TRICKLE_INTERVAL_MS")
	overrideInt(&cfg.Delivery.FrameDurationMS, "VOICEPIPE_DELIVERY_FRAME_DURATION_MS")
	overrideInt(&cfg.Delivery.PollTimeoutMS, "VOICEPIPE_DELIVERY_POLL_TIMEOUT_MS")
	overrideInt(&cfg.Delivery.CloseTimeoutMS, "VOICEPIPE_DELIVERY_CLOSE_TIMEOUT_MS")
	overrideString(&cfg.Delivery.Codec, "VOICEPIPE_DELIVERY_CODEC")
	overrideString(&cfg.Playback.Backend, "VOICEPIPE_PLAYBACK_BACKEND")
	overrideInt(&cfg.Playback.BufferSize, "VOICEPIPE_PLAYBACK_BUFFER_SIZE")
	overrideBool(&cfg.Music.Enabled, "VOICEPIPE_MUSIC_ENABLED")
	overrideString(&cfg.Music.Directory, "VOICEPIPE_MUSIC_DIRECTORY")
	overrideStringSlice(&cfg.Music.Extensions, "VOICEPIPE_MUSIC_EXTENSIONS")
	overrideInt(&cfg.Music.RefreshIntervalS, "VOICEPIPE_MUSIC_REFRESH_INTERVAL_S")
	overrideBool(&cfg.Reporting.Enabled, "VOICEPIPE_REPORTING_ENABLED")
	overrideString(&cfg.Reporting.Path, "VOICEPIPE_REPORTING_PATH")
	overrideString(&cfg.Reporting.Endpoint, "VOICEPIPE_REPORTING_ENDPOINT")
	overrideInt(&cfg.Reporting.DrainIntervalS, "VOICEPIPE_REPORTING_DRAIN_INTERVAL_S")
	overrideInt(&cfg.Reporting.RequestTimeoutMS, "VOICEPIPE_REPORTING_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Reporting.MaxBatch, "VOICEPIPE_REPORTING_MAX_BATCH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.DeviceID == "" {
		return errors.New("device_id must not be empty")
	}
	switch cfg.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Synthesis.Provider {
	case "cosyvoice", "deepgram":
	default:
		return errors.New("synthesis.provider must be one of cosyvoice|deepgram")
	}
	if cfg.Synthesis.SampleRate <= 0 {
		return errors.New("synthesis.sample_rate must be positive")
	}
	if cfg.Delivery.FastPathBatches < 1 {
		return errors.New("delivery.fast_path_batches must be >= 1")
	}
	if cfg.Delivery.TrickleIntervalMS <= 0 {
		return errors.New("delivery.trickle_interval_ms must be positive")
	}
	if cfg.Delivery.FrameDurationMS <= 0 {
		return errors.New("delivery.frame_duration_ms must be positive")
	}
	if cfg.Delivery.PollTimeoutMS <= 0 {
		return errors.New("delivery.poll_timeout_ms must be positive")
	}
	if cfg.Delivery.CloseTimeoutMS <= 0 {
		return errors.New("delivery.close_timeout_ms must be positive")
	}
	switch cfg.Delivery.Codec {
	case "mulaw", "linear16":
	default:
		return errors.New("delivery.codec must be one of mulaw|linear16")
	}
	switch cfg.Playback.Backend {
	case "miniaudio", "portaudio", "none":
	default:
		return errors.New("playback.backend must be one of miniaudio|portaudio|none")
	}
	if cfg.Playback.BufferSize < 0 {
		return errors.New("playback.buffer_size must be >= 0")
	}
	if cfg.Music.Enabled {
		if cfg.Music.Directory == "" {
			return errors.New("music.directory must not be empty when music is enabled")
		}
		if len(cfg.Music.Extensions) == 0 {
			return errors.New("music.extensions must not be empty when music is enabled")
		}
		if cfg.Music.RefreshIntervalS <= 0 {
			return errors.New("music.refresh_interval_s must be positive")
		}
	}
	if cfg.Reporting.Enabled {
		if cfg.Reporting.Path == "" {
			return errors.New("reporting.path must not be empty when reporting is enabled")
		}
		if cfg.Reporting.Endpoint == "" {
			return errors.New("reporting.endpoint must not be empty when reporting is enabled")
		}
		if cfg.Reporting.DrainIntervalS <= 0 {
			return errors.New("reporting.drain_interval_s must be positive")
		}
		if cfg.Reporting.RequestTimeoutMS <= 0 {
			return errors.New("reporting.request_timeout_ms must be positive")
		}
		if cfg.Reporting.MaxBatch < 1 {
			return errors.New("reporting.max_batch must be >= 1")
		}
	}
	return nil
}
