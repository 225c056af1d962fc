package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Delivery.FastPathBatches != 6 {
		t.Fatalf("expected default fast path of 6 batches, got %d", cfg.Delivery.FastPathBatches)
	}
	if cfg.Delivery.TrickleIntervalMS != 60 {
		t.Fatalf("expected default trickle interval of 60ms, got %d", cfg.Delivery.TrickleIntervalMS)
	}
	if cfg.Synthesis.Provider != "cosyvoice" {
		t.Fatalf("expected default provider, got %q", cfg.Synthesis.Provider)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
device_id: bench-unit
synthesis:
  provider: deepgram
  voice: aura-2-thalia-en
delivery:
  fast_path_batches: 3
  codec: linear16
music:
  enabled: true
  directory: ./tracks
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DeviceID != "bench-unit" {
		t.Fatalf("expected device id override, got %q", cfg.DeviceID)
	}
	if cfg.Synthesis.Provider != "deepgram" || cfg.Synthesis.Voice != "aura-2-thalia-en" {
		t.Fatalf("expected synthesis override, got %+v", cfg.Synthesis)
	}
	if cfg.Delivery.FastPathBatches != 3 || cfg.Delivery.Codec != "linear16" {
		t.Fatalf("expected delivery override, got %+v", cfg.Delivery)
	}
	if !cfg.Music.Enabled || cfg.Music.Directory != "./tracks" {
		t.Fatalf("expected music override, got %+v", cfg.Music)
	}
	if cfg.Delivery.TrickleIntervalMS != 60 {
		t.Fatalf("expected untouched fields to keep defaults, got %d", cfg.Delivery.TrickleIntervalMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOICEPIPE_DEVICE_ID", "env-unit")
	t.Setenv("VOICEPIPE_SYNTHESIS_PROVIDER", "deepgram")
	t.Setenv("VOICEPIPE_SYNTHESIS_API_KEY", "secret")
	t.Setenv("VOICEPIPE_DELIVERY_FAST_PATH_BATCHES", "9")
	t.Setenv("VOICEPIPE_DELIVERY_CLOSE_TIMEOUT_MS", "750")
	t.Setenv("VOICEPIPE_MUSIC_ENABLED", "true")
	t.Setenv("VOICEPIPE_MUSIC_EXTENSIONS", ".wav, .mp3")
	t.Setenv("VOICEPIPE_REPORTING_ENABLED", "true")
	t.Setenv("VOICEPIPE_REPORTING_ENDPOINT", "https://collector.example/reports")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DeviceID != "env-unit" {
		t.Fatalf("expected device id override, got %q", cfg.DeviceID)
	}
	if cfg.Synthesis.Provider != "deepgram" || cfg.Synthesis.APIKey != "secret" {
		t.Fatalf("expected synthesis override, got %+v", cfg.Synthesis)
	}
	if cfg.Delivery.FastPathBatches != 9 {
		t.Fatalf("expected fast path override, got %d", cfg.Delivery.FastPathBatches)
	}
	if cfg.Delivery.CloseTimeoutMS != 750 {
		t.Fatalf("expected close timeout override, got %d", cfg.Delivery.CloseTimeoutMS)
	}
	if len(cfg.Music.Extensions) != 2 || cfg.Music.Extensions[1] != ".mp3" {
		t.Fatalf("expected extensions override, got %v", cfg.Music.Extensions)
	}
	if !cfg.Reporting.Enabled || cfg.Reporting.Endpoint != "https://collector.example/reports" {
		t.Fatalf("expected reporting override, got %+v", cfg.Reporting)
	}
}

func TestFlagOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--voice=longxiaochun", "--playback=portaudio"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg := Default()
	if err := ApplyFlags(&cfg, fs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synthesis.Voice != "longxiaochun" {
		t.Fatalf("expected voice override, got %q", cfg.Synthesis.Voice)
	}
	if cfg.Playback.Backend != "portaudio" {
		t.Fatalf("expected playback override, got %q", cfg.Playback.Backend)
	}
	if cfg.Synthesis.Provider != "cosyvoice" {
		t.Fatalf("expected unset flags to leave values alone, got %q", cfg.Synthesis.Provider)
	}
}

func TestFlagOverridesAreValidated(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--playback=jack"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg := Default()
	if err := ApplyFlags(&cfg, fs); err == nil {
		t.Fatal("expected an unknown playback backend to be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown provider":     func(cfg *Config) { cfg.Synthesis.Provider = "espeak" },
		"unknown codec":        func(cfg *Config) { cfg.Delivery.Codec = "opus" },
		"unknown backend":      func(cfg *Config) { cfg.Playback.Backend = "jack" },
		"zero fast path":       func(cfg *Config) { cfg.Delivery.FastPathBatches = 0 },
		"zero close timeout":   func(cfg *Config) { cfg.Delivery.CloseTimeoutMS = 0 },
		"music without dir":    func(cfg *Config) { cfg.Music.Enabled = true; cfg.Music.Directory = "" },
		"reporting no target":  func(cfg *Config) { cfg.Reporting.Enabled = true; cfg.Reporting.Endpoint = "" },
		"reporting zero batch": func(cfg *Config) { cfg.Reporting.Enabled = true; cfg.Reporting.Endpoint = "x"; cfg.Reporting.MaxBatch = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Errorf("expected validation to reject %s", name)
			}
		})
	}
}
