package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Till-X/xiaozhi-sever-DIY/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Synthesis.APIKey = "test-key"
	return cfg
}

func TestBuildEngineSelectsProvider(t *testing.T) {
	cfg := testConfig()
	for _, provider := range []string{"cosyvoice", "deepgram"} {
		cfg.Synthesis.Provider = provider
		if _, err := buildEngine(cfg); err != nil {
			t.Errorf("failed to build %s engine: %v", provider, err)
		}
	}

	cfg.Synthesis.Provider = "espeak"
	if _, err := buildEngine(cfg); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}

func TestBuildEncoderFactoryHonorsCodec(t *testing.T) {
	cfg := testConfig()
	encoding := pipelineEncoding(cfg)
	pcm := make([]byte, encoding.BytesFor(60*time.Millisecond))

	cfg.Delivery.Codec = "linear16"
	factory, err := buildEncoderFactory(cfg, encoding)
	if err != nil {
		t.Fatalf("failed to build linear16 factory: %v", err)
	}
	frames, err := factory().Encode(pcm, false)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(frames) != 1 || len(frames[0]) != len(pcm) {
		t.Errorf("expected one lossless frame of %d bytes, got %v", len(pcm), frames)
	}

	cfg.Delivery.Codec = "mulaw"
	factory, err = buildEncoderFactory(cfg, encoding)
	if err != nil {
		t.Fatalf("failed to build mulaw factory: %v", err)
	}
	frames, err = factory().Encode(pcm, false)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(frames) != 1 || len(frames[0]) != len(pcm)/2 {
		t.Errorf("expected one compressed frame of %d bytes, got %v", len(pcm)/2, frames)
	}
}

func TestBuildAppWithoutOptionalPieces(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	defer a.close()

	if a.pipeline == nil {
		t.Fatal("expected a pipeline")
	}
	if a.sink != nil || a.library != nil || a.store != nil || a.uploader != nil {
		t.Error("expected no optional pieces with the default config")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := map[string]bool{"console": false, "speak": false, "reports": false}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing %s subcommand", name)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	if parseLogLevel("debug") != slog.LevelDebug {
		t.Error("debug did not parse")
	}
	if parseLogLevel("error") != slog.LevelError {
		t.Error("error did not parse")
	}
	if parseLogLevel("nonsense") != slog.LevelInfo {
		t.Error("expected info as the fallback level")
	}
}
