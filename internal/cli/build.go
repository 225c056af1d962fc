package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	delivery "github.com/Till-X/xiaozhi-sever-DIY/core"
	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
	"github.com/Till-X/xiaozhi-sever-DIY/core/audio/miniaudio"
	"github.com/Till-X/xiaozhi-sever-DIY/core/audio/portaudio"
	"github.com/Till-X/xiaozhi-sever-DIY/core/audio/wavfile"
	"github.com/Till-X/xiaozhi-sever-DIY/core/codec"
	"github.com/Till-X/xiaozhi-sever-DIY/core/music"
	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis"
	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis/cosyvoice"
	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis/deepgram"
	"github.com/Till-X/xiaozhi-sever-DIY/internal/config"
	"github.com/Till-X/xiaozhi-sever-DIY/internal/reporting"
)

// playbackSink is what a local audio backend must offer to serve as the
// pipeline's delivery target.
type playbackSink interface {
	Play(pcm []byte) error
	Clear()
	Close()
}

// app bundles everything one command invocation wires together.
type app struct {
	cfg      config.Config
	encoding audio.EncodingInfo
	pipeline *delivery.Pipeline
	sink     playbackSink
	library  *music.Library
	store    *reporting.Store
	uploader *reporting.Uploader

	// observe, when set before Run, sees every delivered chunk.
	observe func(chunk delivery.AudioChunk)
}

func pipelineEncoding(cfg config.Config) audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: cfg.Synthesis.SampleRate, Format: audio.EncodingLinear16}
}

func buildEngine(cfg config.Config) (synthesis.Engine, error) {
	engineCfg := synthesis.Config{
		APIKey:   cfg.Synthesis.APIKey,
		Model:    cfg.Synthesis.Model,
		Voice:    cfg.Synthesis.Voice,
		Encoding: pipelineEncoding(cfg),
	}
	switch cfg.Synthesis.Provider {
	case "cosyvoice":
		return cosyvoice.New(engineCfg)
	case "deepgram":
		return deepgram.New(engineCfg)
	}
	return nil, fmt.Errorf("unknown synthesis provider %q", cfg.Synthesis.Provider)
}

func buildSink(cfg config.Config, encoding audio.EncodingInfo) (playbackSink, error) {
	switch cfg.Playback.Backend {
	case "miniaudio":
		return miniaudio.NewClient(encoding)
	case "portaudio":
		return portaudio.NewClient(cfg.Playback.BufferSize, encoding)
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown playback backend %q", cfg.Playback.Backend)
}

func buildEncoderFactory(cfg config.Config, encoding audio.EncodingInfo) (func() codec.Encoder, error) {
	frame := time.Duration(cfg.Delivery.FrameDurationMS) * time.Millisecond
	build := func() (codec.Encoder, error) {
		if cfg.Delivery.Codec == "linear16" {
			return codec.NewLinear16(encoding, frame)
		}
		return codec.NewMuLaw(encoding, frame)
	}
	if _, err := build(); err != nil {
		return nil, err
	}
	return func() codec.Encoder {
		encoder, err := build()
		if err != nil {
			panic(err)
		}
		return encoder
	}, nil
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	engine, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}

	// Local playback needs raw PCM frames, so a configured sink forces the
	// lossless framer regardless of the outbound codec setting.
	if cfg.Playback.Backend != "none" {
		cfg.Delivery.Codec = "linear16"
	}

	a := &app{cfg: cfg, encoding: pipelineEncoding(cfg)}

	a.sink, err = buildSink(cfg, a.encoding)
	if err != nil {
		return nil, err
	}

	encoderFactory, err := buildEncoderFactory(cfg, a.encoding)
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.Reporting.Enabled {
		a.store, err = reporting.Open(ctx, cfg.Reporting.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		a.uploader = reporting.NewUploader(a.store, cfg.Reporting.Endpoint,
			reporting.WithDrainInterval(time.Duration(cfg.Reporting.DrainIntervalS)*time.Second),
			reporting.WithRequestTimeout(time.Duration(cfg.Reporting.RequestTimeoutMS)*time.Millisecond),
			reporting.WithMaxBatch(cfg.Reporting.MaxBatch))
	}

	if cfg.Music.Enabled {
		a.library = music.NewLibrary(cfg.Music.Directory,
			music.WithExtensions(cfg.Music.Extensions...),
			music.WithRefreshInterval(time.Duration(cfg.Music.RefreshIntervalS)*time.Second))
	}

	a.pipeline, err = delivery.NewPipeline(engine,
		delivery.WithFastPathBatches(cfg.Delivery.FastPathBatches),
		delivery.WithTrickleInterval(time.Duration(cfg.Delivery.TrickleIntervalMS)*time.Millisecond),
		delivery.WithQueuePollTimeout(time.Duration(cfg.Delivery.PollTimeoutMS)*time.Millisecond),
		delivery.WithCloseTimeout(time.Duration(cfg.Delivery.CloseTimeoutMS)*time.Millisecond),
		delivery.WithEncoderFactory(encoderFactory),
		delivery.WithFileDecoder(func(path string) ([]byte, error) {
			return wavfile.DecodePCM(path, a.encoding)
		}),
		delivery.WithCallbacks(delivery.PipelineCallbacks{
			SendAudio:   a.sendChunk,
			ReportChunk: a.reportChunk,
		}),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) sendChunk(_ context.Context, chunk delivery.AudioChunk) error {
	if a.sink == nil {
		return nil
	}
	for _, frame := range chunk.Frames {
		if err := a.sink.Play(frame); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) reportChunk(chunk delivery.AudioChunk) {
	if a.observe != nil {
		a.observe(chunk)
	}
	if a.store != nil {
		if err := a.store.Append(context.Background(), reporting.ChunkRecord(a.cfg.DeviceID, chunk)); err != nil {
			slog.Warn("failed to spool delivery report", "error", err)
		}
	}
}

// awaitSink blocks until the local sink has played out its queue, when the
// backend supports it.
func (a *app) awaitSink() {
	switch sink := a.sink.(type) {
	case interface{ AwaitPlayed() error }:
		if err := sink.AwaitPlayed(); err != nil {
			slog.Warn("failed to wait for playback", "error", err)
		}
	case interface{ Drain() error }:
		if err := sink.Drain(); err != nil {
			slog.Warn("failed to drain playback", "error", err)
		}
	}
}

func (a *app) close() {
	if a.pipeline != nil {
		a.pipeline.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
