package delivery

import (
	"context"
	"time"

	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
	"github.com/Till-X/xiaozhi-sever-DIY/core/audio/wavfile"
	"github.com/Till-X/xiaozhi-sever-DIY/core/codec"
)

type PipelineOption func(*Pipeline)

type pipelineConfig struct {
	fastPathBatches  int
	trickleInterval  time.Duration
	queuePollTimeout time.Duration
	closeTimeout     time.Duration

	encoding   audio.EncodingInfo
	newEncoder func() codec.Encoder
	decodeFile func(path string) ([]byte, error)
}

func defaultPipelineConfig() pipelineConfig {
	encoding := audio.GetDefaultEncodingInfo()
	cfg := pipelineConfig{
		fastPathBatches:  6,
		trickleInterval:  60 * time.Millisecond,
		queuePollTimeout: time.Second,
		closeTimeout:     2 * time.Second,
		encoding:         encoding,
	}
	cfg.newEncoder = func() codec.Encoder {
		encoder, err := codec.NewMuLaw(encoding, 60*time.Millisecond)
		if err != nil {
			panic(err)
		}
		return encoder
	}
	cfg.decodeFile = func(path string) ([]byte, error) {
		return wavfile.DecodePCM(path, encoding)
	}
	return cfg
}

// WithFastPathBatches sets how many frame batches of a session's first
// sentence bypass the cache and go out immediately.
func WithFastPathBatches(batches int) PipelineOption {
	return func(p *Pipeline) { p.cfg.fastPathBatches = batches }
}

// WithTrickleInterval sets the pace at which cached audio is dripped out,
// one frame per interval.
func WithTrickleInterval(interval time.Duration) PipelineOption {
	return func(p *Pipeline) { p.cfg.trickleInterval = interval }
}

// WithQueuePollTimeout sets how long the worker loops block on an empty
// queue before re-checking their stop conditions.
func WithQueuePollTimeout(timeout time.Duration) PipelineOption {
	return func(p *Pipeline) { p.cfg.queuePollTimeout = timeout }
}

// WithCloseTimeout bounds how long an interrupted teardown waits for the
// engine stream to close.
func WithCloseTimeout(timeout time.Duration) PipelineOption {
	return func(p *Pipeline) { p.cfg.closeTimeout = timeout }
}

// WithEncoderFactory replaces the transport codec. The factory is invoked
// once per synthesis session and once per queued audio file, so encoder
// state never leaks between streams.
func WithEncoderFactory(factory func() codec.Encoder) PipelineOption {
	return func(p *Pipeline) { p.cfg.newEncoder = factory }
}

// WithFileDecoder replaces how file-content messages are read into raw PCM.
func WithFileDecoder(decode func(path string) ([]byte, error)) PipelineOption {
	return func(p *Pipeline) { p.cfg.decodeFile = decode }
}

// WithInterrupt shares an externally owned interrupt token, letting a
// barge-in detector cut the pipeline off.
func WithInterrupt(interrupt *Interrupt) PipelineOption {
	return func(p *Pipeline) {
		if interrupt != nil {
			p.interrupt = interrupt
		}
	}
}

// WithCallbacks overrides the delivery hooks.
func WithCallbacks(callbacks PipelineCallbacks) PipelineOption {
	return func(p *Pipeline) { p.callbacks = *p.callbacks.with(callbacks) }
}

// PipelineCallbacks are the pipeline's outbound hooks. All fields are
// optional; missing ones default to no-ops.
type PipelineCallbacks struct {
	// SendAudio delivers one ordered chunk to the transport. An error drops
	// the chunk and keeps the sequencer running.
	SendAudio func(ctx context.Context, chunk AudioChunk) error
	// ReportUsage receives the number of characters spoken, once per
	// annotated chunk.
	ReportUsage func(characters int)
	// ReportChunk receives every successfully sent chunk, for transcript
	// and quality reporting.
	ReportChunk func(chunk AudioChunk)
}

func (c *PipelineCallbacks) defaults() *PipelineCallbacks {
	c.SendAudio = func(context.Context, AudioChunk) error { return nil }
	c.ReportUsage = func(int) {}
	c.ReportChunk = func(AudioChunk) {}
	return c
}

func (c *PipelineCallbacks) with(callbacks PipelineCallbacks) *PipelineCallbacks {
	if callbacks.SendAudio != nil {
		c.SendAudio = callbacks.SendAudio
	}
	if callbacks.ReportUsage != nil {
		c.ReportUsage = callbacks.ReportUsage
	}
	if callbacks.ReportChunk != nil {
		c.ReportChunk = callbacks.ReportChunk
	}
	return c
}
