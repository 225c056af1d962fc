// Package miniaudio plays delivered audio on the default output device
// through the malgo bindings.
package miniaudio

import (
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playback     playbackDevice

	encoding audio.EncodingInfo
}

// NewClient initializes the default output device for the given encoding.
// Only linear16 is playable directly; decode lossy frames before handing
// them over.
func NewClient(encoding audio.EncodingInfo) (*Client, error) {
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	if encoding.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding %q, the device consumes linear16", encoding.Format.Name())
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{audioContext: audioCtx, encoding: encoding}

	if err := client.playback.Init(audioCtx, encoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := client.playback.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return &client, nil
}

// Play queues raw PCM behind whatever is already waiting on the device.
func (c *Client) Play(pcm []byte) error {
	return c.playback.Play(pcm)
}

// Clear drops everything queued but not yet played.
func (c *Client) Clear() {
	c.playback.Clear()
}

// Mark registers a callback for when playback reaches the current end of
// the queue.
func (c *Client) Mark(name string, callback func(string)) error {
	return c.playback.Mark(name, callback)
}

// AwaitPlayed blocks until everything queued so far has reached the
// device.
func (c *Client) AwaitPlayed() error {
	return c.playback.AwaitPlayed()
}

func (c *Client) Close() {
	_ = c.playback.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
