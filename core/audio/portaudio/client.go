// Package portaudio plays delivered audio through the default PortAudio
// output stream. Writes block at the device's pace, which makes it a
// useful sink for checking delivery pacing by ear.
package portaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
)

type Client struct {
	bufferSize int
	encoding   audio.EncodingInfo
	stream     *portaudio.Stream
	leftover   []byte

	out []int16
}

func NewClient(bufferSize int, encoding audio.EncodingInfo) (*Client, error) {
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	if encoding.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding %q, the device consumes linear16", encoding.Format.Name())
	}
	if bufferSize <= 0 {
		bufferSize = encoding.SampleRate / 10
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(encoding.SampleRate), bufferSize, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		encoding:   encoding,
		stream:     stream,
		out:        out,
	}, nil
}

// Play writes whole device buffers and keeps the remainder for the next
// call. The write blocks until the device has taken the audio.
func (c *Client) Play(pcm []byte) error {
	frame := c.bufferSize * 2

	buffered := append(c.leftover, pcm...)
	for len(buffered) >= frame {
		if err := c.writeBuffer(buffered[:frame]); err != nil {
			return err
		}
		buffered = buffered[frame:]
	}
	c.leftover = append([]byte(nil), buffered...)
	return nil
}

// Drain pushes the trailing partial buffer padded with silence.
func (c *Client) Drain() error {
	if len(c.leftover) == 0 {
		return nil
	}

	padded := make([]byte, c.bufferSize*2)
	copy(padded, c.leftover)
	c.leftover = nil
	return c.writeBuffer(padded)
}

func (c *Client) Clear() {
	c.leftover = nil
}

func (c *Client) Close() {
	_ = c.stream.Stop()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

func (c *Client) writeBuffer(buf []byte) error {
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, c.out); err != nil {
		return fmt.Errorf("failed to stage audio for the device: %w", err)
	}
	if err := c.stream.Write(); err != nil {
		return fmt.Errorf("failed to write to portaudio stream: %w", err)
	}
	return nil
}
