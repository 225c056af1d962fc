// Package synthesis defines the capability boundary to streaming
// text-to-speech engines. The delivery pipeline drives an [Engine] through
// one [Stream] per utterance session; audio and lifecycle events come back
// asynchronously through [Callbacks] on the engine's own goroutine.
package synthesis

import "context"

type Engine interface {
	// Open starts a synthesis stream and registers the callbacks that will
	// receive its audio and lifecycle events. The returned stream is ready
	// to accept text once OnOpen has fired; implementations may also accept
	// text immediately and buffer it.
	Open(ctx context.Context, callbacks Callbacks) (Stream, error)
}

type Stream interface {
	// SendText streams one piece of text into the engine. It is guaranteed
	// that audio is generated in the order text is sent.
	//
	// SendText will error if Finish or Close has been called.
	SendText(ctx context.Context, text string) error
	// Finish signals that no more text will be sent. The engine keeps
	// producing audio for already-sent text and fires OnComplete when done.
	//
	// Finish will error if Close has been called.
	// Repeated calls to Finish are ignored.
	Finish(ctx context.Context) error
	// Close releases the stream immediately. It is guaranteed that no
	// callbacks fire after Close returns, except OnClosed.
	//
	// Repeated calls to Close are ignored.
	Close(ctx context.Context) error
}

// Callbacks are the engine's asynchronous notifications. All fields are
// optional; nil hooks are replaced with no-ops by EnsureDefaults. Hooks are
// invoked from the engine's receive goroutine and must not block for long.
type Callbacks struct {
	// OnOpen fires once the engine has accepted the stream.
	OnOpen func()
	// OnAudioData delivers one batch of raw PCM as produced by the engine.
	OnAudioData func(pcm []byte)
	// OnComplete fires after Finish once all audio has been delivered.
	OnComplete func()
	// OnError reports an engine-side failure. Terminal for the stream.
	OnError func(message string)
	// OnClosed fires when the underlying connection has gone away.
	OnClosed func()
}

func (c *Callbacks) EnsureDefaults() {
	if c.OnOpen == nil {
		c.OnOpen = func() {}
	}
	if c.OnAudioData == nil {
		c.OnAudioData = func([]byte) {}
	}
	if c.OnComplete == nil {
		c.OnComplete = func() {}
	}
	if c.OnError == nil {
		c.OnError = func(string) {}
	}
	if c.OnClosed == nil {
		c.OnClosed = func() {}
	}
}
