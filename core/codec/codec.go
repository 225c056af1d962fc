// Package codec turns raw linear PCM into transport frames.
//
// Encoders are stateful: input that does not fill a whole frame is carried
// over to the next call, and flushed (padded with silence) when the caller
// signals end of stream. Zero returned frames is a valid outcome, not an
// error.
package codec

// Encoder converts 16-bit signed little-endian mono PCM into a sequence of
// opaque encoded frames.
//
// Implementations must tolerate an odd input length by dropping the
// trailing byte rather than failing. Encode is not safe for concurrent use;
// callers are expected to drive one encoder from one goroutine.
type Encoder interface {
	// Encode consumes pcm and returns zero or more complete frames. With
	// endOfStream set it also flushes any carried partial frame.
	Encode(pcm []byte, endOfStream bool) ([][]byte, error)
	// Reset discards any carried partial frame without emitting it.
	Reset()
}
