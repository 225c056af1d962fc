package delivery

import "errors"

// Failure classes of the pipeline. All are caught and logged at the
// boundary where they occur; none crash the dispatcher or sequencer loops.
var (
	// ErrConfig marks invalid construction input. Surfaced once, no retry.
	ErrConfig = errors.New("invalid pipeline configuration")
	// ErrSessionStartFailed marks an engine-open failure. The current
	// utterance is skipped; the next first message may retry.
	ErrSessionStartFailed = errors.New("synthesis session start failed")
	// ErrSendFailed marks a text-to-engine failure. The rest of the
	// utterance's text is dropped; already-buffered audio still plays.
	ErrSendFailed = errors.New("sending text to synthesis engine failed")
	// ErrEncodeFailed marks a codec failure. The affected batch is dropped
	// and the pipeline continues.
	ErrEncodeFailed = errors.New("encoding audio batch failed")
	// ErrEngineReported marks an asynchronous engine-side error. Terminal
	// for the current utterance, never retried automatically.
	ErrEngineReported = errors.New("synthesis engine reported an error")
)
