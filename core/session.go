package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis"
	"github.com/Till-X/xiaozhi-sever-DIY/core/text"
)

type sessionState string

const (
	sessionIdle      sessionState = "idle"
	sessionStarting  sessionState = "starting"
	sessionActive    sessionState = "active"
	sessionFinishing sessionState = "finishing"
	sessionClosed    sessionState = "closed"
)

// synthesisSession owns the engine stream for one utterance at a time. The
// dispatcher goroutine drives every transition; the engine reports back
// asynchronously through the callback adapter bound at start.
//
// At most one session is live per pipeline. Starting a new one closes
// whatever came before, so an engine stream can never leak across
// utterances.
type synthesisSession struct {
	pipeline *Pipeline

	mu      sync.Mutex
	id      string
	state   sessionState
	stream  synthesis.Stream
	adapter *callbackAdapter
}

func newSynthesisSession(p *Pipeline) *synthesisSession {
	return &synthesisSession{pipeline: p, state: sessionIdle}
}

// start drives the session to ACTIVE for a new utterance. A session still
// active or finishing is closed first, then a fresh callback adapter with
// clean buffer state is bound and the engine stream opened.
func (s *synthesisSession) start(ctx context.Context, utteranceID string) error {
	ctx, span := tracer.Start(ctx, "start synthesis session")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == sessionActive || s.state == sessionFinishing {
		s.closeLocked(ctx)
	}

	if utteranceID == "" {
		utteranceID = uuid.NewString()
	}
	s.id = utteranceID
	s.state = sessionStarting
	span.SetAttributes(attribute.String("utterance.id", utteranceID))

	adapter := newCallbackAdapter(s.pipeline, s, utteranceID)
	stream, err := s.pipeline.engine.Open(ctx, adapter.callbacks())
	if err != nil {
		s.state = sessionClosed
		s.adapter = nil

		err = fmt.Errorf("%w: %w", ErrSessionStartFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.stream = stream
	s.adapter = adapter
	s.state = sessionActive
	return nil
}

// sendText normalizes one sentence and streams it into the engine. Outside
// an active session, or while the connection is interrupted, the sentence
// is dropped with a log line instead of failing the whole utterance. The
// first return reports whether anything was actually sent.
func (s *synthesisSession) sendText(ctx context.Context, raw string) (bool, error) {
	s.mu.Lock()
	state, stream, adapter := s.state, s.stream, s.adapter
	s.mu.Unlock()

	if state != sessionActive {
		log.Printf("Dropping text outside an active session (state %s)", state)
		return false, nil
	}
	if s.pipeline.interrupt.Triggered() {
		return false, nil
	}

	sentence, err := text.Normalize(raw)
	if err != nil {
		if errors.Is(err, text.ErrEmptyText) {
			return false, nil
		}
		return false, err
	}

	if err := stream.SendText(ctx, sentence); err != nil {
		return false, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	adapter.noteSentence(sentence)
	return true, nil
}

// finish signals end of input. The engine keeps producing audio for text
// already sent and fires the completion callback when drained; resources
// are released there, or by close as a fallback.
func (s *synthesisSession) finish(ctx context.Context) error {
	s.mu.Lock()
	if s.state != sessionActive {
		s.mu.Unlock()
		return nil
	}
	s.state = sessionFinishing
	stream := s.stream
	s.mu.Unlock()

	// Finish runs outside the lock: engines are allowed to deliver their
	// remaining audio and the completion callback from within this call.
	if err := stream.Finish(ctx); err != nil {
		return fmt.Errorf("failed to signal end of input: %w", err)
	}
	return nil
}

// close releases the engine stream and detaches the callback adapter.
// Closing twice is a no-op. On the interrupt path the audio queue is
// drained first and the engine call is bounded, so a hung engine cannot
// stall connection teardown.
func (s *synthesisSession) close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(ctx)
}

func (s *synthesisSession) closeLocked(ctx context.Context) {
	if s.state == sessionClosed || s.state == sessionIdle {
		s.state = sessionClosed
		return
	}

	interrupted := s.pipeline.interrupt.Triggered()
	if interrupted {
		if dropped := s.pipeline.audioQueue.drain(); len(dropped) > 0 {
			log.Printf("Dropped %d queued audio chunks on interrupted close", len(dropped))
		}
	}

	if s.adapter != nil {
		if interrupted {
			s.adapter.buffer.discard()
		} else {
			s.adapter.buffer.stopTimer()
		}
	}

	if stream := s.stream; stream != nil {
		closeStream := func() error { return stream.Close(ctx) }
		var err error
		if interrupted {
			err = callBounded(s.pipeline.cfg.closeTimeout, closeStream)
		} else {
			err = closeStream()
		}
		if err != nil {
			log.Printf("Failed to close synthesis stream: %v", err)
		}
	}

	s.stream = nil
	s.adapter = nil
	s.state = sessionClosed
}

func (s *synthesisSession) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *synthesisSession) currentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// boundaryFlush surfaces the audio of completed sentences before the next
// one is sent.
func (s *synthesisSession) boundaryFlush() {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()

	if adapter == nil {
		return
	}
	adapter.flushSentenceBoundary()
}

// markFinishPending tells the adapter to tear the session down once the
// engine reports completion.
func (s *synthesisSession) markFinishPending() {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()

	if adapter == nil {
		return
	}
	adapter.markFinishOnComplete()
}
