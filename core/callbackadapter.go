package delivery

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/Till-X/xiaozhi-sever-DIY/core/codec"
	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis"
)

// callbackAdapter receives one session's asynchronous engine events,
// converts raw PCM into transport frames, and feeds the adaptive buffer.
// It holds non-owning references to the pipeline and session, for queue
// access and interrupt checks only; its own lifetime is one session.
type callbackAdapter struct {
	pipeline    *Pipeline
	session     *synthesisSession
	utteranceID string

	encoder codec.Encoder
	buffer  *adaptiveBuffer

	mu               sync.Mutex
	lastSentence     string
	finishOnComplete bool
}

func newCallbackAdapter(p *Pipeline, s *synthesisSession, utteranceID string) *callbackAdapter {
	a := &callbackAdapter{
		pipeline:    p,
		session:     s,
		utteranceID: utteranceID,
		encoder:     p.cfg.newEncoder(),
	}
	a.buffer = newAdaptiveBuffer(p.cfg.fastPathBatches, p.cfg.trickleInterval, p.interrupt, p.enqueueChunk)
	return a
}

func (a *callbackAdapter) callbacks() synthesis.Callbacks {
	return synthesis.Callbacks{
		OnOpen:      a.onOpen,
		OnAudioData: a.onAudioData,
		OnComplete:  a.onComplete,
		OnError:     a.onError,
		OnClosed:    a.onClosed,
	}
}

func (a *callbackAdapter) onOpen() {
	logger.Info("synthesis stream open", "utterance", a.utteranceID)
}

// onAudioData encodes one engine batch and hands it to the buffer. An
// interrupted connection discards audio outright; an encoder failure drops
// the batch and keeps the stream alive.
func (a *callbackAdapter) onAudioData(pcm []byte) {
	if a.pipeline.interrupt.Triggered() {
		return
	}

	frames, err := a.encoder.Encode(pcm, false)
	if err != nil {
		log.Printf("Dropping audio batch: %v", fmt.Errorf("%w: %w", ErrEncodeFailed, err))
		return
	}
	a.buffer.add(frames)
}

// onComplete flushes whatever the utterance still owes: the encoder's
// carried tail, the buffer cache, and any queued audio files. The terminal
// chunk of the utterance is always last-tagged, even when empty, so the
// receiver can finish playback cleanly.
func (a *callbackAdapter) onComplete() {
	if a.pipeline.interrupt.Triggered() {
		return
	}

	tail, err := a.encoder.Encode(nil, true)
	if err != nil {
		log.Printf("Dropping encoder tail: %v", fmt.Errorf("%w: %w", ErrEncodeFailed, err))
	} else {
		a.buffer.appendTail(tail)
	}

	sentence := a.currentSentence()
	pending := a.pipeline.takePendingFiles()
	if len(pending) == 0 {
		a.buffer.flush(true, sentence)
	} else {
		a.buffer.flush(false, sentence)
		for _, f := range pending {
			a.pipeline.enqueueChunk(AudioChunk{Sentence: SentenceMiddle, Frames: f.frames, Text: f.text})
		}
		a.buffer.flush(true, "")
	}

	if a.takeFinishOnComplete() {
		a.session.close(context.Background())
	}
}

func (a *callbackAdapter) onError(message string) {
	if a.pipeline.interrupt.Triggered() {
		return
	}
	log.Printf("Utterance %s failed: %v", a.utteranceID, fmt.Errorf("%w: %s", ErrEngineReported, message))
}

func (a *callbackAdapter) onClosed() {
	a.buffer.stopTimer()
	logger.Info("synthesis stream closed", "utterance", a.utteranceID)
}

// flushSentenceBoundary is the dispatcher's hook: called between sentences
// so completed speech surfaces promptly instead of waiting for the trickle
// timer.
func (a *callbackAdapter) flushSentenceBoundary() {
	a.buffer.flush(false, a.currentSentence())
}

func (a *callbackAdapter) noteSentence(sentence string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSentence = sentence
}

func (a *callbackAdapter) currentSentence() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSentence
}

func (a *callbackAdapter) markFinishOnComplete() {
	a.mu.Lock()
	a.finishOnComplete = true
	a.mu.Unlock()

	a.buffer.markFinish()
}

func (a *callbackAdapter) takeFinishOnComplete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	pending := a.finishOnComplete
	a.finishOnComplete = false
	return pending
}
