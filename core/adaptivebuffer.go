package delivery

import (
	"sync"
	"time"
)

// adaptiveBuffer is the latency/smoothness policy for one synthesis
// session. The opening of speech goes out the moment it arrives so the
// listener hears something fast; everything after is cached and trickled
// out one frame per interval, matching real-time playback pace instead of
// flooding the receiver.
//
// The engine callback, the flush timer, and the dispatcher all reach the
// cache; the mutex serializes them. The timer is stopped before any other
// context clears the cache.
type adaptiveBuffer struct {
	mu sync.Mutex

	emit func(AudioChunk)

	fastPathBatches int
	flushInterval   time.Duration

	cache           [][]byte
	isFirstSentence bool
	openingEmitted  bool
	immediateCount  int
	holdBack        bool

	timer      *time.Timer
	timerArmed bool

	interrupt *Interrupt
}

func newAdaptiveBuffer(fastPathBatches int, flushInterval time.Duration, interrupt *Interrupt, emit func(AudioChunk)) *adaptiveBuffer {
	return &adaptiveBuffer{
		emit:            emit,
		fastPathBatches: fastPathBatches,
		flushInterval:   flushInterval,
		isFirstSentence: true,
		interrupt:       interrupt,
	}
}

// add routes one arriving frame batch: immediate emission while the first
// sentence's fast path is open, the cache otherwise. Empty batches carry no
// audio and are ignored outright.
func (b *adaptiveBuffer) add(frames [][]byte) {
	if len(frames) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.isFirstSentence {
		b.cache = append(b.cache, frames...)
		b.armTimerLocked()
		return
	}

	if !b.openingEmitted {
		b.openingEmitted = true
		b.immediateCount = 1
		b.emit(AudioChunk{Sentence: SentenceFirst, Frames: frames})
		return
	}

	if b.holdBack || b.immediateCount >= b.fastPathBatches {
		b.cache = append(b.cache, frames...)
		return
	}

	b.immediateCount++
	b.emit(AudioChunk{Sentence: SentenceMiddle, Frames: frames})
}

// appendTail adds end-of-stream frames straight to the cache so the final
// flush carries them out.
func (b *adaptiveBuffer) appendTail(frames [][]byte) {
	if len(frames) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = append(b.cache, frames...)
}

// markFinish closes the fast path: once the utterance's final text has been
// dispatched, later arrivals belong to the terminal flush.
func (b *adaptiveBuffer) markFinish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdBack = true
}

// flush cancels the timer and emits the whole remaining cache as a single
// chunk. A final flush always emits, even with an empty cache, so every
// utterance terminates with a last-tagged chunk. Interrupted flushes
// discard instead of emitting.
func (b *adaptiveBuffer) flush(final bool, sentence string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimerLocked()

	if b.interrupt.Triggered() {
		b.cache = nil
		return
	}

	kind := SentenceMiddle
	switch {
	case final:
		kind = SentenceLast
	case b.isFirstSentence && b.immediateCount >= b.fastPathBatches:
		// Overflow of the first sentence's fast path.
		kind = SentenceFirst
	}

	frames := b.cache
	b.cache = nil
	b.isFirstSentence = false

	if len(frames) == 0 && !final {
		return
	}
	b.emit(AudioChunk{Sentence: kind, Frames: frames, Text: sentence})
}

// discard drops the cache without emitting, for the interrupt path.
func (b *adaptiveBuffer) discard() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimerLocked()
	b.cache = nil
}

func (b *adaptiveBuffer) stopTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
}

func (b *adaptiveBuffer) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.timerArmed = false
}

func (b *adaptiveBuffer) armTimerLocked() {
	if b.timerArmed || len(b.cache) == 0 {
		return
	}
	b.timerArmed = true
	b.timer = time.AfterFunc(b.flushInterval, b.tick)
}

// tick pops exactly one cached frame and emits it, re-arming itself while
// the cache stays non-empty.
func (b *adaptiveBuffer) tick() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.timerArmed = false
	if b.interrupt.Triggered() || b.isFirstSentence || len(b.cache) == 0 {
		return
	}

	frame := b.cache[0]
	b.cache = b.cache[1:]
	b.emit(AudioChunk{Sentence: SentenceMiddle, Frames: [][]byte{frame}})

	b.armTimerLocked()
}
