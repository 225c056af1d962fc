package delivery

import (
	"sync"
	"testing"
	"time"
)

type chunkCollector struct {
	mu     sync.Mutex
	chunks []AudioChunk
	times  []time.Time
}

func (c *chunkCollector) emit(chunk AudioChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
	c.times = append(c.times, time.Now())
}

func (c *chunkCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

func (c *chunkCollector) kinds() []SentenceKind {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := make([]SentenceKind, len(c.chunks))
	for i, chunk := range c.chunks {
		kinds[i] = chunk.Sentence
	}
	return kinds
}

func (c *chunkCollector) chunkAt(i int) AudioChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks[i]
}

func (c *chunkCollector) timeAt(i int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.times[i]
}

func frame(marker byte) [][]byte {
	f := make([]byte, 4)
	for i := range f {
		f[i] = marker
	}
	return [][]byte{f}
}

func TestAdaptiveBufferFastPathEmitsImmediately(t *testing.T) {
	collector := &chunkCollector{}
	b := newAdaptiveBuffer(3, time.Minute, NewInterrupt(), collector.emit)

	b.add(frame(1))
	b.add(frame(2))
	b.add(frame(3))
	b.add(frame(4))
	b.add(frame(5))

	kinds := collector.kinds()
	if len(kinds) != 3 {
		t.Fatalf("expected 3 immediate chunks, got %d", len(kinds))
	}
	if kinds[0] != SentenceFirst || kinds[1] != SentenceMiddle || kinds[2] != SentenceMiddle {
		t.Fatalf("expected first then middles, got %v", kinds)
	}

	b.mu.Lock()
	cached := len(b.cache)
	b.mu.Unlock()
	if cached != 2 {
		t.Fatalf("expected 2 overflow frames cached, got %d", cached)
	}
}

func TestAdaptiveBufferIgnoresEmptyBatches(t *testing.T) {
	collector := &chunkCollector{}
	b := newAdaptiveBuffer(2, time.Minute, NewInterrupt(), collector.emit)

	b.add(nil)
	b.add([][]byte{})
	b.add(frame(1))

	if collector.count() != 1 {
		t.Fatalf("expected empty batches to be ignored, got %d chunks", collector.count())
	}
	if got := collector.chunkAt(0).Sentence; got != SentenceFirst {
		t.Fatalf("expected the first real batch to open the utterance, got %s", got)
	}
}

func TestAdaptiveBufferHoldsBackAfterFinish(t *testing.T) {
	collector := &chunkCollector{}
	b := newAdaptiveBuffer(6, time.Minute, NewInterrupt(), collector.emit)

	b.markFinish()
	b.add(frame(1))
	b.add(frame(2))
	b.add(frame(3))

	if got := collector.kinds(); len(got) != 1 || got[0] != SentenceFirst {
		t.Fatalf("expected only the opening chunk before the final flush, got %v", got)
	}

	b.flush(true, "done")

	kinds := collector.kinds()
	if len(kinds) != 2 || kinds[1] != SentenceLast {
		t.Fatalf("expected a terminal last chunk, got %v", kinds)
	}
	last := collector.chunkAt(1)
	if len(last.Frames) != 2 {
		t.Fatalf("expected held-back frames in the last chunk, got %d", len(last.Frames))
	}
	if last.Text != "done" {
		t.Fatalf("expected last chunk annotated with sentence, got %q", last.Text)
	}
}

func TestAdaptiveBufferFinalFlushAlwaysEmitsLast(t *testing.T) {
	collector := &chunkCollector{}
	b := newAdaptiveBuffer(6, time.Minute, NewInterrupt(), collector.emit)

	b.flush(true, "")

	kinds := collector.kinds()
	if len(kinds) != 1 || kinds[0] != SentenceLast {
		t.Fatalf("expected a bare last chunk on an empty final flush, got %v", kinds)
	}
	if frames := collector.chunkAt(0).Frames; len(frames) != 0 {
		t.Fatalf("expected no frames in a bare last chunk, got %d", len(frames))
	}
}

func TestAdaptiveBufferOverflowFlushKeepsFirstTag(t *testing.T) {
	collector := &chunkCollector{}
	b := newAdaptiveBuffer(2, time.Minute, NewInterrupt(), collector.emit)

	b.add(frame(1))
	b.add(frame(2))
	b.add(frame(3))
	b.add(frame(4))
	b.flush(false, "overflow")

	kinds := collector.kinds()
	if len(kinds) != 3 {
		t.Fatalf("expected 3 chunks, got %v", kinds)
	}
	if kinds[2] != SentenceFirst {
		t.Fatalf("expected the overflow flush of the first sentence to stay first-tagged, got %s", kinds[2])
	}
	if got := collector.chunkAt(2).Frames; len(got) != 2 {
		t.Fatalf("expected 2 overflow frames, got %d", len(got))
	}
}

func TestAdaptiveBufferBoundaryFlushEndsFastPath(t *testing.T) {
	collector := &chunkCollector{}
	b := newAdaptiveBuffer(6, 20*time.Millisecond, NewInterrupt(), collector.emit)

	b.add(frame(1))
	b.flush(false, "")

	// Everything after the boundary is cached and trickled, never emitted
	// on the fast path.
	b.add(frame(2))

	if collector.count() != 1 {
		t.Fatalf("expected no immediate emission after the boundary, got %d chunks", collector.count())
	}

	waitForCondition(t, time.Second, "trickled frame", func() bool {
		return collector.count() == 2
	})
	chunk := collector.chunkAt(1)
	if chunk.Sentence != SentenceMiddle || len(chunk.Frames) != 1 {
		t.Fatalf("expected a single trickled middle frame, got %s with %d frames", chunk.Sentence, len(chunk.Frames))
	}
}

func TestAdaptiveBufferTricklePacing(t *testing.T) {
	collector := &chunkCollector{}
	interval := 20 * time.Millisecond
	b := newAdaptiveBuffer(6, interval, NewInterrupt(), collector.emit)

	// Leave the first sentence behind so arrivals go through the cache.
	b.flush(false, "")

	b.add(frame(1))
	b.add(frame(2))
	b.add(frame(3))

	waitForCondition(t, 2*time.Second, "all frames trickled", func() bool {
		return collector.count() == 3
	})

	elapsed := collector.timeAt(2).Sub(collector.timeAt(0))
	if minimum := 2*interval - interval/2; elapsed < minimum {
		t.Fatalf("expected trickle to take at least %v, took %v", minimum, elapsed)
	}
	for i := 0; i < 3; i++ {
		if chunk := collector.chunkAt(i); len(chunk.Frames) != 1 {
			t.Fatalf("expected trickled chunk %d to carry one frame, got %d", i, len(chunk.Frames))
		}
	}
}

func TestAdaptiveBufferInterruptedFlushDiscards(t *testing.T) {
	collector := &chunkCollector{}
	interrupt := NewInterrupt()
	b := newAdaptiveBuffer(6, time.Minute, interrupt, collector.emit)

	b.flush(false, "")
	b.add(frame(1))
	b.add(frame(2))

	interrupt.Trigger()
	b.flush(true, "")

	if collector.count() != 0 {
		t.Fatalf("expected nothing emitted on an interrupted flush, got %d chunks", collector.count())
	}
	b.mu.Lock()
	cached := len(b.cache)
	b.mu.Unlock()
	if cached != 0 {
		t.Fatalf("expected the cache cleared on an interrupted flush, got %d frames", cached)
	}
}

func TestAdaptiveBufferDiscardStopsTimer(t *testing.T) {
	collector := &chunkCollector{}
	b := newAdaptiveBuffer(6, 10*time.Millisecond, NewInterrupt(), collector.emit)

	b.flush(false, "")
	b.add(frame(1))
	b.discard()

	time.Sleep(50 * time.Millisecond)
	if collector.count() != 0 {
		t.Fatalf("expected no emission after discard, got %d chunks", collector.count())
	}
}
