package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis"
)

// Pipeline moves one connection's speech from text to transport: a
// dispatcher worker feeds sentences into the synthesis engine, the engine's
// callbacks shape the returned audio through the adaptive buffer, and a
// sequencer worker delivers the resulting chunks strictly in order.
//
// Producers enqueue text messages from any goroutine. Everything else is
// internal: one dispatcher, one sequencer, and the engine's own callback
// goroutine, meeting only at the two queues and the interrupt token.
type Pipeline struct {
	cfg       pipelineConfig
	callbacks PipelineCallbacks

	engine    synthesis.Engine
	interrupt *Interrupt

	textQueue  *messageQueue[TextMessage]
	audioQueue *messageQueue[AudioChunk]

	session *synthesisSession

	// sentencesSent is touched only by the dispatcher worker.
	sentencesSent int

	pendingMu    sync.Mutex
	pendingFiles []pendingFile

	closed atomic.Bool
}

// pendingFile is a decoded audio file waiting to be played after the
// current utterance's synthesized speech.
type pendingFile struct {
	frames [][]byte
	text   string
}

func NewPipeline(engine synthesis.Engine, opts ...PipelineOption) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: synthesis engine is required", ErrConfig)
	}

	p := &Pipeline{
		cfg:        defaultPipelineConfig(),
		callbacks:  *new(PipelineCallbacks).defaults(),
		engine:     engine,
		interrupt:  NewInterrupt(),
		textQueue:  newMessageQueue[TextMessage](),
		audioQueue: newMessageQueue[AudioChunk](),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.cfg.fastPathBatches < 1 {
		return nil, fmt.Errorf("%w: fast path batches must be at least 1", ErrConfig)
	}
	if p.cfg.trickleInterval <= 0 {
		return nil, fmt.Errorf("%w: trickle interval must be positive", ErrConfig)
	}
	if p.cfg.queuePollTimeout <= 0 {
		return nil, fmt.Errorf("%w: queue poll timeout must be positive", ErrConfig)
	}
	if p.cfg.closeTimeout <= 0 {
		return nil, fmt.Errorf("%w: close timeout must be positive", ErrConfig)
	}

	p.session = newSynthesisSession(p)
	return p, nil
}

// Run drives the pipeline's workers until the context is cancelled or
// Close is called. It returns the joined errors of any worker that failed;
// a clean shutdown returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("%w: pipeline is nil", ErrConfig)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := withContextCancelHook(ctx, func() { p.Close() })
	defer close(done)

	var workerErr error
	workerErrMu := sync.Mutex{}
	addWorkerErr := func(err error) {
		if err == nil {
			return
		}
		workerErrMu.Lock()
		workerErr = errors.Join(workerErr, err)
		workerErrMu.Unlock()
	}

	run := func(name string, f func(context.Context) error) {
		if err := panicSafeNamedWorker(name, f)(ctx); err != nil {
			addWorkerErr(err)
			cancel()
		}
	}

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		run("text dispatch", p.dispatchText)
	}()
	go func() {
		defer wg.Done()
		run("audio sequencing", p.sequenceAudio)
	}()

	wg.Wait()

	finaliseErr := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("pipeline finalise panicked: %v", recovered)
			}
		}()

		p.session.close(context.Background())
		return nil
	}()
	addWorkerErr(finaliseErr)

	return workerErr
}

// Close stops the workers and releases the current session. Closing twice,
// or closing concurrently with Run finishing, is safe and does nothing the
// second time.
func (p *Pipeline) Close() {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return
	}

	// Wake both workers so they notice the stop without waiting out a full
	// poll timeout.
	p.textQueue.signalUpdate()
	p.audioQueue.signalUpdate()
}

func (p *Pipeline) isClosed() bool {
	return p == nil || p.closed.Load()
}

// Enqueue adds one message to the ordered text stream. Safe from any
// goroutine; ordering is preserved per producer.
func (p *Pipeline) Enqueue(msg TextMessage) {
	if p == nil || p.closed.Load() {
		return
	}
	p.textQueue.push(msg)
}

// Speak enqueues one complete utterance: an opening marker, one text
// message per sentence, and the closing marker. It returns the utterance
// id assigned to the messages.
func (p *Pipeline) Speak(sentences ...string) string {
	id := uuid.NewString()
	p.Enqueue(TextMessage{UtteranceID: id, Sentence: SentenceFirst, Content: ContentAction})
	for _, sentence := range sentences {
		p.Enqueue(TextMessage{UtteranceID: id, Sentence: SentenceMiddle, Content: ContentText, Text: sentence})
	}
	p.Enqueue(TextMessage{UtteranceID: id, Sentence: SentenceLast, Content: ContentAction})
	return id
}

// Interrupt exposes the connection's cancellation token, for wiring into a
// barge-in detector.
func (p *Pipeline) Interrupt() *Interrupt {
	if p == nil {
		return nil
	}
	return p.interrupt
}

func (p *Pipeline) enqueueChunk(chunk AudioChunk) {
	p.audioQueue.push(chunk)
}

func (p *Pipeline) addPendingFile(file pendingFile) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.pendingFiles = append(p.pendingFiles, file)
}

func (p *Pipeline) takePendingFiles() []pendingFile {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	files := p.pendingFiles
	p.pendingFiles = nil
	return files
}
