package delivery

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
)

// dispatchText is the pipeline's text worker. It consumes the ordered text
// stream, drives the session state machine, and survives every per-message
// failure: a bad utterance is skipped, never escalated into a dead loop.
//
// The one deliberate exit is interrupt teardown. After draining and closing
// everything the inner loop returns, and the worker starts a fresh round so
// the connection stays usable for the next utterance.
func (p *Pipeline) dispatchText(ctx context.Context) error {
	for !p.isClosed() {
		p.dispatchUtterances(ctx)
	}
	return nil
}

func (p *Pipeline) dispatchUtterances(ctx context.Context) {
	for !p.isClosed() {
		msg, ok := p.textQueue.pop(p.cfg.queuePollTimeout)
		if !ok {
			continue
		}

		// A new utterance overrides any earlier barge-in; the interrupt is
		// cleared before it is checked so a first message always gets
		// through.
		if msg.Sentence == SentenceFirst {
			p.interrupt.Clear()
		}
		if p.interrupt.Triggered() {
			p.teardownInterrupted(ctx)
			return
		}

		switch {
		case msg.Sentence == SentenceFirst:
			p.sentencesSent = 0
			p.takePendingFiles()
			if err := p.session.start(ctx, msg.UtteranceID); err != nil {
				log.Printf("Failed to start synthesis session: %v", err)
			}

		case msg.Content == ContentText:
			if msg.Text == "" {
				break
			}
			if p.sentencesSent > 0 {
				p.session.boundaryFlush()
			}
			sent, err := p.session.sendText(ctx, msg.Text)
			if err != nil {
				log.Printf("Failed to send text to synthesis engine: %v", err)
			}
			if sent {
				p.sentencesSent++
			}

		case msg.Content == ContentFile:
			if msg.FilePath == "" {
				break
			}
			if err := p.queueAudioFile(msg.FilePath, msg.Text); err != nil {
				log.Printf("Failed to queue audio file %q: %v", msg.FilePath, err)
			}
		}

		if msg.Sentence == SentenceLast {
			p.session.markFinishPending()
			if err := p.session.finish(ctx); err != nil {
				log.Printf("Failed to finish synthesis session: %v", err)
			}
		}
	}
}

// teardownInterrupted is the barge-in path: everything queued for the
// interrupted conversation is dropped, and the session is closed with a
// bounded wait so a hung engine cannot stall the connection.
func (p *Pipeline) teardownInterrupted(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "interrupted conversation teardown")
	defer span.End()

	dropped := p.textQueue.drain()
	p.takePendingFiles()
	p.session.close(ctx)

	span.SetAttributes(attribute.Int("text_messages.dropped", len(dropped)))
	log.Printf("Interrupted: dropped %d queued text messages", len(dropped))
}

// queueAudioFile decodes a file-content message and parks its frames until
// the utterance's synthesized speech has finished.
func (p *Pipeline) queueAudioFile(path, text string) error {
	pcm, err := p.cfg.decodeFile(path)
	if err != nil {
		return err
	}

	encoder := p.cfg.newEncoder()
	frames, err := encoder.Encode(pcm, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}

	p.addPendingFile(pendingFile{frames: frames, text: text})
	return nil
}
