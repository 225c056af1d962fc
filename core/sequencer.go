package delivery

import (
	"context"
	"log"
)

// sequenceAudio is the pipeline's delivery worker. Chunks leave in exactly
// the order they were enqueued; a failed send drops that one chunk and
// moves on. When the connection is interrupted everything still queued is
// dropped unsent.
func (p *Pipeline) sequenceAudio(ctx context.Context) error {
	for !p.isClosed() {
		chunk, ok := p.audioQueue.pop(p.cfg.queuePollTimeout)
		if !ok {
			continue
		}

		if p.interrupt.Triggered() {
			dropped := p.audioQueue.drain()
			log.Printf("Interrupted: dropped %d queued audio chunks", len(dropped)+1)
			continue
		}

		if err := p.callbacks.SendAudio(ctx, chunk); err != nil {
			log.Printf("Failed to send audio chunk: %v", err)
			continue
		}

		if chunk.Text != "" {
			p.callbacks.ReportUsage(len([]rune(chunk.Text)))
		}
		p.callbacks.ReportChunk(chunk)
	}
	return nil
}
