package delivery

import "sync/atomic"

// Interrupt is the cooperative cancellation token for one connection. An
// external barge-in detector triggers it; every pipeline loop and callback
// polls it before each side-effecting step. The pipeline itself clears it
// only when a new utterance's first message is accepted.
//
// Triggering is never preemptive: an in-flight engine call is allowed to
// finish or error, and its result is discarded afterwards.
type Interrupt struct {
	triggered atomic.Bool
}

func NewInterrupt() *Interrupt {
	return &Interrupt{}
}

func (i *Interrupt) Trigger() {
	i.triggered.Store(true)
}

func (i *Interrupt) Clear() {
	i.triggered.Store(false)
}

func (i *Interrupt) Triggered() bool {
	if i == nil {
		return false
	}
	return i.triggered.Load()
}
