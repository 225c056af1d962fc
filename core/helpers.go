package delivery

import (
	"context"
	"fmt"
	"time"
)

func withContextCancelHook(ctx context.Context, onContextDone func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
	return done
}

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// callBounded runs f and waits at most timeout for it to return. On timeout
// the call keeps running in its goroutine and its eventual result is
// discarded; the caller moves on. Used on the interrupt path so a hung
// engine call cannot stall connection teardown.
func callBounded(timeout time.Duration, f func() error) error {
	result := make(chan error, 1)
	go func() {
		result <- f()
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("call did not return within %v", timeout)
	}
}
