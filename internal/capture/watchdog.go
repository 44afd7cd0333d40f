package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/SplitScreen/internal/frame"
)

// watchdog bounds a possibly hanging call. A call that outlives the timeout
// is abandoned, not cancelled; until it returns, further calls fail fast so
// hung calls never pile up. Each call is tagged with the selection
// generation it runs for, so a fast failure can tell whose call is hung.
type watchdog struct {
	timeout time.Duration

	mu    sync.Mutex
	busy  bool
	owner uint64
}

type result struct {
	f   *frame.Frame
	err error
}

func (w *watchdog) run(ctx context.Context, gen uint64, fn func() (*frame.Frame, error)) (*frame.Frame, error) {
	if w.timeout <= 0 {
		return fn()
	}
	if err := w.acquire(gen); err != nil {
		return nil, err
	}

	done := make(chan result, 1)
	go func() {
		defer w.release()
		f, err := fn()
		done <- result{f, err}
	}()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.f, r.err
	case <-timer.C:
		return nil, fmt.Errorf("%w: after %s", ErrCaptureTimeout, w.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *watchdog) acquire(gen uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.busy {
		w.busy, w.owner = true, gen
		return nil
	}
	if w.owner != gen {
		return fmt.Errorf("%w: generation %d", ErrSupersededCapture, w.owner)
	}
	return fmt.Errorf("%w: previous call still running", ErrCaptureTimeout)
}

func (w *watchdog) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
}

// hung reports whether an abandoned call is still running
func (w *watchdog) hung() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}
