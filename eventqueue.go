package bluetooth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// eventQueue is the single queue consumed by the event pump. Controller
// events are posted from any goroutine into a bounded FIFO. Deferred calls,
// such as timer expiries, are kept apart: at most one entry exists per armed
// timer, so their number is bounded as well.
type eventQueue struct {
	events chan ControllerEvent

	mu    sync.Mutex
	calls []func()
	wake  chan struct{}
}

func newEventQueue(size int) *eventQueue {
	return &eventQueue{
		events: make(chan ControllerEvent, size),
		wake:   make(chan struct{}, 1),
	}
}

// post queues a controller event. It never blocks.
func (q *eventQueue) post(ev ControllerEvent) error {
	select {
	case q.events <- ev:
		return nil
	default:
		return fmt.Errorf("event queue full, dropping %T: %w", ev, ErrResourceExhausted)
	}
}

// schedule queues fn to be called from the event pump.
func (q *eventQueue) schedule(fn func()) {
	q.mu.Lock()
	q.calls = append(q.calls, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// afterFunc arms a timer on ticker whose expiry runs fn from the event pump.
// Once Stop returned, fn is not called, even when the expiry was already
// queued.
func (q *eventQueue) afterFunc(ticker Ticker, d time.Duration, fn func()) Timer {
	t := &queuedTimer{}
	t.timer = ticker.AfterFunc(d, func() {
		q.schedule(func() {
			if !t.stopped {
				t.stopped = true
				fn()
			}
		})
	})
	return t
}

// queuedTimer is only stopped from the event pump, which also runs its
// expiry, so stopped needs no lock.
type queuedTimer struct {
	timer   Timer
	stopped bool
}

func (t *queuedTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}

// process runs queued calls and dispatches queued events until both are
// empty. It returns the number of entries handled.
func (q *eventQueue) process(dispatch func(ControllerEvent)) int {
	n := 0
	for {
		q.mu.Lock()
		calls := q.calls
		q.calls = nil
		q.mu.Unlock()

		for _, fn := range calls {
			fn()
			n++
		}

		select {
		case ev := <-q.events:
			dispatch(ev)
			n++
			continue
		default:
		}
		if len(calls) == 0 {
			return n
		}
	}
}

// run pumps events until ctx is done.
func (q *eventQueue) run(ctx context.Context, dispatch func(ControllerEvent)) error {
	for {
		q.process(dispatch)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-q.events:
			dispatch(ev)
		case <-q.wake:
		}
	}
}
