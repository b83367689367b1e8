package bluetooth

import (
	"sort"
	"sync"
	"time"
)

// Ticker is the time source of the host: advertising durations, scan
// durations and private address rotation are all armed on it.
type Ticker interface {
	// AfterFunc calls f once d has elapsed. f may run on any goroutine.
	AfterFunc(d time.Duration, f func()) Timer

	Now() time.Time
}

// Timer is a timer armed on a Ticker.
type Timer interface {
	// Stop prevents the timer from firing. It returns false when the timer
	// already fired or was stopped.
	Stop() bool
}

// SystemTicker uses the runtime timers.
type SystemTicker struct{}

func (SystemTicker) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (SystemTicker) Now() time.Time {
	return time.Now()
}

// ManualTicker is a Ticker whose time only moves on Advance. It is meant for
// tests and simulations.
type ManualTicker struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	ticker   *ManualTicker
	deadline time.Time
	seq      uint64
	f        func()
}

// NewManualTicker returns a ticker starting at start.
func NewManualTicker(start time.Time) *ManualTicker {
	return &ManualTicker{now: start}
}

func (t *ManualTicker) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

func (t *ManualTicker) AfterFunc(d time.Duration, f func()) Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	timer := &manualTimer{ticker: t, deadline: t.now.Add(d), seq: t.seq, f: f}
	t.timers = append(t.timers, timer)
	return timer
}

// Pending returns the number of armed timers.
func (t *ManualTicker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Advance moves the clock forward by d and runs the functions of the timers
// that expired, in deadline order, on the calling goroutine. Timers armed by
// these functions fire within the same call when their deadline is reached.
func (t *ManualTicker) Advance(d time.Duration) {
	t.mu.Lock()
	end := t.now.Add(d)
	t.mu.Unlock()

	for {
		t.mu.Lock()
		sort.Slice(t.timers, func(i, j int) bool {
			a, b := t.timers[i], t.timers[j]
			if a.deadline.Equal(b.deadline) {
				return a.seq < b.seq
			}
			return a.deadline.Before(b.deadline)
		})
		if len(t.timers) == 0 || t.timers[0].deadline.After(end) {
			t.now = end
			t.mu.Unlock()
			return
		}
		next := t.timers[0]
		t.timers = t.timers[1:]
		t.now = next.deadline
		t.mu.Unlock()

		next.f()
	}
}

func (timer *manualTimer) Stop() bool {
	t := timer.ticker
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, other := range t.timers {
		if other == timer {
			t.timers = append(t.timers[:i], t.timers[i+1:]...)
			return true
		}
	}
	return false
}
