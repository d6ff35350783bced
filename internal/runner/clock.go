package runner

import (
	"context"
	"sync"
	"time"
)

// Clock provides the time operations the runner depends on so runs can be
// driven by a simulated clock in tests.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
}

// RealClock uses the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FakeClock is a manually advanced clock. Channels returned by After fire
// when Advance moves the clock to or past their deadline.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []fakeWaiter
	changed chan struct{}
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start, changed: make(chan struct{})}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FakeClock) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.current
		return ch
	}
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.current.Add(d), ch: ch})
	f.notify()
	return ch
}

// Advance moves the clock forward and fires every expired waiter.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current = f.current.Add(d)
	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.deadline.After(f.current) {
			w.ch <- f.current
			continue
		}
		pending = append(pending, w)
	}
	f.waiters = pending
	f.notify()
}

// Waiters reports how many After channels have not fired yet.
func (f *FakeClock) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// BlockUntil waits until at least n After channels are pending or ctx ends.
func (f *FakeClock) BlockUntil(ctx context.Context, n int) error {
	for {
		f.mu.Lock()
		if len(f.waiters) >= n {
			f.mu.Unlock()
			return nil
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// notify must be called with mu held.
func (f *FakeClock) notify() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// DurationController tracks elapsed run time against a fixed duration.
type DurationController struct {
	clock    Clock
	duration time.Duration

	mu    sync.Mutex
	start time.Time
}

func NewDurationController(clock Clock, duration time.Duration) *DurationController {
	if clock == nil {
		clock = RealClock{}
	}
	return &DurationController{clock: clock, duration: duration}
}

// Start records the run's start time.
func (d *DurationController) Start() {
	d.mu.Lock()
	d.start = d.clock.Now()
	d.mu.Unlock()
}

// Elapsed returns time since Start, or zero if Start was never called.
func (d *DurationController) Elapsed() time.Duration {
	d.mu.Lock()
	start := d.start
	d.mu.Unlock()
	if start.IsZero() {
		return 0
	}
	return d.clock.Since(start)
}

// Remaining returns the time left before ShouldStop reports true.
func (d *DurationController) Remaining() time.Duration {
	left := d.duration - d.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}

// ShouldStop reports whether elapsed time has reached the configured duration.
func (d *DurationController) ShouldStop() bool {
	d.mu.Lock()
	started := !d.start.IsZero()
	d.mu.Unlock()
	return started && d.Elapsed() >= d.duration
}
