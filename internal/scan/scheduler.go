package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lockin.scan/internal/timeutil"
)

// CancelFunc cancels a scheduled delay. Calling it more than once is safe.
type CancelFunc func()

// Scheduler arms single-shot delays. Callbacks must run one at a time on the
// goroutine that owns the engine.
type Scheduler interface {
	ScheduleOnce(d time.Duration, fn func()) CancelFunc
}

// Loop serialises all engine and controller work onto one goroutine.
type Loop struct {
	work chan func()
	done chan struct{}
	once sync.Once
}

// NewLoop creates a loop with the given queue depth.
func NewLoop(depth int) *Loop {
	if depth <= 0 {
		depth = 64
	}
	return &Loop{
		work: make(chan func(), depth),
		done: make(chan struct{}),
	}
}

// Run executes posted functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.work:
			fn()
		}
	}
}

// Post queues fn. It returns false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.work <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it. It must not be called from the
// loop goroutine itself.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Done is closed once Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// ClockScheduler arms delays on a timeutil.Clock and delivers expiries
// through a Loop.
type ClockScheduler struct {
	clock timeutil.Clock
	loop  *Loop
}

// NewClockScheduler creates a scheduler. A nil clock uses the real clock.
func NewClockScheduler(clock timeutil.Clock, loop *Loop) *ClockScheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ClockScheduler{clock: clock, loop: loop}
}

// ScheduleOnce arms fn to run on the loop after d. Once the returned cancel
// has been called fn never runs, even if the timer already fired and the
// callback is waiting in the loop queue.
func (s *ClockScheduler) ScheduleOnce(d time.Duration, fn func()) CancelFunc {
	timer := s.clock.NewTimer(d)
	var cancelled atomic.Bool
	stop := make(chan struct{})

	go func() {
		select {
		case <-timer.C():
			s.loop.Post(func() {
				if cancelled.Load() {
					return
				}
				fn()
			})
		case <-stop:
		case <-s.loop.Done():
			timer.Stop()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancelled.Store(true)
			timer.Stop()
			close(stop)
		})
	}
}
