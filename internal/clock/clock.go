package clock

import (
	"sync"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

// Now returns the current time using the system clock.
func (Real) Now() time.Time {
	return time.Now()
}

// Func adapts a plain function into a Clock.
type Func func() time.Time

// Now implements Clock.
func (f Func) Now() time.Time { return f() }

// Subscription is a handle on a periodic callback.
type Subscription interface {
	// Cancel stops future invocations. It is safe to call more than once.
	Cancel()
}

// Scheduler raises periodic callbacks.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Subscription
}

// TickerScheduler runs each subscription on its own time.Ticker goroutine.
type TickerScheduler struct{}

// Every starts invoking fn once per interval until the subscription is cancelled.
func (TickerScheduler) Every(interval time.Duration, fn func()) Subscription {
	if interval <= 0 {
		interval = time.Second
	}
	sub := &tickerSubscription{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer close(sub.done)
		defer ticker.Stop()
		for {
			select {
			case <-sub.stop:
				return
			case <-ticker.C:
				//1.- Re-check cancellation so a tick racing with Cancel is not delivered.
				select {
				case <-sub.stop:
					return
				default:
				}
				if fn != nil {
					fn()
				}
			}
		}
	}()
	return sub
}

type tickerSubscription struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

// Cancel stops the ticker goroutine and waits for it to exit, so no callback
// runs after Cancel returns. It must not be called from inside the callback.
func (s *tickerSubscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.stop) })
	<-s.done
}
