package poller

import (
	"sync"
	"time"
)

// Handle cancels a scheduled task. Cancel is idempotent and safe to call from
// any goroutine, including the task itself.
type Handle interface {
	Cancel()
}

// Scheduler abstracts timer scheduling so the poller state machine can be
// driven deterministically in tests.
type Scheduler interface {
	// Every runs fn repeatedly at the given interval until cancelled
	Every(d time.Duration, fn func()) Handle

	// After runs fn once after the given delay unless cancelled
	After(d time.Duration, fn func()) Handle
}

// TickerScheduler is the real-time Scheduler backed by the runtime's timers.
type TickerScheduler struct{}

var _ Scheduler = TickerScheduler{}

func (TickerScheduler) Every(d time.Duration, fn func()) Handle {
	ticker := time.NewTicker(d)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
	return &cancelOnce{cancel: func() { close(stop) }}
}

func (TickerScheduler) After(d time.Duration, fn func()) Handle {
	timer := time.AfterFunc(d, fn)
	return &cancelOnce{cancel: func() { timer.Stop() }}
}

type cancelOnce struct {
	once   sync.Once
	cancel func()
}

func (c *cancelOnce) Cancel() {
	c.once.Do(c.cancel)
}
