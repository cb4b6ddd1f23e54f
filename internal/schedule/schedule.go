// Package schedule runs periodic tasks behind an interface that tests can
// drive by hand instead of waiting on the wall clock.
package schedule

import (
	"sync"
	"time"
)

// Scheduler submits periodic tasks.
type Scheduler interface {
	// Every runs task once right away and then once per period until the
	// returned cancel func is called. Cancel is best-effort: a run that has
	// already started is allowed to finish.
	Every(period time.Duration, task func()) (cancel func())
}

// Ticker is the production Scheduler. Each submitted task gets its own
// goroutine, so runs of one task never overlap.
type Ticker struct{}

func NewTicker() *Ticker {
	return &Ticker{}
}

func (t *Ticker) Every(period time.Duration, task func()) func() {
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		task()

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case <-stop:
					return
				default:
				}
				task()
			}
		}
	}()

	return func() {
		once.Do(func() { close(stop) })
	}
}
