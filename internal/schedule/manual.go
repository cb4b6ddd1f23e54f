package schedule

import (
	"sync"
	"time"
)

// Manual is a Scheduler whose clock only moves when Advance is called.
// Tasks run synchronously on the goroutine that calls Every or Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []*manualTask
}

type manualTask struct {
	period    time.Duration
	next      time.Duration
	run       func()
	cancelled bool
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Every(period time.Duration, task func()) func() {
	if period <= 0 {
		period = time.Nanosecond
	}

	m.mu.Lock()
	mt := &manualTask{period: period, next: m.now + period, run: task}
	m.tasks = append(m.tasks, mt)
	m.mu.Unlock()

	task()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		mt.cancelled = true
	}
}

// Advance moves the clock forward by d, running every task that falls due
// in order of its due time.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		mt := m.nextDueLocked(target)
		if mt == nil {
			break
		}
		m.now = mt.next
		mt.next += mt.period
		m.mu.Unlock()
		mt.run()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Pending reports how many tasks are still scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mt := range m.tasks {
		if !mt.cancelled {
			n++
		}
	}
	return n
}

func (m *Manual) nextDueLocked(target time.Duration) *manualTask {
	var due *manualTask
	live := m.tasks[:0]
	for _, mt := range m.tasks {
		if mt.cancelled {
			continue
		}
		live = append(live, mt)
		if mt.next <= target && (due == nil || mt.next < due.next) {
			due = mt
		}
	}
	m.tasks = live
	return due
}
