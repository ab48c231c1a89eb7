package app

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so timer-driven behavior can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer runs at most one pending task per key. Scheduling a key again cancels the
// earlier task and restarts the delay.
type Debouncer struct {
	clock Clock
	delay time.Duration

	mu      sync.Mutex
	seq     uint64
	pending map[string]*scheduledTask
}

type scheduledTask struct {
	token uint64
	timer Timer
}

func NewDebouncer(clock Clock, delay time.Duration) *Debouncer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Debouncer{
		clock:   clock,
		delay:   delay,
		pending: make(map[string]*scheduledTask),
	}
}

// Schedule replaces any pending task for key with fn.
func (d *Debouncer) Schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	d.seq++
	token := d.seq
	task := &scheduledTask{token: token}
	d.pending[key] = task
	task.timer = d.clock.AfterFunc(d.delay, func() {
		if d.claim(key, token) {
			fn()
		}
	})
}

// claim removes the task for key if token is still the current one. A timer that was
// replaced or cancelled after it started firing loses the claim and does nothing.
func (d *Debouncer) claim(key string, token uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, ok := d.pending[key]
	if !ok || task.token != token {
		return false
	}
	delete(d.pending, key)
	return true
}

// Cancel drops the pending task for key and reports whether there was one.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, ok := d.pending[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether a task is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending task.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, task := range d.pending {
		task.timer.Stop()
		delete(d.pending, key)
	}
}
