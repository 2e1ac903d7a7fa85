package roaming

import (
	"sync"
	"time"
)

// Debouncer runs fn once after a quiescence interval. Every Arm moves the
// deadline to interval from now and cancels the pending run, so a burst of Arm
// calls results in a single run interval after the last one.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	timer    *time.Timer
	gen      uint64
	deadline time.Time
	disabled bool
	stopped  bool
}

// NewDebouncer returns a disarmed Debouncer.
func NewDebouncer(interval time.Duration, fn func()) *Debouncer {
	return &Debouncer{interval: interval, fn: fn}
}

// Interval returns the configured quiescence interval.
func (d *Debouncer) Interval() time.Duration { return d.interval }

// Arm schedules fn interval from now.
func (d *Debouncer) Arm() { d.ArmAfter(d.interval) }

// ArmAfter schedules fn after delay, replacing any pending run.
func (d *Debouncer) ArmAfter(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.disabled {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.deadline = time.Now().Add(delay)
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// a stale timer whose Stop lost the race must not run
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.deadline = time.Time{}
	d.mu.Unlock()
	d.fn()
}

// Disarm cancels the pending run, if any.
func (d *Debouncer) Disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disarmLocked()
}

func (d *Debouncer) disarmLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.deadline = time.Time{}
}

// Disable turns Arm into a no-op and cancels the pending run.
func (d *Debouncer) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled = true
	d.disarmLocked()
}

// Stop permanently disarms the Debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.disarmLocked()
}

// Armed reports whether a run is pending.
func (d *Debouncer) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Deadline returns the time of the pending run, or the zero time.
func (d *Debouncer) Deadline() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deadline
}
