package syncer

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a save is written.
const DefaultDebounce = 1500 * time.Millisecond

// Task is a delayed call that can be cancelled until it fires.
type Task struct {
	mu    sync.Mutex
	timer *time.Timer
	done  bool
	fn    func()
}

// NewTask schedules fn to run on its own goroutine after delay.
func NewTask(delay time.Duration, fn func()) *Task {
	t := &Task{fn: fn}
	t.mu.Lock()
	t.timer = time.AfterFunc(delay, t.fire)
	t.mu.Unlock()
	return t
}

func (t *Task) fire() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()

	t.fn()
}

// Cancel stops the task and reports whether it was still pending. A task
// that already started running is not interrupted.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.timer.Stop()
	return true
}

// Pending reports whether the task has neither fired nor been cancelled.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

// Debouncer holds at most one pending Task. Each Trigger replaces the
// pending task, so a burst of triggers runs fn once, delay after the last.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	task  *Task
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Trigger cancels any pending task and arms a new one for fn.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.task != nil {
		d.task.Cancel()
	}
	d.task = NewTask(d.delay, fn)
}

// Cancel drops the pending task and reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	t := d.task
	d.task = nil
	d.mu.Unlock()
	return t != nil && t.Cancel()
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	t := d.task
	d.mu.Unlock()
	return t != nil && t.Pending()
}
