package syncer

import (
	"sync"
	"time"
)

// Task is a cancellable fire-once scheduled job. Scheduling while armed
// resets the timer, so bursts of trigger requests inside the window
// collapse into a single execution. Each synchronizer owns its tasks
// instead of scattering raw timer handles across callbacks.
type Task struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	timer *time.Timer
}

// NewTask returns a task that runs fn once, delay after the most recent
// Schedule call.
func NewTask(delay time.Duration, fn func()) *Task {
	return &Task{delay: delay, fn: fn}
}

// Schedule arms the task, or pushes the deadline out if already armed.
func (t *Task) Schedule() {
	t.ScheduleAfter(t.delay)
}

// ScheduleAfter arms the task with a one-off delay (used for the
// trailing re-run backoff).
func (t *Task) ScheduleAfter(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		t.timer = nil
		t.mu.Unlock()
		t.fn()
	})
}

// Stop disarms the task if armed. A run already started is not
// interrupted — superseded work is handled by the coalescing flags in
// the synchronizers, not by cancellation.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
