package syncer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"binder/syncer"
)

func TestTaskCoalescesBursts(t *testing.T) {
	var fires atomic.Int32
	task := syncer.NewTask(30*time.Millisecond, func() { fires.Add(1) })

	for i := 0; i < 5; i++ {
		task.Schedule()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Errorf("expected 1 fire for a burst of 5 schedules, got %d", got)
	}
}

func TestTaskFiresAgainAfterCompletion(t *testing.T) {
	var fires atomic.Int32
	task := syncer.NewTask(10*time.Millisecond, func() { fires.Add(1) })

	task.Schedule()
	time.Sleep(60 * time.Millisecond)
	task.Schedule()
	time.Sleep(60 * time.Millisecond)

	if got := fires.Load(); got != 2 {
		t.Errorf("expected 2 fires for separated schedules, got %d", got)
	}
}

func TestTaskStop(t *testing.T) {
	var fires atomic.Int32
	task := syncer.NewTask(20*time.Millisecond, func() { fires.Add(1) })

	task.Schedule()
	task.Stop()
	time.Sleep(80 * time.Millisecond)

	if got := fires.Load(); got != 0 {
		t.Errorf("expected no fires after stop, got %d", got)
	}
}
