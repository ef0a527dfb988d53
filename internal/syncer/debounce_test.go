package syncer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskFires(t *testing.T) {
	fired := make(chan struct{})
	task := NewTask(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire")
	}
	if task.Pending() {
		t.Error("task still pending after firing")
	}
	if task.Cancel() {
		t.Error("Cancel after firing reported pending")
	}
}

func TestTaskCancel(t *testing.T) {
	var calls atomic.Int32
	task := NewTask(20*time.Millisecond, func() { calls.Add(1) })

	if !task.Cancel() {
		t.Fatal("Cancel reported not pending")
	}
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
	}
	if !d.Pending() {
		t.Fatal("expected pending task")
	}

	time.Sleep(150 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
	if d.Pending() {
		t.Error("still pending after firing")
	}
}

func TestDebouncerCancel(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)
	d.Trigger(func() { calls.Add(1) })

	if !d.Cancel() {
		t.Fatal("Cancel reported nothing pending")
	}
	if d.Cancel() {
		t.Error("second Cancel reported pending")
	}
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestDebouncerDefaultDelay(t *testing.T) {
	if d := NewDebouncer(0); d.Delay() != DefaultDebounce {
		t.Errorf("Delay() = %v, want %v", d.Delay(), DefaultDebounce)
	}
}
