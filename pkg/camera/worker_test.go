package camera

import (
	"sync"
	"testing"
	"time"
)

func TestWorker_RunsInOrder(t *testing.T) {
	w := NewWorker("test")
	w.Start()
	defer w.Stop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if !w.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}) {
			t.Fatalf("Post %d refused", i)
		}
	}

	if !w.Call(func() {}) {
		t.Fatal("Call refused")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestWorker_PostBeforeStart(t *testing.T) {
	w := NewWorker("test")
	if w.Post(func() {}) {
		t.Error("Post before Start should be refused")
	}
	if w.Call(func() {}) {
		t.Error("Call before Start should be refused")
	}
	w.Stop()
}

func TestWorker_StopRefusesAndDiscards(t *testing.T) {
	w := NewWorker("test")
	w.Start()

	release := make(chan struct{})
	started := make(chan struct{})
	w.Post(func() {
		close(started)
		<-release
	})
	<-started

	ran := make(chan struct{}, 10)
	for i := 0; i < 5; i++ {
		w.Post(func() { ran <- struct{}{} })
	}
	if got := w.Pending(); got != 5 {
		t.Errorf("Pending() = %d, want 5", got)
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	// Stop waits for the running task.
	select {
	case <-stopped:
		t.Fatal("Stop returned while a task was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	if len(ran) != 0 {
		t.Errorf("%d pending tasks ran after Stop, want 0", len(ran))
	}
	if w.Post(func() {}) {
		t.Error("Post after Stop should be refused")
	}

	// Idempotent, and Start after Stop stays stopped.
	w.Stop()
	w.Start()
	if w.Post(func() {}) {
		t.Error("Post after restart should be refused")
	}
}

func TestWorker_StartTwice(t *testing.T) {
	w := NewWorker("test")
	w.Start()
	w.Start()
	defer w.Stop()

	if !w.Call(func() {}) {
		t.Fatal("Call refused")
	}
	if w.Name() != "test" {
		t.Errorf("Name() = %q, want %q", w.Name(), "test")
	}
}
