package parallel

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolBasic(t *testing.T) {
	pool, err := NewWorkerPool(4)
	if err != nil {
		t.Fatalf("NewWorkerPool failed: %v", err)
	}

	var counter int64
	for i := 0; i < 100; i++ {
		ok := pool.Submit(func() {
			atomic.AddInt64(&counter, 1)
		})
		if !ok {
			t.Fatal("Submit returned false on open pool")
		}
	}

	pool.Wait()

	if atomic.LoadInt64(&counter) != 100 {
		t.Errorf("Expected 100 completed tasks, got %d", counter)
	}
}

func TestWorkerPoolZeroWorkers(t *testing.T) {
	pool, err := NewWorkerPool(0)
	if err != nil {
		t.Fatalf("NewWorkerPool failed: %v", err)
	}
	defer pool.Close()

	done := make(chan struct{})
	pool.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Task was not executed with defaulted worker count")
	}
}

func TestWorkerPoolTooManyWorkers(t *testing.T) {
	_, err := NewWorkerPool(MaxWorkers + 1)
	if !errors.Is(err, ErrTooManyWorkers) {
		t.Errorf("Expected ErrTooManyWorkers, got %v", err)
	}
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool, err := NewWorkerPool(2)
	if err != nil {
		t.Fatalf("NewWorkerPool failed: %v", err)
	}
	pool.Close()

	if pool.Submit(func() {}) {
		t.Error("Submit should return false after Close")
	}
}

func TestWorkerPoolPanicRecovery(t *testing.T) {
	pool, err := NewWorkerPool(2)
	if err != nil {
		t.Fatalf("NewWorkerPool failed: %v", err)
	}

	var completed int64
	pool.Submit(func() { panic("task gone wrong") })
	pool.Submit(func() { atomic.AddInt64(&completed, 1) })

	pool.Wait()

	if atomic.LoadInt64(&completed) != 1 {
		t.Error("Worker did not survive a panicking task")
	}
}

func TestWorkerPoolConcurrentSubmitAndClose(t *testing.T) {
	pool, err := NewWorkerPool(4)
	if err != nil {
		t.Fatalf("NewWorkerPool failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				pool.Submit(func() {})
			}
		}()
	}

	// Close while submitters are racing; Submit must not panic on a closed channel
	time.Sleep(time.Millisecond)
	pool.Close()
	wg.Wait()
}
