package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestIngestLimiter_AcquireRelease(t *testing.T) {
	l := NewIngestLimiter(2, time.Second)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if s := l.Status(); s.Active != 2 || s.Available != 0 || s.MaxConcurrent != 2 {
		t.Errorf("Status() = %+v", s)
	}

	l.Release()
	l.Release()
	if s := l.Status(); s.Active != 0 || s.Available != 2 {
		t.Errorf("Status() after release = %+v", s)
	}
}

func TestIngestLimiter_TimesOutWhenFull(t *testing.T) {
	l := NewIngestLimiter(1, 20*time.Millisecond)
	if !l.TryAcquire() {
		t.Fatal("TryAcquire on empty limiter failed")
	}
	defer l.Release()

	if l.TryAcquire() {
		t.Fatal("TryAcquire on full limiter succeeded")
	}
	if err := l.Acquire(context.Background()); !errors.Is(err, ErrTooManyIngests) {
		t.Errorf("Acquire() error = %v, want ErrTooManyIngests", err)
	}
}

func TestIngestLimiter_ContextCancelled(t *testing.T) {
	l := NewIngestLimiter(1, time.Minute)
	l.TryAcquire()
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestIngestLimiter_Concurrent(t *testing.T) {
	l := NewIngestLimiter(3, time.Second)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		current int
		peak    int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()
	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestIngestLimiter_WaitForDrain(t *testing.T) {
	l := NewIngestLimiter(2, time.Second)
	l.TryAcquire()
	go func() {
		time.Sleep(30 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain() = %v", err)
	}
}

func TestIngestLimiter_Defaults(t *testing.T) {
	l := NewIngestLimiter(0, 0)
	if l.Status().MaxConcurrent != DefaultMaxConcurrentIngests || l.maxWait != DefaultIngestWait {
		t.Errorf("defaults not applied: %+v %v", l.Status(), l.maxWait)
	}
}
