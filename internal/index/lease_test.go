package index

import (
	"context"
	"testing"
	"time"
)

func TestLease_SameKeyIsExclusive(t *testing.T) {
	l := NewLease()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r, err := l.Acquire(ctx, "a")
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
			return
		}
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire() succeeded while the key was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release() // idempotent

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire() did not proceed after release")
	}
}

func TestLease_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLease()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ra, err := l.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	defer ra()

	rb, err := l.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("Acquire(b) error = %v", err)
	}
	rb()
}

func TestLease_CancelWhileWaiting(t *testing.T) {
	l := NewLease()
	release, err := l.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "a"); err == nil {
		t.Fatal("Acquire() with expired context should fail")
	}

	release()
	if n := l.Len(); n != 0 {
		t.Errorf("Len() = %d after all releases, want 0", n)
	}
}
