package workflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	l := NewKeyedLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "p1")
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := l.Lock(ctx, "p1")
		if err != nil {
			t.Errorf("second Lock() failed: %v", err)
			return
		}
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock() acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock() not acquired after unlock")
	}
}

func TestKeyedLocker_IndependentKeys(t *testing.T) {
	l := NewKeyedLocker()
	ctx := context.Background()

	unlock1, err := l.Lock(ctx, "p1")
	if err != nil {
		t.Fatalf("Lock(p1) failed: %v", err)
	}
	defer unlock1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlock2, err := l.Lock(ctx2, "p2")
	if err != nil {
		t.Fatalf("Lock(p2) failed: %v", err)
	}
	unlock2()
}

func TestKeyedLocker_ContextCancelled(t *testing.T) {
	l := NewKeyedLocker()

	unlock, err := l.Lock(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "p1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock() error = %v, want %v", err, context.DeadlineExceeded)
	}

	unlock()
	unlock()
	if n := l.size(); n != 0 {
		t.Errorf("tracked keys = %d after release, want 0", n)
	}
}
