package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAwaitCapacityImmediateWhenAboveThreshold(t *testing.T) {
	o := New(50)
	o.Observe(100, 10, time.Now().Add(time.Minute))
	if err := o.AwaitCapacity(context.Background()); err != nil {
		t.Fatalf("expected no wait, got %v", err)
	}
}

func TestAwaitCapacityWaitsOutShortWindow(t *testing.T) {
	o := New(50)
	base := time.Now()
	o.now = func() time.Time { return base }
	// resetAt chosen so resetAt+5s guard is ~100ms from base.
	o.Observe(10, 90, base.Add(-4900*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- o.AwaitCapacity(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitCapacity did not return after reset window elapsed")
	}
}

func TestAwaitCapacityRespectsCancellation(t *testing.T) {
	o := New(50)
	o.Observe(0, 100, time.Now().Add(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := o.AwaitCapacity(ctx); err == nil {
		t.Fatal("expected context cancellation error, got nil")
	}
}

func TestDefaultThresholdFallback(t *testing.T) {
	o := New(0)
	if o.threshold != 50 {
		t.Fatalf("expected default threshold 50, got %d", o.threshold)
	}
}
