package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenBucket_AllowAndRefill(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	tb := NewTokenBucket(2, 4) // 每 250ms 一个令牌
	tb.now = func() time.Time { return clock }
	tb.lastRefill = clock

	if !tb.Allow() || !tb.Allow() {
		t.Fatalf("expected two tokens available")
	}
	if tb.Allow() {
		t.Fatalf("expected bucket to be empty")
	}

	clock = clock.Add(300 * time.Millisecond)
	if got := tb.GetRemaining(); got != 1 {
		t.Fatalf("remaining after 300ms got=%d want=1", got)
	}
	// 50ms 零头保留，再过 200ms 补满第二个
	clock = clock.Add(200 * time.Millisecond)
	if got := tb.GetRemaining(); got != 2 {
		t.Fatalf("remaining after 500ms got=%d want=2", got)
	}

	clock = clock.Add(time.Hour)
	if got := tb.GetRemaining(); got != 2 {
		t.Fatalf("remaining capped at capacity, got=%d", got)
	}
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 0) // 不补充
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTokenBucket_WaitRefills(t *testing.T) {
	tb := NewTokenBucket(1, 100) // 10ms 一个令牌
	_ = tb.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("Wait took too long: %v", time.Since(start))
	}
}
