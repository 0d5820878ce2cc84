package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
}

// TokenBucket 令牌桶速率限制器
type TokenBucket struct {
	capacity   int       // 桶容量
	tokens     int       // 当前令牌数
	refillRate int       // 每秒补充的令牌数
	lastRefill time.Time // 上次补充时间
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶（初始为满）
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill 补充令牌；只推进已兑换为令牌的那部分时间，避免零头被丢弃
func (tb *TokenBucket) refill() {
	if tb.refillRate <= 0 {
		return
	}
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	interval := time.Second / time.Duration(tb.refillRate)

	tokensToAdd := int(elapsed / interval)
	if tokensToAdd <= 0 {
		return
	}
	tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
	if tb.tokens == tb.capacity {
		tb.lastRefill = now
	} else {
		tb.lastRefill = tb.lastRefill.Add(time.Duration(tokensToAdd) * interval)
	}
}

// Allow 检查是否允许请求（允许时消耗一个令牌）
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 等待直到允许请求，ctx 取消时返回 ctx.Err()
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		// 计算需要等待的时间
		tb.mu.Lock()
		waitTime := time.Second
		if tb.refillRate > 0 {
			interval := time.Second / time.Duration(tb.refillRate)
			waitTime = interval - tb.now().Sub(tb.lastRefill)
			if waitTime <= 0 {
				waitTime = time.Millisecond
			}
		}
		tb.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// GetRemaining 获取剩余令牌数
func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}
