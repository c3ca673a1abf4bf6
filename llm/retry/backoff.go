package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy 定义降级链中两次尝试之间的等待策略
type BackoffPolicy struct {
	InitialDelay time.Duration // 初始延迟时间
	MaxDelay     time.Duration // 最大延迟时间
	Multiplier   float64       // 延迟时间倍增因子（指数退避）
	Jitter       bool          // 是否添加随机抖动
}

// DefaultBackoffPolicy 返回默认的退避策略
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Backoff 指数退避计算器，零值不等待
type Backoff struct {
	policy BackoffPolicy
	rand   func() float64
}

// NewBackoff 创建退避计算器，nil 策略表示不等待
func NewBackoff(policy *BackoffPolicy) *Backoff {
	if policy == nil {
		return &Backoff{}
	}
	p := *policy

	// 参数校验
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}

	return &Backoff{policy: p, rand: rand.Float64}
}

// Delay 计算第 attempt 次重试（从 1 开始）前的等待时间
// 使用指数退避算法 + 可选的随机抖动
func (b *Backoff) Delay(attempt int) time.Duration {
	if b == nil || b.policy.InitialDelay <= 0 || attempt < 1 {
		return 0
	}

	// 指数退避：delay = initial * multiplier^(attempt-1)
	delay := float64(b.policy.InitialDelay) * math.Pow(b.policy.Multiplier, float64(attempt-1))

	// 限制最大延迟
	if delay > float64(b.policy.MaxDelay) {
		delay = float64(b.policy.MaxDelay)
	}

	// 添加随机抖动（±25%）
	if b.policy.Jitter && b.rand != nil {
		jitter := delay * 0.25
		delay = delay + (b.rand()*2-1)*jitter
	}

	// 确保延迟不小于初始延迟
	if delay < float64(b.policy.InitialDelay) {
		delay = float64(b.policy.InitialDelay)
	}

	return time.Duration(delay)
}

// Wait 等待第 attempt 次重试前的延迟，同时监听 context 取消
func (b *Backoff) Wait(ctx context.Context, attempt int) error {
	delay := b.Delay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
