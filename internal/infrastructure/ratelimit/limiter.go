package ratelimit

import (
	"log"
	"math"
	"sync"
	"time"
)

// ============================================================================
// 固定窗口限流
// ============================================================================
//
// 每个 (桶名, 调用方) 一个计数器：
//   - 桶不存在或窗口已过期：重置为 {count: 0, resetAt: now + window}
//   - count < limit：count+1，放行
//   - count >= limit：拒绝，告诉调用方还要等多少秒
//
// 【关键点】读计数和写计数必须在同一个临界区，否则两个并发请求
// 可能读到同一个 count，导致实际放行数超过 limit
//
// 【关键点】限流器自身出错时放行（fail-open），限流只是保护手段，
// 不能因为它的故障让正常请求全部失败；鉴权则相反，出错时拒绝
//
// ============================================================================

const (
	minLimit  = 1
	minWindow = 500 * time.Millisecond
)

// Policy 一个限流桶的配置
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Result 一次准入判断的结果
type Result struct {
	Allowed           bool
	Limit             int
	Remaining         int
	ResetAt           time.Time
	RetryAfterSeconds int
}

type Limiter struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
}

type Option func(*Limiter)

// WithClock 测试时注入时钟
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit 判断一次请求是否放行
func (l *Limiter) Admit(p Policy, identity string) (res Result) {
	limit := p.Limit
	if limit < minLimit {
		limit = minLimit
	}
	window := p.Window
	if window < minWindow {
		window = minWindow
	}

	now := l.now()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[RateLimit] 限流异常，放行请求: bucket=%s, identity=%s, err=%v", p.Name, identity, r)
			res = Result{
				Allowed:   true,
				Limit:     limit,
				Remaining: limit,
				ResetAt:   now.Add(window),
			}
		}
	}()

	key := p.Name + ":" + identity

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.store.Get(key)
	if !ok || !now.Before(b.ResetAt) {
		b = Bucket{Count: 0, ResetAt: now.Add(window)}
	}

	if b.Count >= limit {
		retry := int(math.Ceil(b.ResetAt.Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return Result{
			Allowed:           false,
			Limit:             limit,
			Remaining:         0,
			ResetAt:           b.ResetAt,
			RetryAfterSeconds: retry,
		}
	}

	b.Count++
	l.store.Set(key, b)

	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - b.Count,
		ResetAt:   b.ResetAt,
	}
}

// Sweep 清理过期的桶
func (l *Limiter) Sweep(grace time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Sweep(l.now(), grace)
}

// Size 当前桶数量
func (l *Limiter) Size() int {
	return l.store.Len()
}
