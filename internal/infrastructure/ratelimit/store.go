package ratelimit

import (
	"sync"
	"time"
)

// Bucket 一个固定窗口内的计数
type Bucket struct {
	Count   int
	ResetAt time.Time
}

// Store 限流桶存储
//
// Limiter 在调用 Get/Set 时已持有自己的锁，实现只需保证单个操作并发安全
type Store interface {
	Get(key string) (Bucket, bool)
	Set(key string, b Bucket)
	// Sweep 删除窗口结束超过 grace 的桶，返回删除数量
	Sweep(now time.Time, grace time.Duration) int
	Len() int
}

// MemoryStore 进程内存储，重启即丢失
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]Bucket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]Bucket)}
}

func (s *MemoryStore) Get(key string) (Bucket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[key]
	return b, ok
}

func (s *MemoryStore) Set(key string, b Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[key] = b
}

func (s *MemoryStore) Sweep(now time.Time, grace time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		if now.Sub(b.ResetAt) > grace {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}
