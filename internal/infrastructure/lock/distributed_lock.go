package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【使用场景】多个实例同时启动时，都会执行 API Key 的初始化写入。
// 写入本身是幂等的 upsert，但并发 bcrypt + upsert 会重复消耗 CPU
// 并让日志里出现多份"凭证已更新"。用一把短锁让同一时刻只有一个实例在做。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止持锁实例崩溃后死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证"检查+删除"的原子性
//
// ============================================================================

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Unlock 释放锁，只删除自己持有的锁
//
// 【关键点】A 持锁超时自动过期后 B 拿到锁，A 再 Unlock 时 value 不匹配，不会删掉 B 的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// NewSeedLock API Key 初始化锁（全局一把）
//
// value 使用实例标识，便于排查是哪个实例持有锁
func NewSeedLock(client *redis.Client, instanceID string, expiration time.Duration) *DistributedLock {
	return NewDistributedLock(client, "referrals:lock:api_keys:seed", instanceID, expiration)
}
