package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/config"

	"github.com/go-redis/redis/v8"
)

var RedisClient *redis.Client

// InitRedis 未启用时返回 nil；Redis 只做加速和协调，连不上不影响主流程
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		log.Println("[Redis] 未启用，跳过初始化")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	RedisClient = client
	log.Println("Redis 连接成功")
	return client, nil
}

// ============================================================================
// API Key 校验结果缓存
// ============================================================================
//
// bcrypt 校验需要逐条比对，每次请求都全量比对开销较大。
// 校验通过后把 sha256(key) -> role 写入 Redis，短 TTL 内直接命中。
//
// 【关键点】缓存里只存摘要不存明文 key；TTL 要短，轮换后旧 key 最多再活一个 TTL
//
// ============================================================================

const roleKeyPrefix = "referrals:auth:key:"

// RoleCache API Key 角色缓存
type RoleCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoleCache(client *redis.Client, ttl time.Duration) *RoleCache {
	return &RoleCache{client: client, ttl: ttl}
}

// Digest key 的 sha256 摘要
func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GetRole 未命中返回 "", nil
func (c *RoleCache) GetRole(ctx context.Context, key string) (string, error) {
	role, err := c.client.Get(ctx, roleKeyPrefix+Digest(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return role, err
}

func (c *RoleCache) SetRole(ctx context.Context, key, role string) error {
	return c.client.Set(ctx, roleKeyPrefix+Digest(key), role, c.ttl).Err()
}
