package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// ============================================================================
// API Key 鉴权
// ============================================================================
//
// 【存储】api_keys 表每个角色一条记录，只存 bcrypt 哈希。
// 明文 key 来自配置，启动时 EnsureCredentials 把它们哈希后写入。
//
// 【校验】bcrypt 哈希带随机盐，无法按哈希值直接查找，
// 只能取出全部记录逐条 CompareHashAndPassword（常量时间比较）。
// 记录数固定为 3 条，这个开销可以接受；配置了 Redis 时再加一层短 TTL 缓存。
//
// 【失败策略】
//   - 初始化失败：只打日志，已有凭证保持不变（fail-open，服务照常启动）
//   - 校验时存储出错：拒绝请求（fail-closed）
//
// ============================================================================

// RoleSecrets 各角色的明文 key，为空的角色跳过
type RoleSecrets struct {
	Writer string
	Admin  string
	SA     string
}

func (s RoleSecrets) byRole() []struct {
	role   model.Role
	secret string
} {
	return []struct {
		role   model.Role
		secret string
	}{
		{model.RoleWriter, s.Writer},
		{model.RoleAdmin, s.Admin},
		{model.RoleSA, s.SA},
	}
}

// RoleCache 校验结果缓存，Redis 实现见 cache.RoleCache
type RoleCache interface {
	GetRole(ctx context.Context, key string) (string, error)
	SetRole(ctx context.Context, key, role string) error
}

// SeedLocker 多实例初始化互斥，Redis 实现见 lock.DistributedLock
type SeedLocker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// SeedSummary 一次初始化的结果
type SeedSummary struct {
	Created   []string `json:"created"`
	Rotated   []string `json:"rotated"`
	Unchanged []string `json:"unchanged"`
	Failed    []string `json:"failed"`
	Skipped   bool     `json:"skipped"`
}

type CredentialService struct {
	repo       *repository.APIKeyRepository
	bcryptCost int
	cache      RoleCache
	locker     SeedLocker
}

type CredentialOption func(*CredentialService)

func WithRoleCache(c RoleCache) CredentialOption {
	return func(s *CredentialService) {
		s.cache = c
	}
}

func WithSeedLocker(l SeedLocker) CredentialOption {
	return func(s *CredentialService) {
		s.locker = l
	}
}

func NewCredentialService(repo *repository.APIKeyRepository, bcryptCost int, opts ...CredentialOption) *CredentialService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	s := &CredentialService{
		repo:       repo,
		bcryptCost: bcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureCredentials 把配置里的 key 幂等地写入 api_keys
//
// 【关键点】已存储的哈希能匹配当前 key 时不写库；key 变化时覆盖（即轮换）。
// 任何错误都不向上抛，只记录在返回结果和日志里
func (s *CredentialService) EnsureCredentials(ctx context.Context, secrets RoleSecrets) *SeedSummary {
	summary := &SeedSummary{}

	if s.locker != nil {
		acquired, err := s.locker.TryLock(ctx)
		switch {
		case err != nil:
			log.Printf("[Credential] 获取初始化锁失败，继续执行: %v", err)
		case !acquired:
			log.Println("[Credential] 其他实例正在初始化凭证，跳过")
			summary.Skipped = true
			return summary
		default:
			defer func() {
				if err := s.locker.Unlock(ctx); err != nil {
					log.Printf("[Credential] 释放初始化锁失败: %v", err)
				}
			}()
		}
	}

	for _, item := range secrets.byRole() {
		secret := strings.TrimSpace(item.secret)
		if secret == "" {
			continue
		}
		name := model.KeyNameForRole(item.role)

		existing, err := s.repo.GetByName(ctx, name)
		if err != nil {
			log.Printf("[Credential] 查询凭证失败: name=%s, err=%v", name, err)
			summary.Failed = append(summary.Failed, name)
			continue
		}
		if existing != nil && existing.Role == item.role &&
			bcrypt.CompareHashAndPassword([]byte(existing.KeyHash), []byte(secret)) == nil {
			summary.Unchanged = append(summary.Unchanged, name)
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
		if err != nil {
			log.Printf("[Credential] 生成哈希失败: name=%s, err=%v", name, err)
			summary.Failed = append(summary.Failed, name)
			continue
		}

		key := &model.APIKey{Name: name, KeyHash: string(hash), Role: item.role}
		if err := s.repo.Upsert(ctx, key); err != nil {
			log.Printf("[Credential] 写入凭证失败: name=%s, err=%v", name, err)
			summary.Failed = append(summary.Failed, name)
			continue
		}

		if existing == nil {
			summary.Created = append(summary.Created, name)
			log.Printf("[Credential] 凭证已创建: name=%s, role=%s", name, item.role)
		} else {
			summary.Rotated = append(summary.Rotated, name)
			log.Printf("[Credential] 凭证已更新: name=%s, role=%s", name, item.role)
		}
	}

	return summary
}

// Verify 校验 key 并返回角色
//
// allowed 为空时任何合法角色都通过；否则角色等级需不低于其中之一
func (s *CredentialService) Verify(ctx context.Context, presented string, allowed ...model.Role) (model.Role, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return "", ErrMissingKey
	}

	role, err := s.lookup(ctx, presented)
	if err != nil {
		return "", err
	}

	if !role.Satisfies(allowed...) {
		return role, ErrForbidden
	}
	return role, nil
}

func (s *CredentialService) lookup(ctx context.Context, presented string) (model.Role, error) {
	if s.cache != nil {
		cached, err := s.cache.GetRole(ctx, presented)
		if err != nil {
			log.Printf("[Credential] 读取缓存失败: %v", err)
		} else if r := model.Role(cached); r.Valid() {
			return r, nil
		}
	}

	keys, err := s.repo.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}

	for _, k := range keys {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(presented)) == nil {
			if !k.Role.Valid() {
				continue
			}
			if s.cache != nil {
				if err := s.cache.SetRole(ctx, presented, string(k.Role)); err != nil {
					log.Printf("[Credential] 写入缓存失败: %v", err)
				}
			}
			return k.Role, nil
		}
	}
	return "", ErrInvalidKey
}
