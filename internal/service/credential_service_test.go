package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/testutil"

	"golang.org/x/crypto/bcrypt"
)

var testSecrets = RoleSecrets{Writer: "writer-secret", Admin: "admin-secret", SA: "sa-secret"}

func newCredentialService(t *testing.T, opts ...CredentialOption) (*CredentialService, *repository.APIKeyRepository) {
	t.Helper()
	repo := repository.NewAPIKeyRepository(testutil.NewDB(t))
	return NewCredentialService(repo, bcrypt.MinCost, opts...), repo
}

func TestEnsureCredentialsIdempotent(t *testing.T) {
	svc, repo := newCredentialService(t)
	ctx := context.Background()

	first := svc.EnsureCredentials(ctx, testSecrets)
	if len(first.Created) != 3 || len(first.Failed) != 0 {
		t.Fatalf("first run = %+v, want 3 created", first)
	}

	second := svc.EnsureCredentials(ctx, testSecrets)
	if len(second.Unchanged) != 3 || len(second.Created) != 0 || len(second.Rotated) != 0 {
		t.Fatalf("second run = %+v, want 3 unchanged", second)
	}

	keys, _ := repo.ListAll(ctx)
	if len(keys) != 3 {
		t.Fatalf("stored keys = %d, want 3", len(keys))
	}
	for _, k := range keys {
		if k.KeyHash == testSecrets.Writer || k.KeyHash == testSecrets.Admin || k.KeyHash == testSecrets.SA {
			t.Fatalf("plaintext key stored for %s", k.Name)
		}
	}
}

func TestEnsureCredentialsRotatesAndSkipsEmpty(t *testing.T) {
	svc, _ := newCredentialService(t)
	ctx := context.Background()
	svc.EnsureCredentials(ctx, testSecrets)

	summary := svc.EnsureCredentials(ctx, RoleSecrets{Writer: "writer-secret-2"})
	if len(summary.Rotated) != 1 || summary.Rotated[0] != model.KeyNameForRole(model.RoleWriter) {
		t.Fatalf("summary = %+v, want writer rotated", summary)
	}

	if _, err := svc.Verify(ctx, "writer-secret-2", model.RoleWriter); err != nil {
		t.Fatalf("new writer key rejected: %v", err)
	}
	if _, err := svc.Verify(ctx, "writer-secret", model.RoleWriter); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("old writer key: err = %v, want ErrInvalidKey", err)
	}
	// 未提供的角色保持不变
	if _, err := svc.Verify(ctx, "admin-secret", model.RoleAdmin); err != nil {
		t.Fatalf("admin key rejected: %v", err)
	}
}

func TestVerifyRoleHierarchy(t *testing.T) {
	svc, _ := newCredentialService(t)
	ctx := context.Background()
	svc.EnsureCredentials(ctx, testSecrets)

	cases := []struct {
		name    string
		key     string
		allowed []model.Role
		wantErr error
	}{
		{"writer on writer route", "writer-secret", []model.Role{model.RoleWriter}, nil},
		{"writer on admin route", "writer-secret", []model.Role{model.RoleAdmin}, ErrForbidden},
		{"admin on writer route", "admin-secret", []model.Role{model.RoleWriter}, nil},
		{"admin on sa route", "admin-secret", []model.Role{model.RoleSA}, ErrForbidden},
		{"sa on sa route", "sa-secret", []model.Role{model.RoleSA}, nil},
		{"sa on admin route", "sa-secret", []model.Role{model.RoleAdmin}, nil},
		{"any role", "writer-secret", nil, nil},
		{"missing key", "  ", []model.Role{model.RoleWriter}, ErrMissingKey},
		{"unknown key", "nope", []model.Role{model.RoleWriter}, ErrInvalidKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Verify(ctx, tc.key, tc.allowed...)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("err = %v, want nil", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestVerifyFailsClosedOnStorageError(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAPIKeyRepository(db)
	svc := NewCredentialService(repo, bcrypt.MinCost)
	svc.EnsureCredentials(context.Background(), testSecrets)

	sqlDB, _ := db.DB()
	sqlDB.Close()

	_, err := svc.Verify(context.Background(), "sa-secret", model.RoleSA)
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Fatalf("err = %v, want ErrAuthUnavailable", err)
	}
}

type memoryRoleCache struct {
	mu    sync.Mutex
	roles map[string]string
	hits  int
}

func (c *memoryRoleCache) GetRole(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	role, ok := c.roles[key]
	if ok {
		c.hits++
	}
	return role, nil
}

func (c *memoryRoleCache) SetRole(_ context.Context, key, role string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles[key] = role
	return nil
}

func TestVerifyUsesRoleCache(t *testing.T) {
	cache := &memoryRoleCache{roles: map[string]string{}}
	svc, _ := newCredentialService(t, WithRoleCache(cache))
	ctx := context.Background()
	svc.EnsureCredentials(ctx, testSecrets)

	for i := 0; i < 3; i++ {
		role, err := svc.Verify(ctx, "admin-secret", model.RoleAdmin)
		if err != nil || role != model.RoleAdmin {
			t.Fatalf("Verify = %s, %v", role, err)
		}
	}
	if cache.hits != 2 {
		t.Fatalf("cache hits = %d, want 2", cache.hits)
	}

	// 命中缓存时仍然检查角色等级
	if _, err := svc.Verify(ctx, "admin-secret", model.RoleSA); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

type fixedLocker struct {
	acquired bool
	unlocked bool
}

func (l *fixedLocker) TryLock(context.Context) (bool, error) { return l.acquired, nil }
func (l *fixedLocker) Unlock(context.Context) error {
	l.unlocked = true
	return nil
}

func TestEnsureCredentialsSkipsWhenLockHeld(t *testing.T) {
	locker := &fixedLocker{acquired: false}
	svc, repo := newCredentialService(t, WithSeedLocker(locker))

	summary := svc.EnsureCredentials(context.Background(), testSecrets)
	if !summary.Skipped {
		t.Fatalf("summary = %+v, want skipped", summary)
	}
	keys, _ := repo.ListAll(context.Background())
	if len(keys) != 0 {
		t.Fatalf("stored keys = %d, want 0", len(keys))
	}

	locker.acquired = true
	summary = svc.EnsureCredentials(context.Background(), testSecrets)
	if summary.Skipped || len(summary.Created) != 3 {
		t.Fatalf("summary = %+v, want 3 created", summary)
	}
	if !locker.unlocked {
		t.Fatal("lock not released")
	}
}
