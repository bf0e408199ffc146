package repository

import (
	"context"
	"errors"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type APIKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Upsert 按 name 插入或更新哈希和角色
func (r *APIKeyRepository) Upsert(ctx context.Context, key *model.APIKey) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"key_hash", "role", "updated_at"}),
		}).
		Create(key).Error
}

// GetByName 不存在时返回 nil, nil
func (r *APIKeyRepository) GetByName(ctx context.Context, name string) (*model.APIKey, error) {
	var key model.APIKey
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &key, nil
}

func (r *APIKeyRepository) ListAll(ctx context.Context) ([]*model.APIKey, error) {
	var keys []*model.APIKey
	err := r.db.WithContext(ctx).Order("id ASC").Find(&keys).Error
	return keys, err
}
