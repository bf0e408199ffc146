package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrFranchiseeNotFound = errors.New("加盟商不存在")

// FranchiseeFilter Active 为 nil 表示不过滤
type FranchiseeFilter struct {
	Active *bool
	Query  string
	Limit  int
}

type FranchiseeRepository struct {
	db *gorm.DB
}

func NewFranchiseeRepository(db *gorm.DB) *FranchiseeRepository {
	return &FranchiseeRepository{db: db}
}

// Upsert 按 code 插入或覆盖
func (r *FranchiseeRepository) Upsert(ctx context.Context, f *model.Franchisee) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "contact_phone", "contact_email", "active"}),
		}).
		Create(f).Error
}

func (r *FranchiseeRepository) GetByCode(ctx context.Context, code string) (*model.Franchisee, error) {
	var f model.Franchisee
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFranchiseeNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *FranchiseeRepository) List(ctx context.Context, f FranchiseeFilter) ([]*model.Franchisee, error) {
	q := r.db.WithContext(ctx).Model(&model.Franchisee{})
	if f.Active != nil {
		q = q.Where("active = ?", *f.Active)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(code) LIKE ? OR LOWER(name) LIKE ?)", like, like)
	}

	var list []*model.Franchisee
	err := q.Order("code ASC").Limit(f.Limit).Find(&list).Error
	return list, err
}

// Update 只更新传入的字段，记录不存在返回 ErrFranchiseeNotFound
func (r *FranchiseeRepository) Update(ctx context.Context, code string, fields map[string]interface{}) (*model.Franchisee, error) {
	var updated *model.Franchisee
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f model.Franchisee
		if err := tx.Where("code = ?", code).First(&f).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFranchiseeNotFound
			}
			return err
		}
		if err := tx.Model(&f).Updates(fields).Error; err != nil {
			return err
		}
		if err := tx.Where("code = ?", code).First(&f).Error; err != nil {
			return err
		}
		updated = &f
		return nil
	})
	return updated, err
}
