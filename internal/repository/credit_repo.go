package repository

import (
	"context"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"

	"gorm.io/gorm"
)

// CreditFilter 空字段不参与过滤；From 包含，To 不包含
type CreditFilter struct {
	RefCode      string
	CustomerCode string
	From         *time.Time
	To           *time.Time
	Limit        int
}

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) Create(ctx context.Context, tx *gorm.DB, credit *model.Credit) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(credit).Error
}

// List 按业务时间倒序
func (r *CreditRepository) List(ctx context.Context, f CreditFilter) ([]*model.Credit, error) {
	q := r.db.WithContext(ctx).Model(&model.Credit{})

	if f.RefCode != "" {
		q = q.Where("LOWER(ref_code) = LOWER(?)", f.RefCode)
	}
	if f.CustomerCode != "" {
		q = q.Where("LOWER(customer_code) = LOWER(?)", f.CustomerCode)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at < ?", f.To.UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var credits []*model.Credit
	err := q.Order("created_at DESC").Order("id DESC").Find(&credits).Error
	return credits, err
}
