package repository

import (
	"context"
	"errors"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrReferralNotFound = errors.New("推荐记录不存在")

// DateRange 按 invoice_date 过滤，[From, To)
type DateRange struct {
	From model.Date
	To   model.Date
}

func (dr *DateRange) apply(q *gorm.DB) *gorm.DB {
	if dr == nil {
		return q
	}
	return q.Where("invoice_date >= ? AND invoice_date < ?", dr.From, dr.To)
}

// ReferralSummary 汇总结果
type ReferralSummary struct {
	Count       int64           `gorm:"column:cnt" json:"cnt"`
	TotalReward decimal.Decimal `gorm:"column:total_reward" json:"total_reward"`
}

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// CreateIfAbsent 按发票号幂等写入
//
// 【关键点】INSERT ... ON CONFLICT (referred_invoice_code) DO NOTHING
// 唯一索引在数据库层面保证同一发票只有一条记录，不需要先查再写，
// 并发提交同一发票时只有一个能插入成功，其余影响行数为 0
func (r *ReferralRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, ref *model.Referral) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "referred_invoice_code"}},
			DoNothing: true,
		}).
		Create(ref)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ReferralRepository) GetByInvoiceCode(ctx context.Context, code string) (*model.Referral, error) {
	var ref model.Referral
	err := r.db.WithContext(ctx).Where("referred_invoice_code = ?", code).First(&ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return &ref, nil
}

// List 最新的记录在前，limit <= 0 表示不限条数
func (r *ReferralRepository) List(ctx context.Context, dr *DateRange, limit int) ([]*model.Referral, error) {
	var refs []*model.Referral
	q := dr.apply(r.db.WithContext(ctx).Model(&model.Referral{})).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&refs).Error
	return refs, err
}

// Summarize column 只能是 franchisee_code 或 referrer_customer_code
func (r *ReferralRepository) Summarize(ctx context.Context, column, code string, dr *DateRange) (*ReferralSummary, error) {
	if column != "franchisee_code" && column != "referrer_customer_code" {
		return nil, errors.New("不支持的汇总字段")
	}

	var summary ReferralSummary
	q := r.db.WithContext(ctx).
		Model(&model.Referral{}).
		Select("COUNT(*) AS cnt, COALESCE(SUM(referral_reward_inr), 0) AS total_reward").
		Where(column+" = ?", code)
	err := dr.apply(q).Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *ReferralRepository) FindByInvoiceCodes(ctx context.Context, codes []string, limit int) ([]*model.Referral, error) {
	var refs []*model.Referral
	err := r.db.WithContext(ctx).
		Where("referred_invoice_code IN ?", codes).
		Order("id DESC").
		Limit(limit).
		Find(&refs).Error
	return refs, err
}

func (r *ReferralRepository) FindByID(ctx context.Context, id int64) ([]*model.Referral, error) {
	var refs []*model.Referral
	err := r.db.WithContext(ctx).Where("id = ?", id).Find(&refs).Error
	return refs, err
}

func (r *ReferralRepository) DeleteByInvoiceCodes(ctx context.Context, codes []string, dr *DateRange) (int64, error) {
	q := r.db.WithContext(ctx).Where("referred_invoice_code IN ?", codes)
	result := dr.apply(q).Delete(&model.Referral{})
	return result.RowsAffected, result.Error
}

func (r *ReferralRepository) DeleteByID(ctx context.Context, id int64, dr *DateRange) (int64, error) {
	q := r.db.WithContext(ctx).Where("id = ?", id)
	result := dr.apply(q).Delete(&model.Referral{})
	return result.RowsAffected, result.Error
}
