package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Referral 推荐记录，一张发票最多对应一条
//
// 【关键点】referred_invoice_code 上的唯一索引是幂等的唯一保障，
// 写入时使用 ON CONFLICT DO NOTHING，重复提交不会覆盖已有记录
type Referral struct {
	ID                   int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ReferrerCustomerCode string          `gorm:"column:referrer_customer_code;type:varchar(32);not null;index" json:"referrer_customer_code"`
	ReferredInvoiceCode  string          `gorm:"column:referred_invoice_code;type:varchar(64);not null;uniqueIndex" json:"referred_invoice_code"`
	FranchiseeCode       string          `gorm:"column:franchisee_code;type:varchar(32);not null;index" json:"franchisee_code"`
	InvoiceAmountINR     decimal.Decimal `gorm:"column:invoice_amount_inr;type:decimal(12,2);not null" json:"invoice_amount_inr"`
	ReferralRewardINR    decimal.Decimal `gorm:"column:referral_reward_inr;type:decimal(12,2);not null" json:"referral_reward_inr"`
	InvoiceDate          Date            `gorm:"column:invoice_date;not null;index" json:"invoice_date"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Referral) TableName() string {
	return "referrals"
}
