package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credit 积分入账流水，只追加不修改
type Credit struct {
	ID           int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	CreditNo     string              `gorm:"type:varchar(40);not null;uniqueIndex" json:"credit_no"`
	InvoiceID    string              `gorm:"type:varchar(64);index" json:"invoice_id"`
	CustomerCode string              `gorm:"type:varchar(64);not null;index" json:"customer_code"`
	RefCode      string              `gorm:"type:varchar(64);not null;index" json:"ref_code"`
	Subtotal     decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	GST          decimal.NullDecimal `gorm:"column:gst;type:decimal(12,2)" json:"gst"`
	Litres       decimal.NullDecimal `gorm:"type:decimal(12,3)" json:"litres"`
	// CreatedAt 业务时间，调用方不传时等于接收时间
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	// TS 服务端接收时间
	TS time.Time `gorm:"column:ts;not null" json:"ts"`
}

func (Credit) TableName() string {
	return "credits"
}
