package model

import "time"

type Franchisee struct {
	Code         string    `gorm:"primaryKey;type:varchar(32)" json:"code"`
	Name         string    `gorm:"type:varchar(128);not null" json:"name"`
	ContactPhone string    `gorm:"type:varchar(32)" json:"contact_phone"`
	ContactEmail string    `gorm:"type:varchar(128)" json:"contact_email"`
	Active       bool      `gorm:"not null;index" json:"active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Franchisee) TableName() string {
	return "franchisees"
}
