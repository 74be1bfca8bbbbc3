package models

import (
	"time"

	"gorm.io/gorm"
)

// Invoice is a quota-bound sales document. Invoice quota is a rolling monthly
// limit, so the guard counts rows by calendar month of IssuedAt.
type Invoice struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TenantID      uint           `gorm:"not null;index" json:"tenant_id"`
	Number        string         `gorm:"type:varchar(50);not null" json:"number"`
	CustomerName  string         `gorm:"type:varchar(200);default:''" json:"customer_name"`
	TotalInCents  int64          `gorm:"not null;default:0" json:"total_in_cents"`
	IssuedAt      time.Time      `gorm:"type:timestamp;not null;index" json:"issued_at"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
