package models

import (
	"time"

	"gorm.io/gorm"
)

// Product is a quota-bound inventory item. Only the fields the limit guard
// and creation endpoint need live here; the catalog UI is out of scope.
type Product struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	TenantID  uint           `gorm:"not null;index" json:"tenant_id"`
	SKU       string         `gorm:"type:varchar(64);index" json:"sku"`
	Name      string         `gorm:"type:varchar(200);not null" json:"name"`
	PriceInCents int64       `gorm:"not null;default:0" json:"price_in_cents"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
