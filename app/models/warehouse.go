package models

import (
	"time"

	"gorm.io/gorm"
)

// Warehouse is a quota-bound stock location.
type Warehouse struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	TenantID  uint           `gorm:"not null;index" json:"tenant_id"`
	Name      string         `gorm:"type:varchar(150);not null" json:"name"`
	Address   string         `gorm:"type:varchar(255);default:''" json:"address"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
