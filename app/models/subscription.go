package models

import (
	"time"
)

const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusSuspended = "SUSPENDED"
	SubscriptionStatusExpired   = "EXPIRED"
)

// Subscription is the one-to-one paid-plan record of a tenant. EndDate is the
// single source of truth for expiry; SUSPENDED implies a non-nil SuspendedAt.
type Subscription struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TenantID        uint       `gorm:"not null;uniqueIndex" json:"tenant_id"`
	Plan            string     `gorm:"type:varchar(30);not null" json:"plan"`
	Status          string     `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	PeriodType      string     `gorm:"type:varchar(20);not null" json:"period_type"`
	StartDate       time.Time  `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate         time.Time  `gorm:"type:timestamp;not null;index" json:"end_date"`
	SuspendedAt     *time.Time `gorm:"type:timestamp;default:null" json:"suspended_at,omitempty"`
	SuspendedReason string     `gorm:"type:varchar(255);default:''" json:"suspended_reason,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLapsed reports whether the paid period has already ended.
func (s *Subscription) IsLapsed(now time.Time) bool {
	return s.EndDate.Before(now)
}

// DaysRemaining returns whole days until EndDate, never negative.
func (s *Subscription) DaysRemaining(now time.Time) int {
	if s.IsLapsed(now) {
		return 0
	}
	return int(s.EndDate.Sub(now).Hours() / 24)
}
