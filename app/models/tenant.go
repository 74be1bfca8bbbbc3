package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/AndresVelasco/Inventia/internal/pkg/plans"
)

const (
	TenantStatusActive    = "ACTIVE"
	TenantStatusSuspended = "SUSPENDED"
)

// Tenant is a customer organization. The quota fields mirror the limits of
// the last applied plan; they are written together with plan changes inside
// the same transaction, never derived lazily.
type Tenant struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=3,max=150"`
	NIT             string         `gorm:"type:varchar(20);index" json:"nit" validate:"max=20"`
	BillingEmail    string         `gorm:"type:varchar(200);not null" json:"billing_email" validate:"required,email,max=200"`
	Plan            string         `gorm:"type:varchar(30);default:''" json:"plan"`
	Status          string         `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status" validate:"oneof=ACTIVE SUSPENDED"`
	MaxUsers        int            `gorm:"not null;default:2" json:"max_users"`
	MaxProducts     int            `gorm:"not null;default:50" json:"max_products"`
	MaxInvoices     int            `gorm:"not null;default:50" json:"max_invoices"`
	MaxWarehouses   int            `gorm:"not null;default:1" json:"max_warehouses"`
	PaymentSourceID *string        `gorm:"type:varchar(191);default:null" json:"-"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (t *Tenant) Validate() error {
	v := validator.New()
	return v.Struct(t)
}

// HasPaymentSource reports whether a tokenized card is stored at the gateway.
func (t *Tenant) HasPaymentSource() bool {
	return t.PaymentSourceID != nil && *t.PaymentSourceID != ""
}

// CurrentPlan returns the tenant's plan, falling back to the free tier when
// no plan was ever applied.
func (t *Tenant) CurrentPlan() plans.Plan {
	if t.Plan == "" {
		return plans.PlanEmprendedor
	}
	return plans.Plan(t.Plan)
}

// ApplyPlanLimits mirrors the catalog limits of a plan onto the denormalized
// quota fields. Callers persist tenant and subscription in one transaction.
func (t *Tenant) ApplyPlanLimits(p plans.Plan) {
	limits := plans.LimitsOf(p)
	t.Plan = string(p)
	t.MaxUsers = limits.MaxUsers
	t.MaxProducts = limits.MaxProducts
	t.MaxInvoices = limits.MaxInvoices
	t.MaxWarehouses = limits.MaxWarehouses
}
