package models

import "time"

const (
	TransactionStatusPending  = "PENDING"
	TransactionStatusApproved = "APPROVED"
	TransactionStatusDeclined = "DECLINED"
	TransactionStatusVoided   = "VOIDED"
	TransactionStatusError    = "ERROR"
)

// BillingTransaction is one row per charge attempt against the gateway. It is
// both the audit trail and the idempotency guard: webhook events are merged
// by GatewayTransactionID, and the unique (subscription_id, period_window,
// is_recurring) index makes concurrent recurring-billing runs unable to
// double-charge the same period.
//
// A row is immutable once APPROVED except for the subscription linkage. Only
// the transition *into* APPROVED may create or extend a subscription.
type BillingTransaction struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	GatewayTransactionID string    `gorm:"type:varchar(191);uniqueIndex" json:"gateway_transaction_id"`
	TenantID             uint      `gorm:"not null;index" json:"tenant_id"`
	SubscriptionID       *uint     `gorm:"index:ux_billing_transactions_period,unique,priority:1" json:"subscription_id,omitempty"`
	Reference            string    `gorm:"type:varchar(191);index" json:"reference"`
	Plan                 string    `gorm:"type:varchar(30);not null" json:"plan"`
	PeriodType           string    `gorm:"type:varchar(20);not null" json:"period_type"`
	AmountInCents        int64     `gorm:"not null" json:"amount_in_cents"`
	Currency             string    `gorm:"type:varchar(3);not null;default:'COP'" json:"currency"`
	Status               string    `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	PaymentMethodType    string    `gorm:"type:varchar(30);default:''" json:"payment_method_type"`
	FailureReason        string    `gorm:"type:varchar(255);default:''" json:"failure_reason,omitempty"`
	IsRecurring          bool      `gorm:"not null;default:false;index:ux_billing_transactions_period,unique,priority:3" json:"is_recurring"`
	PeriodWindow         *string   `gorm:"type:varchar(20);default:null;index:ux_billing_transactions_period,unique,priority:2" json:"period_window,omitempty"`
	CreatedAt            time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsApproved reports whether the charge went through.
func (t *BillingTransaction) IsApproved() bool {
	return t.Status == TransactionStatusApproved
}

// IsTerminal reports whether the gateway will not report a later status.
func (t *BillingTransaction) IsTerminal() bool {
	switch t.Status {
	case TransactionStatusApproved, TransactionStatusDeclined, TransactionStatusVoided, TransactionStatusError:
		return true
	default:
		return false
	}
}
