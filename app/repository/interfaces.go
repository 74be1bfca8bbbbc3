package repository

import (
	"time"

	"github.com/AndresVelasco/Inventia/app/models"
)

// TenantRepository defines the interface for tenant-related database operations
type TenantRepository interface {
	Create(tenant *models.Tenant) error
	GetByID(id uint) (*models.Tenant, error)
	Update(tenant *models.Tenant) error
}

// UserRepository defines the interface for tenant-member database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	ListAdminsByTenant(tenantID uint) ([]models.User, error)
	CountByTenant(tenantID uint) (int64, error)
	CountByTenantAndRole(tenantID uint, role string) (int64, error)
}

// SubscriptionRepository defines the interface for subscription lifecycle storage
type SubscriptionRepository interface {
	GetByTenantID(tenantID uint) (*models.Subscription, error)
	Save(sub *models.Subscription) error
	// ListActiveExpiringBetween returns ACTIVE subscriptions whose EndDate
	// falls inside [from, to).
	ListActiveExpiringBetween(from, to time.Time) ([]models.Subscription, error)
	// ListActiveExpiredBefore returns ACTIVE subscriptions already past their
	// EndDate, candidates for the expiry transition.
	ListActiveExpiredBefore(now time.Time) ([]models.Subscription, error)
}

// BillingTransactionRepository defines the interface for the charge-attempt ledger
type BillingTransactionRepository interface {
	Create(tx *models.BillingTransaction) error
	Save(tx *models.BillingTransaction) error
	GetByGatewayID(gatewayTransactionID string) (*models.BillingTransaction, error)
	// HasRecurringSince reports whether a recurring charge attempt already
	// exists for the subscription after the given instant.
	HasRecurringSince(subscriptionID uint, since time.Time) (bool, error)
}

// UsageRepository defines the interface for quota-bound resource storage and counts
type UsageRepository interface {
	CountProducts(tenantID uint) (int64, error)
	CountWarehouses(tenantID uint) (int64, error)
	// CountInvoicesInMonth counts invoices issued in the calendar month of ref.
	CountInvoicesInMonth(tenantID uint, ref time.Time) (int64, error)
	CreateProduct(p *models.Product) error
	CreateWarehouse(w *models.Warehouse) error
	CreateInvoice(inv *models.Invoice) error
}

// Store bundles the repositories plus the one transactional combinator the
// billing engine needs: Atomic runs fn against a store bound to a single
// database transaction, so a plan transition updates Subscription and Tenant
// all-or-nothing.
type Store interface {
	Tenants() TenantRepository
	Users() UserRepository
	Subscriptions() SubscriptionRepository
	BillingTransactions() BillingTransactionRepository
	Usage() UsageRepository
	Atomic(fn func(Store) error) error
}
