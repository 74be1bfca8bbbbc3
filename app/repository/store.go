package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/AndresVelasco/Inventia/app/models"
)

// NewStore creates the GORM-backed store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) Tenants() TenantRepository                       { return &tenantRepository{db: s.db} }
func (s *gormStore) Users() UserRepository                           { return &userRepository{db: s.db} }
func (s *gormStore) Subscriptions() SubscriptionRepository           { return &subscriptionRepository{db: s.db} }
func (s *gormStore) BillingTransactions() BillingTransactionRepository {
	return &billingTransactionRepository{db: s.db}
}
func (s *gormStore) Usage() UsageRepository { return &usageRepository{db: s.db} }

func (s *gormStore) Atomic(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

type tenantRepository struct {
	db *gorm.DB
}

func (r *tenantRepository) Create(tenant *models.Tenant) error {
	return r.db.Create(tenant).Error
}

func (r *tenantRepository) GetByID(id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.First(&tenant, id).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *tenantRepository) Update(tenant *models.Tenant) error {
	return r.db.Save(tenant).Error
}

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListAdminsByTenant(tenantID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.
		Where("tenant_id = ? AND role = ? AND status = ?", tenantID, models.RoleAdmin, models.UserStatusActive).
		Find(&users).Error
	return users, err
}

func (r *userRepository) CountByTenant(tenantID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("tenant_id = ?", tenantID).Count(&count).Error
	return count, err
}

func (r *userRepository) CountByTenantAndRole(tenantID uint, role string) (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).
		Where("tenant_id = ? AND role = ?", tenantID, role).
		Count(&count).Error
	return count, err
}

type subscriptionRepository struct {
	db *gorm.DB
}

func (r *subscriptionRepository) GetByTenantID(tenantID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("tenant_id = ?", tenantID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Save(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *subscriptionRepository) ListActiveExpiringBetween(from, to time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND end_date >= ? AND end_date < ?", models.SubscriptionStatusActive, from, to).
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) ListActiveExpiredBefore(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND end_date < ?", models.SubscriptionStatusActive, now).
		Find(&subs).Error
	return subs, err
}

type billingTransactionRepository struct {
	db *gorm.DB
}

func (r *billingTransactionRepository) Create(tx *models.BillingTransaction) error {
	return r.db.Create(tx).Error
}

func (r *billingTransactionRepository) Save(tx *models.BillingTransaction) error {
	return r.db.Save(tx).Error
}

func (r *billingTransactionRepository) GetByGatewayID(gatewayTransactionID string) (*models.BillingTransaction, error) {
	var tx models.BillingTransaction
	if err := r.db.Where("gateway_transaction_id = ?", gatewayTransactionID).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *billingTransactionRepository) HasRecurringSince(subscriptionID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.BillingTransaction{}).
		Where("subscription_id = ? AND is_recurring = ? AND created_at >= ?", subscriptionID, true, since).
		Count(&count).Error
	return count > 0, err
}

type usageRepository struct {
	db *gorm.DB
}

func (r *usageRepository) CountProducts(tenantID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Product{}).Where("tenant_id = ?", tenantID).Count(&count).Error
	return count, err
}

func (r *usageRepository) CountWarehouses(tenantID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Warehouse{}).Where("tenant_id = ?", tenantID).Count(&count).Error
	return count, err
}

func (r *usageRepository) CountInvoicesInMonth(tenantID uint, ref time.Time) (int64, error) {
	monthStart := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	var count int64
	err := r.db.Model(&models.Invoice{}).
		Where("tenant_id = ? AND issued_at >= ? AND issued_at < ?", tenantID, monthStart, monthEnd).
		Count(&count).Error
	return count, err
}

func (r *usageRepository) CreateProduct(p *models.Product) error {
	return r.db.Create(p).Error
}

func (r *usageRepository) CreateWarehouse(w *models.Warehouse) error {
	return r.db.Create(w).Error
}

func (r *usageRepository) CreateInvoice(inv *models.Invoice) error {
	return r.db.Create(inv).Error
}
