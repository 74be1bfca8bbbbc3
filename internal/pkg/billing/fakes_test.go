package billing

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/AndresVelasco/Inventia/app/models"
	"github.com/AndresVelasco/Inventia/app/repository"
	"github.com/AndresVelasco/Inventia/internal/pkg/plans"
	"github.com/AndresVelasco/Inventia/internal/pkg/wompi"
)

// fakeStore is an in-memory repository.Store for engine tests. Atomic simply
// runs fn against the same store; transactional rollback is the real
// database's job, these tests cover ordering and state logic.
type fakeStore struct {
	tenants map[uint]*models.Tenant
	users   []*models.User
	subs    map[uint]*models.Subscription // keyed by tenant id
	txs     []*models.BillingTransaction

	products   map[uint]int64
	warehouses map[uint]int64
	invoices   []models.Invoice

	nextSubID uint
	nextTxID  uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:    map[uint]*models.Tenant{},
		subs:       map[uint]*models.Subscription{},
		products:   map[uint]int64{},
		warehouses: map[uint]int64{},
	}
}

func (f *fakeStore) addTenant(t *models.Tenant) *models.Tenant {
	if t.ID == 0 {
		t.ID = uint(len(f.tenants) + 1)
	}
	if t.Status == "" {
		t.Status = models.TenantStatusActive
	}
	f.tenants[t.ID] = t
	return t
}

func (f *fakeStore) addSubscription(s *models.Subscription) *models.Subscription {
	f.nextSubID++
	s.ID = f.nextSubID
	f.subs[s.TenantID] = s
	return s
}

func (f *fakeStore) Tenants() repository.TenantRepository             { return &fakeTenantRepo{f} }
func (f *fakeStore) Users() repository.UserRepository                 { return &fakeUserRepo{f} }
func (f *fakeStore) Subscriptions() repository.SubscriptionRepository { return &fakeSubRepo{f} }
func (f *fakeStore) BillingTransactions() repository.BillingTransactionRepository {
	return &fakeTxRepo{f}
}
func (f *fakeStore) Usage() repository.UsageRepository { return &fakeUsageRepo{f} }

func (f *fakeStore) Atomic(fn func(repository.Store) error) error { return fn(f) }

type fakeTenantRepo struct{ s *fakeStore }

func (r *fakeTenantRepo) Create(tenant *models.Tenant) error {
	r.s.addTenant(tenant)
	return nil
}

func (r *fakeTenantRepo) GetByID(id uint) (*models.Tenant, error) {
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTenantRepo) Update(tenant *models.Tenant) error {
	if _, ok := r.s.tenants[tenant.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *tenant
	r.s.tenants[tenant.ID] = &copied
	return nil
}

type fakeUserRepo struct{ s *fakeStore }

func (r *fakeUserRepo) Create(user *models.User) error {
	if user.ID == 0 {
		user.ID = uint(len(r.s.users) + 1)
	}
	r.s.users = append(r.s.users, user)
	return nil
}

func (r *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	for _, u := range r.s.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) ListAdminsByTenant(tenantID uint) ([]models.User, error) {
	var out []models.User
	for _, u := range r.s.users {
		if u.TenantID == tenantID && u.Role == models.RoleAdmin && u.Status == models.UserStatusActive {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) CountByTenant(tenantID uint) (int64, error) {
	var count int64
	for _, u := range r.s.users {
		if u.TenantID == tenantID {
			count++
		}
	}
	return count, nil
}

func (r *fakeUserRepo) CountByTenantAndRole(tenantID uint, role string) (int64, error) {
	var count int64
	for _, u := range r.s.users {
		if u.TenantID == tenantID && u.Role == role {
			count++
		}
	}
	return count, nil
}

type fakeSubRepo struct{ s *fakeStore }

func (r *fakeSubRepo) GetByTenantID(tenantID uint) (*models.Subscription, error) {
	sub, ok := r.s.subs[tenantID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeSubRepo) Save(sub *models.Subscription) error {
	if sub.ID == 0 {
		r.s.nextSubID++
		sub.ID = r.s.nextSubID
	}
	copied := *sub
	r.s.subs[sub.TenantID] = &copied
	return nil
}

func (r *fakeSubRepo) ListActiveExpiringBetween(from, to time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, s := range r.s.subs {
		if s.Status == models.SubscriptionStatusActive && !s.EndDate.Before(from) && s.EndDate.Before(to) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSubRepo) ListActiveExpiredBefore(now time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, s := range r.s.subs {
		if s.Status == models.SubscriptionStatusActive && s.EndDate.Before(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeTxRepo struct{ s *fakeStore }

func (r *fakeTxRepo) Create(tx *models.BillingTransaction) error {
	for _, existing := range r.s.txs {
		if existing.GatewayTransactionID == tx.GatewayTransactionID {
			return gorm.ErrDuplicatedKey
		}
		if tx.IsRecurring && existing.IsRecurring &&
			tx.SubscriptionID != nil && existing.SubscriptionID != nil &&
			*existing.SubscriptionID == *tx.SubscriptionID &&
			existing.PeriodWindow != nil && tx.PeriodWindow != nil &&
			*existing.PeriodWindow == *tx.PeriodWindow {
			return gorm.ErrDuplicatedKey
		}
	}
	r.s.nextTxID++
	tx.ID = r.s.nextTxID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	copied := *tx
	r.s.txs = append(r.s.txs, &copied)
	return nil
}

func (r *fakeTxRepo) Save(tx *models.BillingTransaction) error {
	for i, existing := range r.s.txs {
		if existing.ID == tx.ID {
			copied := *tx
			r.s.txs[i] = &copied
			return nil
		}
	}
	return r.Create(tx)
}

func (r *fakeTxRepo) GetByGatewayID(gatewayTransactionID string) (*models.BillingTransaction, error) {
	for _, tx := range r.s.txs {
		if tx.GatewayTransactionID == gatewayTransactionID {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTxRepo) HasRecurringSince(subscriptionID uint, since time.Time) (bool, error) {
	for _, tx := range r.s.txs {
		if tx.SubscriptionID != nil && *tx.SubscriptionID == subscriptionID &&
			tx.IsRecurring && !tx.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

type fakeUsageRepo struct{ s *fakeStore }

func (r *fakeUsageRepo) CountProducts(tenantID uint) (int64, error) {
	return r.s.products[tenantID], nil
}

func (r *fakeUsageRepo) CountWarehouses(tenantID uint) (int64, error) {
	return r.s.warehouses[tenantID], nil
}

func (r *fakeUsageRepo) CountInvoicesInMonth(tenantID uint, ref time.Time) (int64, error) {
	var count int64
	for _, inv := range r.s.invoices {
		if inv.TenantID == tenantID &&
			inv.IssuedAt.Year() == ref.Year() && inv.IssuedAt.Month() == ref.Month() {
			count++
		}
	}
	return count, nil
}

func (r *fakeUsageRepo) CreateProduct(p *models.Product) error {
	r.s.products[p.TenantID]++
	return nil
}

func (r *fakeUsageRepo) CreateWarehouse(w *models.Warehouse) error {
	r.s.warehouses[w.TenantID]++
	return nil
}

func (r *fakeUsageRepo) CreateInvoice(inv *models.Invoice) error {
	r.s.invoices = append(r.s.invoices, *inv)
	return nil
}

// fakeGateway scripts gateway responses per test.
type fakeGateway struct {
	merchant      *wompi.MerchantInfo
	merchantCalls int

	transactions map[string]*wompi.Transaction

	createTxResult *wompi.Transaction
	createTxErr    error
	createdTx      []wompi.TransactionRequest

	paymentSource    *wompi.PaymentSource
	paymentSourceErr error
	voided           []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		merchant:     &wompi.MerchantInfo{AcceptanceToken: "acc-token", PersonalAuthToken: "auth-token"},
		transactions: map[string]*wompi.Transaction{},
	}
}

func (g *fakeGateway) GetMerchantInfo(ctx context.Context) (*wompi.MerchantInfo, error) {
	g.merchantCalls++
	return g.merchant, nil
}

func (g *fakeGateway) CreatePaymentSource(ctx context.Context, cardToken, customerEmail, acceptanceToken, personalAuthToken string) (*wompi.PaymentSource, error) {
	if g.paymentSourceErr != nil {
		return nil, g.paymentSourceErr
	}
	if g.paymentSource != nil {
		return g.paymentSource, nil
	}
	return &wompi.PaymentSource{ID: "src-1", Status: "AVAILABLE"}, nil
}

func (g *fakeGateway) CreateTransaction(ctx context.Context, req wompi.TransactionRequest) (*wompi.Transaction, error) {
	g.createdTx = append(g.createdTx, req)
	if g.createTxErr != nil {
		return nil, g.createTxErr
	}
	if g.createTxResult != nil {
		result := *g.createTxResult
		result.Reference = req.Reference
		return &result, nil
	}
	return &wompi.Transaction{
		ID:            fmt.Sprintf("gw-%d", len(g.createdTx)),
		Status:        models.TransactionStatusApproved,
		Reference:     req.Reference,
		AmountInCents: req.AmountInCents,
		Currency:      req.Currency,
	}, nil
}

func (g *fakeGateway) GetTransaction(ctx context.Context, transactionID string) (*wompi.Transaction, error) {
	tx, ok := g.transactions[transactionID]
	if !ok {
		return nil, &wompi.GatewayError{StatusCode: 404, Message: "transaction not found"}
	}
	copied := *tx
	return &copied, nil
}

func (g *fakeGateway) VoidPaymentSource(ctx context.Context, paymentSourceID string) error {
	g.voided = append(g.voided, paymentSourceID)
	return nil
}

// recordingNotifier captures every notification for assertions.
type recordingNotifier struct {
	activated []uint
	renewed   []uint
	changed   []string
	suspended []string
	expiring  []int
	expired   []uint
	failed    []string
}

func (n *recordingNotifier) PlanActivated(t *models.Tenant, s *models.Subscription) {
	n.activated = append(n.activated, t.ID)
}

func (n *recordingNotifier) PlanChanged(t *models.Tenant, oldPlan, newPlan plans.Plan) {
	n.changed = append(n.changed, string(oldPlan)+"->"+string(newPlan))
}

func (n *recordingNotifier) PlanSuspended(t *models.Tenant, reason string) {
	n.suspended = append(n.suspended, reason)
}

func (n *recordingNotifier) SubscriptionRenewed(t *models.Tenant, s *models.Subscription) {
	n.renewed = append(n.renewed, t.ID)
}

func (n *recordingNotifier) SubscriptionExpiring(t *models.Tenant, daysRemaining int) {
	n.expiring = append(n.expiring, daysRemaining)
}

func (n *recordingNotifier) SubscriptionExpired(t *models.Tenant) {
	n.expired = append(n.expired, t.ID)
}

func (n *recordingNotifier) RecurringChargeFailed(t *models.Tenant, reason string) {
	n.failed = append(n.failed, reason)
}

// memoryDeduper is an in-process Deduper.
type memoryDeduper struct {
	seen map[string]bool
}

func (d *memoryDeduper) Once(key string, ttl time.Duration) bool {
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func newTestService(store *fakeStore, gw *fakeGateway, n *recordingNotifier, now time.Time) *Service {
	svc := NewService(store, gw, n, &memoryDeduper{}, Config{
		PublicKey:       "pub_test",
		IntegritySecret: "integrity_secret",
		EventsSecret:    "events_secret",
		RedirectURL:     "https://app.inventia.test/billing/return",
		Currency:        "COP",
	})
	svc.now = func() time.Time { return now }
	svc.lifecycle.now = svc.now
	return svc
}
