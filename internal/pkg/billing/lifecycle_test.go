package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/AndresVelasco/Inventia/app/models"
	"github.com/AndresVelasco/Inventia/internal/pkg/plans"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestLifecycle(store *fakeStore, now time.Time) *Lifecycle {
	lc := NewLifecycle(store)
	lc.now = func() time.Time { return now }
	return lc
}

func TestActivateCreatesSubscriptionAndMirrorsLimits(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Ferreteria El Tornillo", BillingEmail: "dueno@tornillo.co"})
	lc := newTestLifecycle(store, testNow)

	sub, err := lc.Activate(tenant.ID, plans.PlanPyme, plans.PeriodMonthly)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if sub.Status != models.SubscriptionStatusActive {
		t.Errorf("status = %q, want ACTIVE", sub.Status)
	}
	if sub.Plan != string(plans.PlanPyme) {
		t.Errorf("plan = %q, want PYME", sub.Plan)
	}
	if !sub.StartDate.Equal(testNow) {
		t.Errorf("start date = %v, want %v", sub.StartDate, testNow)
	}
	wantEnd := testNow.AddDate(0, 0, 30)
	if !sub.EndDate.Equal(wantEnd) {
		t.Errorf("end date = %v, want %v", sub.EndDate, wantEnd)
	}

	got, err := store.Tenants().GetByID(tenant.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.TenantStatusActive {
		t.Errorf("tenant status = %q, want ACTIVE", got.Status)
	}
	if got.MaxUsers != 10 || got.MaxProducts != 2000 || got.MaxInvoices != 500 || got.MaxWarehouses != 3 {
		t.Errorf("tenant limits = %d/%d/%d/%d, want 10/2000/500/3",
			got.MaxUsers, got.MaxProducts, got.MaxInvoices, got.MaxWarehouses)
	}
}

func TestActivateFromExpiredResetsPeriod(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Lacteos La Vaca", BillingEmail: "admin@lavaca.co", Status: models.TenantStatusSuspended})
	store.addSubscription(&models.Subscription{
		TenantID:  tenant.ID,
		Plan:      string(plans.PlanPyme),
		Status:    models.SubscriptionStatusExpired,
		StartDate: testNow.AddDate(0, 0, -60),
		EndDate:   testNow.AddDate(0, 0, -30),
	})
	lc := newTestLifecycle(store, testNow)

	sub, err := lc.Activate(tenant.ID, plans.PlanEmpresarial, plans.PeriodAnnual)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if sub.Status != models.SubscriptionStatusActive {
		t.Errorf("status = %q, want ACTIVE", sub.Status)
	}
	if !sub.StartDate.Equal(testNow) {
		t.Errorf("start date = %v, want reset to %v", sub.StartDate, testNow)
	}
	if want := testNow.AddDate(0, 0, 365); !sub.EndDate.Equal(want) {
		t.Errorf("end date = %v, want %v", sub.EndDate, want)
	}

	got, _ := store.Tenants().GetByID(tenant.ID)
	if got.Status != models.TenantStatusActive {
		t.Errorf("tenant status = %q, want restored to ACTIVE", got.Status)
	}
}

func TestActivateUnknownTenant(t *testing.T) {
	lc := newTestLifecycle(newFakeStore(), testNow)
	if _, err := lc.Activate(99, plans.PlanPyme, plans.PeriodMonthly); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("err = %v, want ErrTenantNotFound", err)
	}
}

func TestExtendAddsToRemainingPeriod(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Textiles Andinos", BillingEmail: "pagos@andinos.co"})
	end := testNow.AddDate(0, 0, 5)
	store.addSubscription(&models.Subscription{
		TenantID: tenant.ID,
		Plan:     string(plans.PlanPyme),
		Status:   models.SubscriptionStatusActive,
		EndDate:  end,
	})
	lc := newTestLifecycle(store, testNow)

	sub, err := lc.Extend(tenant.ID, plans.PeriodMonthly)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if want := end.AddDate(0, 0, 30); !sub.EndDate.Equal(want) {
		t.Errorf("end date = %v, want remaining days preserved (%v)", sub.EndDate, want)
	}
}

func TestExtendLapsedStartsFromNow(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Textiles Andinos", BillingEmail: "pagos@andinos.co"})
	store.addSubscription(&models.Subscription{
		TenantID: tenant.ID,
		Plan:     string(plans.PlanPyme),
		Status:   models.SubscriptionStatusActive,
		EndDate:  testNow.AddDate(0, 0, -10),
	})
	lc := newTestLifecycle(store, testNow)

	sub, err := lc.Extend(tenant.ID, plans.PeriodMonthly)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if want := testNow.AddDate(0, 0, 30); !sub.EndDate.Equal(want) {
		t.Errorf("end date = %v, want %v (stale end date must not compound)", sub.EndDate, want)
	}
}

func TestExtendRequiresActive(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Textiles Andinos", BillingEmail: "pagos@andinos.co"})
	store.addSubscription(&models.Subscription{
		TenantID: tenant.ID,
		Plan:     string(plans.PlanPyme),
		Status:   models.SubscriptionStatusSuspended,
		EndDate:  testNow.AddDate(0, 0, 10),
	})
	lc := newTestLifecycle(store, testNow)

	_, err := lc.Extend(tenant.ID, plans.PeriodMonthly)
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
}

func TestSuspendAndDoubleSuspend(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Cafetal del Huila", BillingEmail: "admin@cafetal.co"})
	store.addSubscription(&models.Subscription{
		TenantID: tenant.ID,
		Plan:     string(plans.PlanPyme),
		Status:   models.SubscriptionStatusActive,
		EndDate:  testNow.AddDate(0, 0, 20),
	})
	lc := newTestLifecycle(store, testNow)

	sub, err := lc.Suspend(tenant.ID, "chargeback under review")
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if sub.Status != models.SubscriptionStatusSuspended {
		t.Errorf("status = %q, want SUSPENDED", sub.Status)
	}
	if sub.SuspendedAt == nil || !sub.SuspendedAt.Equal(testNow) {
		t.Errorf("suspended at = %v, want %v", sub.SuspendedAt, testNow)
	}
	if sub.SuspendedReason != "chargeback under review" {
		t.Errorf("reason = %q", sub.SuspendedReason)
	}
	if got, _ := store.Tenants().GetByID(tenant.ID); got.Status != models.TenantStatusSuspended {
		t.Errorf("tenant status = %q, want SUSPENDED", got.Status)
	}

	_, err = lc.Suspend(tenant.ID, "again")
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("second Suspend err = %v, want InvalidStateError", err)
	}
}

func TestReactivateWithinPeriod(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Cafetal del Huila", BillingEmail: "admin@cafetal.co", Status: models.TenantStatusSuspended})
	suspendedAt := testNow.AddDate(0, 0, -2)
	store.addSubscription(&models.Subscription{
		TenantID:        tenant.ID,
		Plan:            string(plans.PlanPyme),
		Status:          models.SubscriptionStatusSuspended,
		EndDate:         testNow.AddDate(0, 0, 15),
		SuspendedAt:     &suspendedAt,
		SuspendedReason: "chargeback under review",
	})
	lc := newTestLifecycle(store, testNow)

	sub, err := lc.Reactivate(tenant.ID)
	if err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Errorf("status = %q, want ACTIVE", sub.Status)
	}
	if sub.SuspendedAt != nil || sub.SuspendedReason != "" {
		t.Errorf("suspension fields not cleared: %v %q", sub.SuspendedAt, sub.SuspendedReason)
	}
	if got, _ := store.Tenants().GetByID(tenant.ID); got.Status != models.TenantStatusActive {
		t.Errorf("tenant status = %q, want ACTIVE", got.Status)
	}
}

func TestReactivateLapsedFails(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Cafetal del Huila", BillingEmail: "admin@cafetal.co", Status: models.TenantStatusSuspended})
	store.addSubscription(&models.Subscription{
		TenantID: tenant.ID,
		Plan:     string(plans.PlanPyme),
		Status:   models.SubscriptionStatusSuspended,
		EndDate:  testNow.AddDate(0, 0, -1),
	})
	lc := newTestLifecycle(store, testNow)

	_, err := lc.Reactivate(tenant.ID)
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
	if got, _ := store.Subscriptions().GetByTenantID(tenant.ID); got.Status != models.SubscriptionStatusSuspended {
		t.Errorf("status = %q, reactivation of a lapsed subscription must not change state", got.Status)
	}
}

func TestChangePlanKeepsPeriod(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Distribuidora Norte", BillingEmail: "pagos@norte.co"})
	tenant.ApplyPlanLimits(plans.PlanPyme)
	end := testNow.AddDate(0, 0, 40)
	store.addSubscription(&models.Subscription{
		TenantID:  tenant.ID,
		Plan:      string(plans.PlanPyme),
		Status:    models.SubscriptionStatusActive,
		StartDate: testNow.AddDate(0, 0, -50),
		EndDate:   end,
	})
	lc := newTestLifecycle(store, testNow)

	sub, err := lc.ChangePlan(tenant.ID, plans.PlanEmpresarial)
	if err != nil {
		t.Fatalf("ChangePlan: %v", err)
	}
	if sub.Plan != string(plans.PlanEmpresarial) {
		t.Errorf("plan = %q, want EMPRESARIAL", sub.Plan)
	}
	if !sub.EndDate.Equal(end) {
		t.Errorf("end date = %v, want untouched %v", sub.EndDate, end)
	}

	got, _ := store.Tenants().GetByID(tenant.ID)
	if got.MaxUsers != plans.Unlimited || got.MaxProducts != plans.Unlimited {
		t.Errorf("tenant limits = %d/%d, want unlimited after upgrade", got.MaxUsers, got.MaxProducts)
	}
}

func TestChangePlanRequiresActive(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Distribuidora Norte", BillingEmail: "pagos@norte.co"})
	store.addSubscription(&models.Subscription{
		TenantID: tenant.ID,
		Plan:     string(plans.PlanPyme),
		Status:   models.SubscriptionStatusExpired,
		EndDate:  testNow.AddDate(0, 0, -5),
	})
	lc := newTestLifecycle(store, testNow)

	_, err := lc.ChangePlan(tenant.ID, plans.PlanEmpresarial)
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
}

func TestExpireLapsedSubscription(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Papeleria Central", BillingEmail: "admin@papeleria.co"})
	store.addSubscription(&models.Subscription{
		TenantID: tenant.ID,
		Plan:     string(plans.PlanPyme),
		Status:   models.SubscriptionStatusActive,
		EndDate:  testNow.AddDate(0, 0, -3),
	})
	lc := newTestLifecycle(store, testNow)

	sub, err := lc.Expire(tenant.ID)
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if sub.Status != models.SubscriptionStatusExpired {
		t.Errorf("status = %q, want EXPIRED", sub.Status)
	}
	if got, _ := store.Tenants().GetByID(tenant.ID); got.Status != models.TenantStatusSuspended {
		t.Errorf("tenant status = %q, want SUSPENDED", got.Status)
	}
}

func TestExpireRefusesRunningSubscription(t *testing.T) {
	store := newFakeStore()
	tenant := store.addTenant(&models.Tenant{Name: "Papeleria Central", BillingEmail: "admin@papeleria.co"})
	store.addSubscription(&models.Subscription{
		TenantID: tenant.ID,
		Plan:     string(plans.PlanPyme),
		Status:   models.SubscriptionStatusActive,
		EndDate:  testNow.AddDate(0, 0, 3),
	})
	lc := newTestLifecycle(store, testNow)

	_, err := lc.Expire(tenant.ID)
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
}
