package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/AndresVelasco/Inventia/app/models"
	"github.com/AndresVelasco/Inventia/app/repository"
	"github.com/AndresVelasco/Inventia/internal/pkg/plans"
)

// Lifecycle owns the subscription state machine. Every transition that
// touches both the Subscription and the Tenant runs inside one storage
// transaction: new limits without new status (or the reverse) must be
// impossible.
type Lifecycle struct {
	store repository.Store
	now   func() time.Time
}

func NewLifecycle(store repository.Store) *Lifecycle {
	return &Lifecycle{store: store, now: time.Now}
}

// Activate applies a plan from any prior state, including "no subscription".
// It upserts the subscription record: re-activating an expired or suspended
// tenant is a normal operation, not an error.
func (l *Lifecycle) Activate(tenantID uint, plan plans.Plan, period plans.Period) (*models.Subscription, error) {
	now := l.now()
	var out *models.Subscription

	err := l.store.Atomic(func(s repository.Store) error {
		tenant, err := s.Tenants().GetByID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrTenantNotFound)
		}

		sub, err := s.Subscriptions().GetByTenantID(tenantID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			sub = &models.Subscription{TenantID: tenantID}
		}

		sub.Plan = string(plan)
		sub.Status = models.SubscriptionStatusActive
		sub.PeriodType = string(period)
		sub.StartDate = now
		sub.EndDate = now.AddDate(0, 0, plans.PeriodDays(period))
		sub.SuspendedAt = nil
		sub.SuspendedReason = ""
		if err := s.Subscriptions().Save(sub); err != nil {
			return err
		}

		tenant.ApplyPlanLimits(plan)
		tenant.Status = models.TenantStatusActive
		if err := s.Tenants().Update(tenant); err != nil {
			return err
		}

		out = sub
		return nil
	})
	return out, err
}

// Extend renews an active subscription by one period. When the subscription
// already lapsed before the renewal charge succeeded, the new period starts
// from now instead of compounding on the stale end date.
func (l *Lifecycle) Extend(tenantID uint, period plans.Period) (*models.Subscription, error) {
	now := l.now()
	var out *models.Subscription

	err := l.store.Atomic(func(s repository.Store) error {
		sub, err := s.Subscriptions().GetByTenantID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrSubscriptionNotFound)
		}
		if sub.Status != models.SubscriptionStatusActive {
			return &InvalidStateError{Op: "extend", Reason: "subscription is " + sub.Status}
		}

		base := sub.EndDate
		if base.Before(now) {
			base = now
		}
		sub.PeriodType = string(period)
		sub.EndDate = base.AddDate(0, 0, plans.PeriodDays(period))
		if err := s.Subscriptions().Save(sub); err != nil {
			return err
		}

		out = sub
		return nil
	})
	return out, err
}

// Suspend moves an active subscription to SUSPENDED and suspends the tenant.
// Suspending twice is an error, not a no-op, to surface double-suspension bugs.
func (l *Lifecycle) Suspend(tenantID uint, reason string) (*models.Subscription, error) {
	now := l.now()
	var out *models.Subscription

	err := l.store.Atomic(func(s repository.Store) error {
		tenant, err := s.Tenants().GetByID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrTenantNotFound)
		}
		sub, err := s.Subscriptions().GetByTenantID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrSubscriptionNotFound)
		}
		if sub.Status == models.SubscriptionStatusSuspended {
			return &InvalidStateError{Op: "suspend", Reason: "subscription is already suspended"}
		}
		if sub.Status != models.SubscriptionStatusActive {
			return &InvalidStateError{Op: "suspend", Reason: "subscription is " + sub.Status}
		}

		sub.Status = models.SubscriptionStatusSuspended
		sub.SuspendedAt = &now
		sub.SuspendedReason = reason
		if err := s.Subscriptions().Save(sub); err != nil {
			return err
		}

		tenant.Status = models.TenantStatusSuspended
		if err := s.Tenants().Update(tenant); err != nil {
			return err
		}

		out = sub
		return nil
	})
	return out, err
}

// Reactivate lifts a suspension while the paid period still runs. A lapsed
// subscription must go through Activate with a fresh charge instead.
func (l *Lifecycle) Reactivate(tenantID uint) (*models.Subscription, error) {
	now := l.now()
	var out *models.Subscription

	err := l.store.Atomic(func(s repository.Store) error {
		tenant, err := s.Tenants().GetByID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrTenantNotFound)
		}
		sub, err := s.Subscriptions().GetByTenantID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrSubscriptionNotFound)
		}
		if sub.Status != models.SubscriptionStatusSuspended {
			return &InvalidStateError{Op: "reactivate", Reason: "subscription is " + sub.Status + ", not suspended"}
		}
		if sub.IsLapsed(now) {
			return &InvalidStateError{Op: "reactivate", Reason: "subscription period already ended; a new activation is required"}
		}

		sub.Status = models.SubscriptionStatusActive
		sub.SuspendedAt = nil
		sub.SuspendedReason = ""
		if err := s.Subscriptions().Save(sub); err != nil {
			return err
		}

		tenant.Status = models.TenantStatusActive
		if err := s.Tenants().Update(tenant); err != nil {
			return err
		}

		out = sub
		return nil
	})
	return out, err
}

// ChangePlan swaps the plan of an active subscription and re-mirrors the
// catalog limits onto the tenant. The billing period is untouched.
func (l *Lifecycle) ChangePlan(tenantID uint, newPlan plans.Plan) (*models.Subscription, error) {
	var out *models.Subscription

	err := l.store.Atomic(func(s repository.Store) error {
		tenant, err := s.Tenants().GetByID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrTenantNotFound)
		}
		sub, err := s.Subscriptions().GetByTenantID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrSubscriptionNotFound)
		}
		if sub.Status != models.SubscriptionStatusActive {
			return &InvalidStateError{Op: "change plan", Reason: "subscription is " + sub.Status}
		}

		sub.Plan = string(newPlan)
		if err := s.Subscriptions().Save(sub); err != nil {
			return err
		}

		tenant.ApplyPlanLimits(newPlan)
		if err := s.Tenants().Update(tenant); err != nil {
			return err
		}

		out = sub
		return nil
	})
	return out, err
}

// Expire moves a lapsed active subscription to EXPIRED and suspends the
// tenant's operational status. Driven only by the expiry scheduler.
func (l *Lifecycle) Expire(tenantID uint) (*models.Subscription, error) {
	now := l.now()
	var out *models.Subscription

	err := l.store.Atomic(func(s repository.Store) error {
		tenant, err := s.Tenants().GetByID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrTenantNotFound)
		}
		sub, err := s.Subscriptions().GetByTenantID(tenantID)
		if err != nil {
			return mapNotFound(err, ErrSubscriptionNotFound)
		}
		if sub.Status != models.SubscriptionStatusActive {
			return &InvalidStateError{Op: "expire", Reason: "subscription is " + sub.Status}
		}
		if !sub.IsLapsed(now) {
			return &InvalidStateError{Op: "expire", Reason: "subscription period has not ended yet"}
		}

		sub.Status = models.SubscriptionStatusExpired
		if err := s.Subscriptions().Save(sub); err != nil {
			return err
		}

		tenant.Status = models.TenantStatusSuspended
		if err := s.Tenants().Update(tenant); err != nil {
			return err
		}

		out = sub
		return nil
	})
	return out, err
}
