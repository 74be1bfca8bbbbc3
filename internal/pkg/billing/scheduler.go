package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/AndresVelasco/Inventia/app/models"
)

const (
	// Renewal charges start this long before a subscription runs out.
	renewalLeadTime = 3 * 24 * time.Hour

	// A recurring ledger row inside this window before EndDate means the
	// period was already billed.
	renewalLookback = 7 * 24 * time.Hour

	// Expiry warnings go out around these marks.
	firstWarningLead = 7 * 24 * time.Hour
	finalWarningLead = 24 * time.Hour

	warningDedupTTL = 48 * time.Hour
)

// RecurringReport aggregates one recurring-billing run.
type RecurringReport struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ExpiryReport aggregates one expiry sweep.
type ExpiryReport struct {
	Warned      int `json:"warned"`
	FinalWarned int `json:"final_warned"`
	Expired     int `json:"expired"`
}

// RunRecurringBilling renews subscriptions that end within the next three
// days and have a stored payment method. Failures are isolated per
// subscription; the batch always runs to completion.
func (s *Service) RunRecurringBilling(ctx context.Context) RecurringReport {
	now := s.now()
	var report RecurringReport

	subs, err := s.store.Subscriptions().ListActiveExpiringBetween(now, now.Add(renewalLeadTime))
	if err != nil {
		log.Errorf("[Billing] recurring billing could not list candidates: %v", err)
		return report
	}

	for i := range subs {
		sub := &subs[i]

		tenant, err := s.store.Tenants().GetByID(sub.TenantID)
		if err != nil {
			log.Errorf("[Billing] recurring billing skipping subscription %d: %v", sub.ID, err)
			continue
		}
		if !tenant.HasPaymentSource() {
			continue
		}

		billed, err := s.store.BillingTransactions().HasRecurringSince(sub.ID, sub.EndDate.Add(-renewalLookback))
		if err != nil {
			log.Errorf("[Billing] recurring billing lookback failed for subscription %d: %v", sub.ID, err)
			continue
		}
		if billed {
			continue
		}

		report.Attempted++
		if _, err := s.ChargeRecurring(ctx, sub.TenantID); err != nil {
			if errors.Is(err, ErrAlreadyBilled) {
				// Lost the race against a concurrent run; not a failure.
				report.Attempted--
				continue
			}
			report.Failed++
			log.Warnf("[Billing] recurring charge failed for tenant %d: %v", sub.TenantID, err)
			continue
		}
		report.Succeeded++
	}

	log.Infof("[Billing] recurring billing run: attempted=%d succeeded=%d failed=%d",
		report.Attempted, report.Succeeded, report.Failed)
	return report
}

// RunExpirySweep warns tenants approaching expiry and expires lapsed
// subscriptions. The three steps are independent; an error in one never
// blocks the others and never escapes the job.
func (s *Service) RunExpirySweep(ctx context.Context) ExpiryReport {
	_ = ctx
	now := s.now()
	var report ExpiryReport

	// Step 1: first warning, ~7 days out.
	if subs, err := s.store.Subscriptions().ListActiveExpiringBetween(now.Add(firstWarningLead-24*time.Hour), now.Add(firstWarningLead)); err != nil {
		log.Errorf("[Billing] expiry sweep could not list 7-day candidates: %v", err)
	} else {
		for i := range subs {
			if s.warnExpiring(&subs[i], now, "warn7") {
				report.Warned++
			}
		}
	}

	// Step 2: final warning, ~1 day out.
	if subs, err := s.store.Subscriptions().ListActiveExpiringBetween(now, now.Add(finalWarningLead)); err != nil {
		log.Errorf("[Billing] expiry sweep could not list 1-day candidates: %v", err)
	} else {
		for i := range subs {
			if s.warnExpiring(&subs[i], now, "warn1") {
				report.FinalWarned++
			}
		}
	}

	// Step 3: expire lapsed subscriptions.
	if subs, err := s.store.Subscriptions().ListActiveExpiredBefore(now); err != nil {
		log.Errorf("[Billing] expiry sweep could not list lapsed subscriptions: %v", err)
	} else {
		for i := range subs {
			sub := &subs[i]
			if _, err := s.lifecycle.Expire(sub.TenantID); err != nil {
				log.Errorf("[Billing] could not expire subscription %d: %v", sub.ID, err)
				continue
			}
			report.Expired++
			if tenant, err := s.store.Tenants().GetByID(sub.TenantID); err == nil {
				s.notifier.SubscriptionExpired(tenant)
			}
		}
	}

	log.Infof("[Billing] expiry sweep: warned=%d final=%d expired=%d",
		report.Warned, report.FinalWarned, report.Expired)
	return report
}

func (s *Service) warnExpiring(sub *models.Subscription, now time.Time, kind string) bool {
	if s.dedup != nil {
		key := fmt.Sprintf("billing:notify:%d:%s:%s", sub.ID, kind, now.Format("2006-01-02"))
		if !s.dedup.Once(key, warningDedupTTL) {
			return false
		}
	}
	tenant, err := s.store.Tenants().GetByID(sub.TenantID)
	if err != nil {
		log.Errorf("[Billing] expiry warning skipped for subscription %d: %v", sub.ID, err)
		return false
	}
	s.notifier.SubscriptionExpiring(tenant, sub.DaysRemaining(now))
	return true
}
