package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndresVelasco/Inventia/app/models"
	"github.com/AndresVelasco/Inventia/app/repository"
	"github.com/AndresVelasco/Inventia/internal/pkg/env"
	"github.com/AndresVelasco/Inventia/internal/pkg/plans"
	"github.com/AndresVelasco/Inventia/internal/pkg/wompi"
)

// Gateway is the slice of the card gateway the engine consumes.
type Gateway interface {
	GetMerchantInfo(ctx context.Context) (*wompi.MerchantInfo, error)
	CreatePaymentSource(ctx context.Context, cardToken, customerEmail, acceptanceToken, personalAuthToken string) (*wompi.PaymentSource, error)
	CreateTransaction(ctx context.Context, req wompi.TransactionRequest) (*wompi.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (*wompi.Transaction, error)
	VoidPaymentSource(ctx context.Context, paymentSourceID string) error
}

// Notifier delivers billing events to a tenant's admins. Calls are
// best-effort: implementations must never block or fail the billing
// transition that triggered them.
type Notifier interface {
	PlanActivated(tenant *models.Tenant, sub *models.Subscription)
	PlanChanged(tenant *models.Tenant, oldPlan, newPlan plans.Plan)
	PlanSuspended(tenant *models.Tenant, reason string)
	SubscriptionRenewed(tenant *models.Tenant, sub *models.Subscription)
	SubscriptionExpiring(tenant *models.Tenant, daysRemaining int)
	SubscriptionExpired(tenant *models.Tenant)
	RecurringChargeFailed(tenant *models.Tenant, reason string)
}

// Deduper suppresses repeated side effects under a key for a TTL. Used by the
// expiry sweep so a same-day re-run does not re-warn tenants.
type Deduper interface {
	Once(key string, ttl time.Duration) bool
}

// Config carries the checkout-facing gateway settings.
type Config struct {
	PublicKey       string
	IntegritySecret string
	EventsSecret    string
	RedirectURL     string
	Currency        string
}

// ConfigFromEnv reads the gateway settings the checkout flow needs.
func ConfigFromEnv() Config {
	return Config{
		PublicKey:       strings.TrimSpace(env.GetEnv("WOMPI_PUBLIC_KEY", "")),
		IntegritySecret: strings.TrimSpace(env.GetEnv("WOMPI_INTEGRITY_SECRET", "")),
		EventsSecret:    strings.TrimSpace(env.GetEnv("WOMPI_EVENTS_SECRET", "")),
		RedirectURL:     strings.TrimSpace(env.GetEnv("BILLING_REDIRECT_URL", "")),
		Currency:        strings.TrimSpace(env.GetEnv("BILLING_CURRENCY", "COP")),
	}
}

// Service is the subscription billing engine. Request handlers, webhooks and
// the schedulers all enter through here.
type Service struct {
	store     repository.Store
	gateway   Gateway
	notifier  Notifier
	lifecycle *Lifecycle
	dedup     Deduper
	cfg       Config
	now       func() time.Time
}

func NewService(store repository.Store, gateway Gateway, notifier Notifier, dedup Deduper, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "COP"
	}
	return &Service{
		store:     store,
		gateway:   gateway,
		notifier:  notifier,
		lifecycle: NewLifecycle(store),
		dedup:     dedup,
		cfg:       cfg,
		now:       time.Now,
	}
}

// UsageCounts is the tenant's current consumption of quota-bound resources.
type UsageCounts struct {
	Users             int64 `json:"users"`
	Accountants       int64 `json:"accountants"`
	Products          int64 `json:"products"`
	Warehouses        int64 `json:"warehouses"`
	InvoicesThisMonth int64 `json:"invoices_this_month"`
}

// SubscriptionStatus is the read-only snapshot returned to callers.
type SubscriptionStatus struct {
	Plan             string       `json:"plan"`
	PlanDisplayName  string       `json:"plan_display_name"`
	Status           string       `json:"status"`
	PeriodType       string       `json:"period_type,omitempty"`
	StartDate        *time.Time   `json:"start_date,omitempty"`
	EndDate          *time.Time   `json:"end_date,omitempty"`
	DaysRemaining    int          `json:"days_remaining"`
	HasPaymentSource bool         `json:"has_payment_source"`
	Limits           plans.Limits `json:"limits"`
	Usage            UsageCounts  `json:"usage"`
}

// CheckoutConfig is everything a hosted checkout widget needs to render a
// tamper-proof payment form.
type CheckoutConfig struct {
	GatewayPublicKey  string `json:"gateway_public_key"`
	Reference         string `json:"reference"`
	AmountInCents     int64  `json:"amount_in_cents"`
	Currency          string `json:"currency"`
	IntegrityHash     string `json:"integrity_hash"`
	AcceptanceToken   string `json:"acceptance_token"`
	PersonalAuthToken string `json:"personal_auth_token"`
	RedirectURL       string `json:"redirect_url"`
	PlanDisplayName   string `json:"plan_display_name"`
	FormattedPrice    string `json:"formatted_price"`
}

// GetSubscriptionStatus returns the tenant's plan, limits and usage. Read
// only, no side effects.
func (s *Service) GetSubscriptionStatus(ctx context.Context, tenantID uint) (*SubscriptionStatus, error) {
	_ = ctx
	tenant, err := s.store.Tenants().GetByID(tenantID)
	if err != nil {
		return nil, mapNotFound(err, ErrTenantNotFound)
	}

	status := &SubscriptionStatus{
		Plan:             string(tenant.CurrentPlan()),
		PlanDisplayName:  plans.DisplayName(tenant.CurrentPlan()),
		Status:           tenant.Status,
		HasPaymentSource: tenant.HasPaymentSource(),
		Limits: plans.Limits{
			MaxUsers:       tenant.MaxUsers,
			MaxAccountants: plans.LimitsOf(tenant.CurrentPlan()).MaxAccountants,
			MaxProducts:    tenant.MaxProducts,
			MaxInvoices:    tenant.MaxInvoices,
			MaxWarehouses:  tenant.MaxWarehouses,
		},
	}

	sub, err := s.store.Subscriptions().GetByTenantID(tenantID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if sub != nil {
		now := s.now()
		status.Status = sub.Status
		status.PeriodType = sub.PeriodType
		start, end := sub.StartDate, sub.EndDate
		status.StartDate = &start
		status.EndDate = &end
		status.DaysRemaining = sub.DaysRemaining(now)
	}

	if status.Usage, err = s.usageCounts(tenantID); err != nil {
		return nil, err
	}
	return status, nil
}

func (s *Service) usageCounts(tenantID uint) (UsageCounts, error) {
	var (
		counts UsageCounts
		err    error
	)
	if counts.Users, err = s.store.Users().CountByTenant(tenantID); err != nil {
		return counts, err
	}
	if counts.Accountants, err = s.store.Users().CountByTenantAndRole(tenantID, models.RoleAccountant); err != nil {
		return counts, err
	}
	if counts.Products, err = s.store.Usage().CountProducts(tenantID); err != nil {
		return counts, err
	}
	if counts.Warehouses, err = s.store.Usage().CountWarehouses(tenantID); err != nil {
		return counts, err
	}
	if counts.InvoicesThisMonth, err = s.store.Usage().CountInvoicesInMonth(tenantID, s.now()); err != nil {
		return counts, err
	}
	return counts, nil
}

// GetCheckoutConfig prepares a tamper-proof hosted checkout for one plan
// purchase. The free tier is not purchasable.
func (s *Service) GetCheckoutConfig(ctx context.Context, tenantID uint, plan plans.Plan, period plans.Period) (*CheckoutConfig, error) {
	if plans.IsFree(plan) {
		return nil, ErrFreePlanNotBillable
	}
	if s.cfg.PublicKey == "" {
		return nil, &ConfigError{Key: "WOMPI_PUBLIC_KEY"}
	}
	if s.cfg.IntegritySecret == "" {
		return nil, &ConfigError{Key: "WOMPI_INTEGRITY_SECRET"}
	}

	if _, err := s.store.Tenants().GetByID(tenantID); err != nil {
		return nil, mapNotFound(err, ErrTenantNotFound)
	}

	merchant, err := s.gateway.GetMerchantInfo(ctx)
	if err != nil {
		return nil, err
	}

	amount := plans.Price(plan, period)
	reference := newCheckoutReference(tenantID, plan, period)

	return &CheckoutConfig{
		GatewayPublicKey:  s.cfg.PublicKey,
		Reference:         reference,
		AmountInCents:     amount,
		Currency:          s.cfg.Currency,
		IntegrityHash:     wompi.IntegritySignature(reference, amount, s.cfg.Currency, s.cfg.IntegritySecret),
		AcceptanceToken:   merchant.AcceptanceToken,
		PersonalAuthToken: merchant.PersonalAuthToken,
		RedirectURL:       s.cfg.RedirectURL,
		PlanDisplayName:   plans.DisplayName(plan),
		FormattedPrice:    plans.FormatPrice(amount),
	}, nil
}

// CreatePaymentSource stores a tokenized card at the gateway and remembers
// the opaque source id on the tenant for recurring billing. A previously
// stored source is voided best-effort.
func (s *Service) CreatePaymentSource(ctx context.Context, tenantID uint, cardToken, acceptanceToken, personalAuthToken string) (string, error) {
	tenant, err := s.store.Tenants().GetByID(tenantID)
	if err != nil {
		return "", mapNotFound(err, ErrTenantNotFound)
	}

	source, err := s.gateway.CreatePaymentSource(ctx, cardToken, tenant.BillingEmail, acceptanceToken, personalAuthToken)
	if err != nil {
		return "", err
	}

	if tenant.HasPaymentSource() && *tenant.PaymentSourceID != source.ID {
		if err := s.gateway.VoidPaymentSource(ctx, *tenant.PaymentSourceID); err != nil {
			log.Warnf("[Billing] could not void previous payment source for tenant %d: %v", tenantID, err)
		}
	}

	tenant.PaymentSourceID = &source.ID
	if err := s.store.Tenants().Update(tenant); err != nil {
		return "", err
	}
	return source.ID, nil
}

// VerifyPayment fetches a checkout transaction from the gateway, records it
// in the ledger, and activates or extends the subscription when approved.
func (s *Service) VerifyPayment(ctx context.Context, tenantID uint, gatewayTransactionID string, plan plans.Plan, period plans.Period) (*SubscriptionStatus, error) {
	if _, err := s.store.Tenants().GetByID(tenantID); err != nil {
		return nil, mapNotFound(err, ErrTenantNotFound)
	}

	gwTx, err := s.gateway.GetTransaction(ctx, gatewayTransactionID)
	if err != nil {
		return nil, err
	}

	row, prevStatus, err := s.mergeLedgerRow(gwTx, tenantID, plan, period, false)
	if err != nil {
		return nil, err
	}

	if gwTx.Status == models.TransactionStatusApproved && prevStatus != models.TransactionStatusApproved {
		if err := s.applyApprovedCharge(row, plan, period); err != nil {
			return nil, err
		}
	}
	return s.GetSubscriptionStatus(ctx, tenantID)
}

// ChargeRecurring attempts a zero-touch renewal charge against the tenant's
// stored payment source. The ledger row is written before the charge is
// interpreted, so a crash in between leaves an inspectable record.
func (s *Service) ChargeRecurring(ctx context.Context, tenantID uint) (*SubscriptionStatus, error) {
	tenant, err := s.store.Tenants().GetByID(tenantID)
	if err != nil {
		return nil, mapNotFound(err, ErrTenantNotFound)
	}
	if !tenant.HasPaymentSource() {
		return nil, &InvalidStateError{Op: "charge recurring", Reason: "tenant has no stored payment method"}
	}

	sub, err := s.store.Subscriptions().GetByTenantID(tenantID)
	if err != nil {
		return nil, mapNotFound(err, ErrSubscriptionNotFound)
	}
	if sub.Status != models.SubscriptionStatusActive {
		return nil, &InvalidStateError{Op: "charge recurring", Reason: "subscription is " + sub.Status}
	}

	plan := plans.Plan(sub.Plan)
	period := plans.Period(sub.PeriodType)
	amount := plans.Price(plan, period)
	window := sub.EndDate.Format("2006-01-02")
	reference := newCheckoutReference(tenantID, plan, period)

	row := &models.BillingTransaction{
		// Placeholder until the gateway assigns the real id; keeps the
		// unique index satisfied for in-flight attempts.
		GatewayTransactionID: "pending-" + uuid.NewString(),
		TenantID:             tenantID,
		SubscriptionID:       &sub.ID,
		Reference:            reference,
		Plan:                 string(plan),
		PeriodType:           string(period),
		AmountInCents:        amount,
		Currency:             s.cfg.Currency,
		Status:               models.TransactionStatusPending,
		IsRecurring:          true,
		PeriodWindow:         &window,
	}
	if err := s.store.BillingTransactions().Create(row); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// The (subscription, window, recurring) constraint caught a
			// concurrent or repeated attempt for the same period.
			return nil, ErrAlreadyBilled
		}
		return nil, err
	}

	gwTx, err := s.gateway.CreateTransaction(ctx, wompi.TransactionRequest{
		AmountInCents:   amount,
		Currency:        s.cfg.Currency,
		Reference:       reference,
		CustomerEmail:   tenant.BillingEmail,
		PaymentSourceID: *tenant.PaymentSourceID,
		Recurrent:       true,
	})
	if err != nil {
		row.Status = models.TransactionStatusError
		row.FailureReason = err.Error()
		if saveErr := s.store.BillingTransactions().Save(row); saveErr != nil {
			log.Errorf("[Billing] could not record failed recurring charge for tenant %d: %v", tenantID, saveErr)
		}
		s.notifier.RecurringChargeFailed(tenant, err.Error())
		return nil, err
	}

	row.GatewayTransactionID = gwTx.ID
	row.Status = gwTx.Status
	row.PaymentMethodType = gwTx.PaymentMethodType
	if gwTx.Status != models.TransactionStatusApproved {
		row.FailureReason = gwTx.StatusMessage
	}
	if err := s.store.BillingTransactions().Save(row); err != nil {
		return nil, err
	}

	if gwTx.Status != models.TransactionStatusApproved {
		declined := &ChargeDeclinedError{Status: gwTx.Status, Reason: gwTx.StatusMessage}
		s.notifier.RecurringChargeFailed(tenant, declined.Error())
		return nil, declined
	}

	extended, err := s.lifecycle.Extend(tenantID, period)
	if err != nil {
		return nil, err
	}
	s.notifier.SubscriptionRenewed(tenant, extended)
	return s.GetSubscriptionStatus(ctx, tenantID)
}

// HandleWebhook verifies and applies one inbound gateway event. Only a bad
// signature or an unparsable body returns an error; business-level failures
// are logged and acknowledged so the gateway does not retry them forever.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte) error {
	ev, err := wompi.ParseEvent(rawBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !wompi.VerifyEventSignature(ev, s.cfg.EventsSecret) {
		return ErrInvalidSignature
	}

	gwTx, ok := ev.TransactionData()
	if !ok {
		log.Infof("[Billing] ignoring webhook event %q without transaction data", ev.Event)
		return nil
	}

	if err := s.applyWebhookTransaction(ctx, gwTx); err != nil {
		log.Errorf("[Billing] webhook for transaction %s not applied: %v", gwTx.ID, err)
	}
	return nil
}

func (s *Service) applyWebhookTransaction(ctx context.Context, gwTx *wompi.Transaction) error {
	_ = ctx
	row, err := s.store.BillingTransactions().GetByGatewayID(gwTx.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var (
		plan   plans.Plan
		period plans.Period
	)
	if row == nil {
		// The webhook can beat VerifyPayment; attribute the charge through
		// the reference we minted at checkout.
		tenantID, refPlan, refPeriod, refErr := parseCheckoutReference(gwTx.Reference)
		if refErr != nil {
			log.Infof("[Billing] ignoring webhook for unknown transaction %s (reference %q)", gwTx.ID, gwTx.Reference)
			return nil
		}
		plan, period = refPlan, refPeriod
		row = &models.BillingTransaction{
			GatewayTransactionID: gwTx.ID,
			TenantID:             tenantID,
			Reference:            gwTx.Reference,
			Plan:                 string(plan),
			PeriodType:           string(period),
			AmountInCents:        gwTx.AmountInCents,
			Currency:             gwTx.Currency,
			Status:               gwTx.Status,
			PaymentMethodType:    gwTx.PaymentMethodType,
		}
		if gwTx.Status != models.TransactionStatusApproved {
			row.FailureReason = gwTx.StatusMessage
		}
		if err := s.store.BillingTransactions().Create(row); err != nil {
			return err
		}
		if gwTx.Status == models.TransactionStatusApproved {
			return s.applyApprovedCharge(row, plan, period)
		}
		return nil
	}

	prevStatus := row.Status
	if prevStatus == models.TransactionStatusApproved {
		// Approved rows are immutable; re-delivered events are a no-op.
		return nil
	}

	row.Status = gwTx.Status
	row.PaymentMethodType = gwTx.PaymentMethodType
	if gwTx.Status != models.TransactionStatusApproved {
		row.FailureReason = gwTx.StatusMessage
	}
	if err := s.store.BillingTransactions().Save(row); err != nil {
		return err
	}

	if gwTx.Status == models.TransactionStatusApproved {
		return s.applyApprovedCharge(row, plans.Plan(row.Plan), plans.Period(row.PeriodType))
	}
	return nil
}

// mergeLedgerRow upserts the ledger row for a gateway transaction and returns
// it together with the status it had before the merge ("" when new).
func (s *Service) mergeLedgerRow(gwTx *wompi.Transaction, tenantID uint, plan plans.Plan, period plans.Period, recurring bool) (*models.BillingTransaction, string, error) {
	row, err := s.store.BillingTransactions().GetByGatewayID(gwTx.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
		row = &models.BillingTransaction{
			GatewayTransactionID: gwTx.ID,
			TenantID:             tenantID,
			Reference:            gwTx.Reference,
			Plan:                 string(plan),
			PeriodType:           string(period),
			AmountInCents:        gwTx.AmountInCents,
			Currency:             gwTx.Currency,
			Status:               gwTx.Status,
			PaymentMethodType:    gwTx.PaymentMethodType,
			IsRecurring:          recurring,
		}
		if gwTx.Status != models.TransactionStatusApproved {
			row.FailureReason = gwTx.StatusMessage
		}
		return row, "", s.store.BillingTransactions().Create(row)
	}

	prevStatus := row.Status
	if prevStatus == models.TransactionStatusApproved {
		return row, prevStatus, nil
	}
	row.Status = gwTx.Status
	row.PaymentMethodType = gwTx.PaymentMethodType
	if gwTx.Status != models.TransactionStatusApproved {
		row.FailureReason = gwTx.StatusMessage
	}
	return row, prevStatus, s.store.BillingTransactions().Save(row)
}

// applyApprovedCharge drives the state machine for a charge that just turned
// APPROVED: extend a matching active subscription, otherwise (re)activate.
func (s *Service) applyApprovedCharge(row *models.BillingTransaction, plan plans.Plan, period plans.Period) error {
	tenant, err := s.store.Tenants().GetByID(row.TenantID)
	if err != nil {
		return mapNotFound(err, ErrTenantNotFound)
	}

	sub, err := s.store.Subscriptions().GetByTenantID(row.TenantID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if sub != nil && sub.Status == models.SubscriptionStatusActive && sub.Plan == string(plan) {
		sub, err = s.lifecycle.Extend(row.TenantID, period)
		if err != nil {
			return err
		}
		s.notifier.SubscriptionRenewed(tenant, sub)
	} else {
		sub, err = s.lifecycle.Activate(row.TenantID, plan, period)
		if err != nil {
			return err
		}
		s.notifier.PlanActivated(tenant, sub)
	}

	// Link the ledger row to the subscription it paid for; the row itself
	// stays immutable otherwise.
	row.SubscriptionID = &sub.ID
	return s.store.BillingTransactions().Save(row)
}

// ActivatePlan is the admin entry point into the activate transition.
func (s *Service) ActivatePlan(ctx context.Context, tenantID uint, plan plans.Plan, period plans.Period) (*SubscriptionStatus, error) {
	sub, err := s.lifecycle.Activate(tenantID, plan, period)
	if err != nil {
		return nil, err
	}
	if tenant, terr := s.store.Tenants().GetByID(tenantID); terr == nil {
		s.notifier.PlanActivated(tenant, sub)
	}
	return s.GetSubscriptionStatus(ctx, tenantID)
}

// SuspendPlan is the admin entry point into the suspend transition.
func (s *Service) SuspendPlan(ctx context.Context, tenantID uint, reason string) (*SubscriptionStatus, error) {
	if _, err := s.lifecycle.Suspend(tenantID, reason); err != nil {
		return nil, err
	}
	if tenant, terr := s.store.Tenants().GetByID(tenantID); terr == nil {
		s.notifier.PlanSuspended(tenant, reason)
	}
	return s.GetSubscriptionStatus(ctx, tenantID)
}

// ReactivatePlan is the admin entry point into the reactivate transition.
func (s *Service) ReactivatePlan(ctx context.Context, tenantID uint) (*SubscriptionStatus, error) {
	if _, err := s.lifecycle.Reactivate(tenantID); err != nil {
		return nil, err
	}
	return s.GetSubscriptionStatus(ctx, tenantID)
}

// ChangePlan is the admin entry point into the plan-change transition.
func (s *Service) ChangePlan(ctx context.Context, tenantID uint, newPlan plans.Plan) (*SubscriptionStatus, error) {
	tenant, err := s.store.Tenants().GetByID(tenantID)
	if err != nil {
		return nil, mapNotFound(err, ErrTenantNotFound)
	}
	oldPlan := tenant.CurrentPlan()

	if _, err := s.lifecycle.ChangePlan(tenantID, newPlan); err != nil {
		return nil, err
	}
	s.notifier.PlanChanged(tenant, oldPlan, newPlan)
	return s.GetSubscriptionStatus(ctx, tenantID)
}

// newCheckoutReference mints the reference a charge carries through the
// gateway: INV-<tenantID>-<plan>-<period>-<nonce>. The reference lets a
// webhook that arrives before VerifyPayment still be attributed.
func newCheckoutReference(tenantID uint, plan plans.Plan, period plans.Period) string {
	return fmt.Sprintf("INV-%d-%s-%s-%s", tenantID, plan, period, uuid.NewString())
}

func parseCheckoutReference(reference string) (uint, plans.Plan, plans.Period, error) {
	parts := strings.Split(reference, "-")
	if len(parts) < 5 || parts[0] != "INV" {
		return 0, "", "", fmt.Errorf("billing: reference %q is not a checkout reference", reference)
	}
	var tenantID uint
	if _, err := fmt.Sscanf(parts[1], "%d", &tenantID); err != nil || tenantID == 0 {
		return 0, "", "", fmt.Errorf("billing: reference %q has no tenant id", reference)
	}
	plan, err := plans.ParsePlan(parts[2])
	if err != nil {
		return 0, "", "", err
	}
	period, err := plans.ParsePeriod(parts[3])
	if err != nil {
		return 0, "", "", err
	}
	return tenantID, plan, period, nil
}
