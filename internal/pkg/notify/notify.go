package notify

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/AndresVelasco/Inventia/app/models"
	"github.com/AndresVelasco/Inventia/app/repository"
	"github.com/AndresVelasco/Inventia/internal/pkg/mail"
	"github.com/AndresVelasco/Inventia/internal/pkg/plans"
)

// MailNotifier emails billing events to a tenant's admin users. Every send is
// best-effort and runs outside the caller's transaction: a mail failure is
// logged and absorbed, never propagated into the billing transition.
type MailNotifier struct {
	store repository.Store
}

func NewMailNotifier(store repository.Store) *MailNotifier {
	return &MailNotifier{store: store}
}

func (n *MailNotifier) PlanActivated(tenant *models.Tenant, sub *models.Subscription) {
	subject := fmt.Sprintf("Your %s plan is active", plans.DisplayName(plans.Plan(sub.Plan)))
	body := fmt.Sprintf(
		"<p>Hi,</p><p>The <strong>%s</strong> plan for %s is now active until %s.</p>",
		plans.DisplayName(plans.Plan(sub.Plan)), tenant.Name, sub.EndDate.Format("2006-01-02"))
	n.sendToAdmins(tenant, subject, body)
}

func (n *MailNotifier) PlanChanged(tenant *models.Tenant, oldPlan, newPlan plans.Plan) {
	subject := "Your plan has changed"
	body := fmt.Sprintf(
		"<p>Hi,</p><p>The plan for %s changed from <strong>%s</strong> to <strong>%s</strong>. The billing period is unchanged.</p>",
		tenant.Name, plans.DisplayName(oldPlan), plans.DisplayName(newPlan))
	n.sendToAdmins(tenant, subject, body)
}

func (n *MailNotifier) PlanSuspended(tenant *models.Tenant, reason string) {
	subject := "Your subscription was suspended"
	body := fmt.Sprintf(
		"<p>Hi,</p><p>The subscription for %s was suspended: %s.</p><p>Please contact support to restore access.</p>",
		tenant.Name, reason)
	n.sendToAdmins(tenant, subject, body)
}

func (n *MailNotifier) SubscriptionRenewed(tenant *models.Tenant, sub *models.Subscription) {
	subject := "Your subscription was renewed"
	body := fmt.Sprintf(
		"<p>Hi,</p><p>The <strong>%s</strong> plan for %s was renewed and now runs until %s.</p>",
		plans.DisplayName(plans.Plan(sub.Plan)), tenant.Name, sub.EndDate.Format("2006-01-02"))
	n.sendToAdmins(tenant, subject, body)
}

func (n *MailNotifier) SubscriptionExpiring(tenant *models.Tenant, daysRemaining int) {
	subject := fmt.Sprintf("Your subscription expires in %d day(s)", daysRemaining)
	body := fmt.Sprintf(
		"<p>Hi,</p><p>The subscription for %s expires in %d day(s). Renew it to keep full access.</p>",
		tenant.Name, daysRemaining)
	n.sendToAdmins(tenant, subject, body)
}

func (n *MailNotifier) SubscriptionExpired(tenant *models.Tenant) {
	subject := "Your subscription has expired"
	body := fmt.Sprintf(
		"<p>Hi,</p><p>The subscription for %s has expired and the account is suspended. Purchase a plan to restore access.</p>",
		tenant.Name)
	n.sendToAdmins(tenant, subject, body)
}

func (n *MailNotifier) RecurringChargeFailed(tenant *models.Tenant, reason string) {
	subject := "We could not renew your subscription"
	body := fmt.Sprintf(
		"<p>Hi,</p><p>The automatic renewal for %s failed: %s.</p><p>Please update your payment method.</p>",
		tenant.Name, reason)
	n.sendToAdmins(tenant, subject, body)
}

// sendToAdmins fans one message out to every active admin of the tenant in a
// detached goroutine with its own error boundary.
func (n *MailNotifier) sendToAdmins(tenant *models.Tenant, subject, body string) {
	admins, err := n.store.Users().ListAdminsByTenant(tenant.ID)
	if err != nil {
		log.Errorf("[Notify] could not load admins for tenant %d: %v", tenant.ID, err)
		return
	}
	recipients := make([]string, 0, len(admins)+1)
	for _, admin := range admins {
		recipients = append(recipients, admin.Email)
	}
	if len(recipients) == 0 && tenant.BillingEmail != "" {
		recipients = append(recipients, tenant.BillingEmail)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[Notify] panic while sending %q for tenant %d: %v", subject, tenant.ID, r)
			}
		}()
		for _, to := range recipients {
			if err := mail.SendMail(to, subject, body); err != nil {
				log.Warnf("[Notify] could not send %q to %s: %v", subject, to, err)
			}
		}
	}()
}
