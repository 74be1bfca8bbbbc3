package billing

import (
	"context"
	"fmt"

	"github.com/AndresVelasco/Inventia/app/models"
	"github.com/AndresVelasco/Inventia/internal/pkg/plans"
)

// Resource is a quota-bound resource type. The set is closed; dispatch over
// it is exhaustive and panics on unknown values.
type Resource string

const (
	ResourceUser       Resource = "user"
	ResourceAccountant Resource = "accountant"
	ResourceEmployee   Resource = "employee"
	ResourceProduct    Resource = "product"
	ResourceInvoice    Resource = "invoice"
	ResourceWarehouse  Resource = "warehouse"
)

// CheckLimit rejects resource creation once the tenant's plan quota is
// exhausted. The read-then-act is advisory: two concurrent creators can both
// pass and overshoot by one, which is acceptable for a human-paced admin UI.
func (s *Service) CheckLimit(ctx context.Context, tenantID uint, resource Resource) error {
	_ = ctx
	tenant, err := s.store.Tenants().GetByID(tenantID)
	if err != nil {
		return mapNotFound(err, ErrTenantNotFound)
	}

	var (
		current int64
		limit   int
	)
	switch resource {
	case ResourceUser:
		limit = tenant.MaxUsers
		current, err = s.store.Users().CountByTenant(tenantID)
	case ResourceEmployee:
		// Employees count against the seat quota alongside everyone else.
		limit = tenant.MaxUsers
		current, err = s.store.Users().CountByTenant(tenantID)
	case ResourceAccountant:
		// Accountant seats are read from the catalog, not the tenant mirror.
		limit = plans.LimitsOf(tenant.CurrentPlan()).MaxAccountants
		current, err = s.store.Users().CountByTenantAndRole(tenantID, models.RoleAccountant)
	case ResourceProduct:
		limit = tenant.MaxProducts
		current, err = s.store.Usage().CountProducts(tenantID)
	case ResourceWarehouse:
		limit = tenant.MaxWarehouses
		current, err = s.store.Usage().CountWarehouses(tenantID)
	case ResourceInvoice:
		// Invoice quota is a rolling monthly limit.
		limit = tenant.MaxInvoices
		current, err = s.store.Usage().CountInvoicesInMonth(tenantID, s.now())
	default:
		panic(fmt.Sprintf("billing: unknown resource type %q", resource))
	}
	if err != nil {
		return err
	}

	if limit != plans.Unlimited && current >= int64(limit) {
		return &LimitReachedError{Resource: resource, Current: current, Limit: limit}
	}
	return nil
}
