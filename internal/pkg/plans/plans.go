package plans

import (
	"fmt"
	"math"
	"strings"
)

// Plan is a subscription tier. The set is closed: every dispatch over plans
// is an exhaustive switch that panics on unknown values, so a new tier is a
// compile-time-visible change everywhere it matters.
type Plan string

const (
	PlanEmprendedor Plan = "EMPRENDEDOR"
	PlanPyme        Plan = "PYME"
	PlanEmpresarial Plan = "EMPRESARIAL"
)

// Period is the billing cadence of a subscription.
type Period string

const (
	PeriodMonthly   Period = "MONTHLY"
	PeriodQuarterly Period = "QUARTERLY"
	PeriodAnnual    Period = "ANNUAL"
)

// Unlimited marks a quota field with no ceiling.
const Unlimited = -1

// Limits holds the per-plan resource ceilings mirrored onto a tenant when a
// plan is applied.
type Limits struct {
	MaxUsers       int
	MaxAccountants int
	MaxProducts    int
	MaxInvoices    int
	MaxWarehouses  int
}

// ParsePlan normalizes user input to a known plan.
func ParsePlan(s string) (Plan, error) {
	switch Plan(strings.ToUpper(strings.TrimSpace(s))) {
	case PlanEmprendedor:
		return PlanEmprendedor, nil
	case PlanPyme:
		return PlanPyme, nil
	case PlanEmpresarial:
		return PlanEmpresarial, nil
	default:
		return "", fmt.Errorf("plans: unknown plan %q", s)
	}
}

// ParsePeriod normalizes user input to a known billing period.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToUpper(strings.TrimSpace(s))) {
	case PeriodMonthly:
		return PeriodMonthly, nil
	case PeriodQuarterly:
		return PeriodQuarterly, nil
	case PeriodAnnual:
		return PeriodAnnual, nil
	default:
		return "", fmt.Errorf("plans: unknown period %q", s)
	}
}

// LimitsOf returns the resource ceilings for a plan. Unknown plans are a
// programming error.
func LimitsOf(p Plan) Limits {
	switch p {
	case PlanEmprendedor:
		return Limits{
			MaxUsers:       2,
			MaxAccountants: 1,
			MaxProducts:    50,
			MaxInvoices:    50,
			MaxWarehouses:  1,
		}
	case PlanPyme:
		return Limits{
			MaxUsers:       10,
			MaxAccountants: 3,
			MaxProducts:    2000,
			MaxInvoices:    500,
			MaxWarehouses:  3,
		}
	case PlanEmpresarial:
		return Limits{
			MaxUsers:       Unlimited,
			MaxAccountants: 10,
			MaxProducts:    Unlimited,
			MaxInvoices:    Unlimited,
			MaxWarehouses:  Unlimited,
		}
	default:
		panic(fmt.Sprintf("plans: unknown plan %q", p))
	}
}

// MonthlyPriceInCents is the list price per month in COP cents.
func MonthlyPriceInCents(p Plan) int64 {
	switch p {
	case PlanEmprendedor:
		return 0
	case PlanPyme:
		return 8990000 // $89.900 COP
	case PlanEmpresarial:
		return 24990000 // $249.900 COP
	default:
		panic(fmt.Sprintf("plans: unknown plan %q", p))
	}
}

// PeriodDays returns the subscription duration granted by a period.
func PeriodDays(p Period) int {
	switch p {
	case PeriodMonthly:
		return 30
	case PeriodQuarterly:
		return 90
	case PeriodAnnual:
		return 365
	default:
		panic(fmt.Sprintf("plans: unknown period %q", p))
	}
}

func periodMultiplier(p Period) int {
	switch p {
	case PeriodMonthly:
		return 1
	case PeriodQuarterly:
		return 3
	case PeriodAnnual:
		return 12
	default:
		panic(fmt.Sprintf("plans: unknown period %q", p))
	}
}

func periodDiscount(p Period) float64 {
	switch p {
	case PeriodMonthly:
		return 0
	case PeriodQuarterly:
		return 0.10
	case PeriodAnnual:
		return 0.20
	default:
		panic(fmt.Sprintf("plans: unknown period %q", p))
	}
}

// Price computes the charge for one period of a plan in COP cents:
// monthly price x period multiplier, minus the period discount, rounded to
// the nearest cent.
func Price(p Plan, period Period) int64 {
	base := float64(MonthlyPriceInCents(p) * int64(periodMultiplier(period)))
	return int64(math.Round(base * (1 - periodDiscount(period))))
}

// IsFree reports whether the plan is the non-purchasable base tier.
func IsFree(p Plan) bool {
	return p == PlanEmprendedor
}

// DisplayName returns the customer-facing tier name.
func DisplayName(p Plan) string {
	switch p {
	case PlanEmprendedor:
		return "Emprendedor"
	case PlanPyme:
		return "Pyme"
	case PlanEmpresarial:
		return "Empresarial"
	default:
		panic(fmt.Sprintf("plans: unknown plan %q", p))
	}
}

// FormatPrice renders a COP cent amount as a customer-facing price string,
// e.g. 8990000 -> "$ 89.900 COP".
func FormatPrice(cents int64) string {
	units := cents / 100
	s := fmt.Sprintf("%d", units)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return "$ " + b.String() + " COP"
}
