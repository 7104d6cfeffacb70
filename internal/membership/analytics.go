package membership

import (
	"context"
	"time"

	"github.com/homeledger/memberships/internal/models"
	"github.com/homeledger/memberships/internal/store"
	"github.com/shopspring/decimal"
)

// ExpiringWindowDays is the look-ahead used by Stats.ExpiringWithin30Days.
const ExpiringWindowDays = 30

// RecurringRevenuePolicy maps a billing cycle to the number of months one
// period covers for recurring revenue. Cycles missing from the table add
// nothing to MRR or ARR: one-time plans do not recur, and quarterly plans
// are left out to match the existing reports.
var RecurringRevenuePolicy = map[models.BillingCycle]int64{
	models.BillingCycleMonthly: 1,
	models.BillingCycleAnnual:  12,
}

// MonthlyRevenue returns the MRR contribution of one period's price and
// whether the cycle counts as recurring at all.
func MonthlyRevenue(cycle models.BillingCycle, price decimal.Decimal) (decimal.Decimal, bool) {
	months, ok := RecurringRevenuePolicy[cycle]
	if !ok || months <= 0 {
		return decimal.Zero, false
	}
	return price.Div(decimal.NewFromInt(months)), true
}

// PlanStats is the per-plan slice of Stats.
type PlanStats struct {
	PlanID        string          `json:"plan_id"`
	PlanName      string          `json:"plan_name"`
	Active        bool            `json:"active"`
	ActiveMembers int             `json:"active_members"`
	TotalMembers  int             `json:"total_members"`
	Revenue       decimal.Decimal `json:"revenue"`
}

// Stats is the contractor-wide membership summary.
type Stats struct {
	TotalMembers            int             `json:"total_members"`
	ActiveMembers           int             `json:"active_members"`
	ExpiredMembers          int             `json:"expired_members"`
	CancelledMembers        int             `json:"cancelled_members"`
	ExpiringWithin30Days    int             `json:"expiring_within_30_days"`
	TotalRevenue            decimal.Decimal `json:"total_revenue"`
	MonthlyRecurringRevenue decimal.Decimal `json:"monthly_recurring_revenue"`
	AnnualRecurringRevenue  decimal.Decimal `json:"annual_recurring_revenue"`
	TotalSavingsProvided    decimal.Decimal `json:"total_savings_provided"`
	AverageSavingsPerMember decimal.Decimal `json:"average_savings_per_member"`
	PlanBreakdown           []PlanStats     `json:"plan_breakdown"`
	MostPopularPlan         *PlanStats      `json:"most_popular_plan"`
	RenewalCount            int             `json:"renewal_count"`
	CancellationCount       int             `json:"cancellation_count"`
	RenewalRate             decimal.Decimal `json:"renewal_rate"` // Percentage.
}

// Aggregator computes read-only reports over plans and memberships.
type Aggregator struct {
	store Store
	now   func() time.Time
}

// ListExpiring returns active memberships ending within withinDays, soonest first.
func (a *Aggregator) ListExpiring(ctx context.Context, contractorID string, withinDays int) ([]models.Membership, error) {
	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	if withinDays < 0 {
		return nil, validationf("within_days must not be negative")
	}
	from := a.now()
	to := from.AddDate(0, 0, withinDays)
	return a.store.ListMemberships(ctx, contractorID, store.MembershipFilter{
		Status:     models.MembershipStatusActive,
		EndFrom:    &from,
		EndTo:      &to,
		OrderByEnd: true,
	})
}

// ComputeStats aggregates every membership of the contractor in one pass.
func (a *Aggregator) ComputeStats(ctx context.Context, contractorID string) (*Stats, error) {
	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	plans, errPlans := a.store.ListPlans(ctx, contractorID, true)
	if errPlans != nil {
		return nil, errPlans
	}
	memberships, errList := a.store.ListMemberships(ctx, contractorID, store.MembershipFilter{})
	if errList != nil {
		return nil, errList
	}
	return summarize(plans, memberships, a.now()), nil
}

func summarize(plans []models.Plan, memberships []models.Membership, now time.Time) *Stats {
	stats := &Stats{
		TotalRevenue:            decimal.Zero,
		MonthlyRecurringRevenue: decimal.Zero,
		AnnualRecurringRevenue:  decimal.Zero,
		TotalSavingsProvided:    decimal.Zero,
		AverageSavingsPerMember: decimal.Zero,
		PlanBreakdown:           make([]PlanStats, 0, len(plans)),
		RenewalRate:             decimal.Zero,
	}

	byPlan := make(map[string]int, len(plans))
	for _, plan := range plans {
		byPlan[plan.ID] = len(stats.PlanBreakdown)
		stats.PlanBreakdown = append(stats.PlanBreakdown, PlanStats{
			PlanID:   plan.ID,
			PlanName: plan.Name,
			Active:   plan.Active,
			Revenue:  decimal.Zero,
		})
	}

	expiringCutoff := now.AddDate(0, 0, ExpiringWindowDays)
	mrr := decimal.Zero
	for i := range memberships {
		m := &memberships[i]
		stats.TotalMembers++
		stats.TotalSavingsProvided = stats.TotalSavingsProvided.Add(m.TotalSavings)
		if m.RenewalCount > 0 || m.RenewedAt != nil {
			stats.RenewalCount++
		}

		idx, planKnown := byPlan[m.PlanID]
		if planKnown {
			stats.PlanBreakdown[idx].TotalMembers++
		}

		switch m.Status {
		case models.MembershipStatusActive:
			stats.ActiveMembers++
			stats.TotalRevenue = stats.TotalRevenue.Add(m.Price)
			if monthly, recurring := MonthlyRevenue(m.BillingCycle, m.Price); recurring {
				mrr = mrr.Add(monthly)
			}
			if !m.EndDate.Before(now) && !m.EndDate.After(expiringCutoff) {
				stats.ExpiringWithin30Days++
			}
			if planKnown {
				stats.PlanBreakdown[idx].ActiveMembers++
				stats.PlanBreakdown[idx].Revenue = stats.PlanBreakdown[idx].Revenue.Add(m.Price)
			}
		case models.MembershipStatusExpired:
			stats.ExpiredMembers++
		case models.MembershipStatusCancelled:
			stats.CancelledMembers++
		}
	}

	stats.CancellationCount = stats.CancelledMembers
	stats.MonthlyRecurringRevenue = mrr.Round(2)
	stats.AnnualRecurringRevenue = mrr.Mul(decimal.NewFromInt(12)).Round(2)
	if stats.ActiveMembers > 0 {
		stats.AverageSavingsPerMember = stats.TotalSavingsProvided.Div(decimal.NewFromInt(int64(stats.ActiveMembers))).Round(2)
	}
	if denom := stats.ExpiredMembers + stats.CancelledMembers + stats.RenewalCount; denom > 0 {
		stats.RenewalRate = decimal.NewFromInt(int64(stats.RenewalCount)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(denom))).
			Round(2)
	}

	best := -1
	for i := range stats.PlanBreakdown {
		if stats.PlanBreakdown[i].ActiveMembers == 0 {
			continue
		}
		if best < 0 || stats.PlanBreakdown[i].ActiveMembers > stats.PlanBreakdown[best].ActiveMembers {
			best = i
		}
	}
	if best >= 0 {
		popular := stats.PlanBreakdown[best]
		stats.MostPopularPlan = &popular
	}
	return stats
}
