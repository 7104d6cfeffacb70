package membership

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/homeledger/memberships/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordServiceUsage_StopsExactlyAtQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.annualPlan(t)
	m := f.enroll(t, plan.ID, "")

	first, err := f.svc.Benefits.RecordServiceUsage(ctx, contractor, m.ID, "hvac-tuneup", "job-1")
	require.NoError(t, err)
	assert.Equal(t, UsageResult{Success: true, UsedCount: 1, IncludedCount: 2, RemainingCount: 1}, first)

	second, err := f.svc.Benefits.RecordServiceUsage(ctx, contractor, m.ID, "hvac-tuneup", "job-2")
	require.NoError(t, err)
	assert.Equal(t, UsageResult{Success: true, UsedCount: 2, IncludedCount: 2, RemainingCount: 0}, second)

	before := f.reload(t, m.ID)

	third, err := f.svc.Benefits.RecordServiceUsage(ctx, contractor, m.ID, "hvac-tuneup", "job-3")
	require.NoError(t, err)
	assert.Equal(t, UsageResult{Success: false, UsedCount: 2, IncludedCount: 2}, third)

	after := f.reload(t, m.ID)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.ServicesUsed, after.ServicesUsed)
	assert.Equal(t, []string{"job-1", "job-2"}, after.ServicesUsed[0].JobIDs)
	require.NotNil(t, after.ServicesUsed[0].LastUsedDate)
	assert.Equal(t, 1, f.recorder.exhausted)
	assertSavingsConsistent(t, after)
}

func TestRecordServiceUsage_UnknownServiceType(t *testing.T) {
	f := newFixture(t)
	plan := f.annualPlan(t)
	m := f.enroll(t, plan.ID, "")

	_, err := f.svc.Benefits.RecordServiceUsage(context.Background(), contractor, m.ID, "roof-inspection", "job-1")
	require.ErrorIs(t, err, ErrValidation)
}

func TestRecordServiceUsage_ConcurrentCallsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan, err := f.svc.Plans.Create(ctx, contractor, PlanDraft{
		Name:             "Gutter Guard",
		Price:            dec("120"),
		BillingCycle:     models.BillingCycleAnnual,
		IncludedServices: []models.IncludedService{{ServiceType: "gutter-clean", Quantity: 5}},
	})
	require.NoError(t, err)
	m := f.enroll(t, plan.ID, "")

	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, errUse := f.svc.Benefits.RecordServiceUsage(ctx, contractor, m.ID, "gutter-clean", fmt.Sprintf("job-%d", i))
			mu.Lock()
			defer mu.Unlock()
			if errUse != nil {
				failures++
				return
			}
			if res.Success {
				successes++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, failures)
	assert.Equal(t, 5, successes)
	stored := f.reload(t, m.ID)
	assert.Equal(t, 5, stored.ServicesUsed[0].UsedCount)
	assert.Len(t, stored.ServicesUsed[0].JobIDs, 5)
}

func TestApplyDiscount_FifteenPercentOfTwoHundred(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.annualPlan(t)
	m := f.enroll(t, plan.ID, "")

	res, err := f.svc.Benefits.ApplyDiscount(ctx, contractor, m.ID, "job-9", dec("200"))
	require.NoError(t, err)
	assertDecimal(t, "30", res.DiscountAmount)
	assertDecimal(t, "170", res.NewTotal)
	assertDecimal(t, "30", res.TotalSavings)

	stored := f.reload(t, m.ID)
	assertDecimal(t, "30", stored.TotalSavings)
	require.Len(t, stored.DiscountsApplied, 1)
	assert.Equal(t, "job-9", stored.DiscountsApplied[0].JobID)
	assertDecimal(t, "15", stored.DiscountsApplied[0].DiscountPercent)
	assertSavingsConsistent(t, stored)
	assertDecimal(t, "30", f.recorder.savings)
}

func TestApplyDiscount_RoundsToCentsAndHandlesNoPercent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.annualPlan(t)
	m := f.enroll(t, plan.ID, "")

	res, err := f.svc.Benefits.ApplyDiscount(ctx, contractor, m.ID, "job-1", dec("99.99"))
	require.NoError(t, err)
	assertDecimal(t, "15.00", res.DiscountAmount)
	assertDecimal(t, "84.99", res.NewTotal)

	plain, err := f.svc.Plans.Create(ctx, contractor, PlanDraft{Name: "Basic", Price: dec("10"), BillingCycle: models.BillingCycleMonthly})
	require.NoError(t, err)
	pm := f.enroll(t, plain.ID, "")
	res, err = f.svc.Benefits.ApplyDiscount(ctx, contractor, pm.ID, "job-2", dec("80"))
	require.NoError(t, err)
	assertDecimal(t, "0", res.DiscountAmount)
	assertDecimal(t, "80", res.NewTotal)
	assert.Len(t, f.reload(t, pm.ID).DiscountsApplied, 1)
}

func TestWaiveFee_AccumulatesSavings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.annualPlan(t)
	m := f.enroll(t, plan.ID, "")

	_, err := f.svc.Benefits.ApplyDiscount(ctx, contractor, m.ID, "job-1", dec("200"))
	require.NoError(t, err)
	res, err := f.svc.Benefits.WaiveFee(ctx, contractor, m.ID, "job-1", FeeTypeDiagnostic, dec("89"))
	require.NoError(t, err)
	assert.Equal(t, FeeTypeDiagnostic, res.FeeType)
	assertDecimal(t, "119", res.TotalSavings)

	stored := f.reload(t, m.ID)
	require.Len(t, stored.FeesWaived, 1)
	assertDecimal(t, "89", stored.FeesWaived[0].FeeAmount)
	assertSavingsConsistent(t, stored)

	_, err = f.svc.Benefits.WaiveFee(ctx, contractor, m.ID, "job-1", "", dec("10"))
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Benefits.WaiveFee(ctx, contractor, m.ID, "job-1", FeeTypeTrip, dec("-1"))
	require.ErrorIs(t, err, ErrValidation)
}

// Fee waivers follow the same rule as discounts: only active memberships
// may be credited. Expired and cancelled memberships are rejected.
func TestWaiveFee_RequiresActiveMembershipLikeDiscounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.annualPlan(t)

	expiredMember := f.enroll(t, plan.ID, "2023-01-01")
	expired, err := f.svc.Memberships.Expire(ctx, contractor, expiredMember.ID)
	require.NoError(t, err)
	require.True(t, expired)

	_, err = f.svc.Benefits.WaiveFee(ctx, contractor, expiredMember.ID, "job-1", FeeTypeTrip, dec("49"))
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Benefits.ApplyDiscount(ctx, contractor, expiredMember.ID, "job-1", dec("100"))
	require.ErrorIs(t, err, ErrInvalidState)

	stored := f.reload(t, expiredMember.ID)
	assert.Empty(t, stored.FeesWaived)
	assert.True(t, stored.TotalSavings.IsZero())
}

func TestCancelledMembership_BlocksEveryBenefitUntilRenewed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.annualPlan(t)
	m := f.enroll(t, plan.ID, "")

	_, err := f.svc.Memberships.Cancel(ctx, contractor, m.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Benefits.RecordServiceUsage(ctx, contractor, m.ID, "hvac-tuneup", "job-1")
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Benefits.ApplyDiscount(ctx, contractor, m.ID, "job-1", dec("100"))
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Benefits.WaiveFee(ctx, contractor, m.ID, "job-1", FeeTypeDiagnostic, dec("50"))
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Memberships.Renew(ctx, contractor, m.ID)
	require.NoError(t, err)
	res, err := f.svc.Benefits.RecordServiceUsage(ctx, contractor, m.ID, "hvac-tuneup", "job-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestCheckServiceAvailability(t *testing.T) {
	m := &models.Membership{
		Status: models.MembershipStatusActive,
		ServicesUsed: []models.ServiceUsage{
			{ServiceType: "hvac-tuneup", UsedCount: 1, IncludedCount: 2},
			{ServiceType: "filter-swap", UsedCount: 3, IncludedCount: 3},
		},
	}

	assert.Equal(t, Availability{Available: true, UsedCount: 1, IncludedCount: 2, RemainingCount: 1}, CheckServiceAvailability(m, "hvac-tuneup"))
	assert.Equal(t, Availability{Available: false, UsedCount: 3, IncludedCount: 3, RemainingCount: 0}, CheckServiceAvailability(m, "filter-swap"))
	assert.Equal(t, Availability{Reason: ReasonServiceNotIncluded}, CheckServiceAvailability(m, "roofing"))
	assert.Equal(t, Availability{Reason: ReasonNoActiveMembership}, CheckServiceAvailability(nil, "hvac-tuneup"))

	m.Status = models.MembershipStatusExpired
	assert.Equal(t, Availability{Reason: ReasonNoActiveMembership}, CheckServiceAvailability(m, "hvac-tuneup"))
}

func TestCalculateMembershipBenefits_PreviewDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.annualPlan(t)
	m := f.enroll(t, plan.ID, "")

	quote := Quote{
		Subtotal:    dec("400"),
		ServiceType: "hvac-tuneup",
		LineItems: []QuoteLineItem{
			{Type: FeeTypeDiagnostic, Amount: dec("89")},
			{Type: FeeTypeTrip, Amount: dec("35")},
			{Type: "labor", Amount: dec("276")},
		},
	}
	summary, err := f.svc.Benefits.Preview(ctx, contractor, m.ID, quote)
	require.NoError(t, err)

	assert.True(t, summary.HasActiveMembership)
	assertDecimal(t, "60", summary.DiscountAmount)
	// Only the diagnostic fee is waived; the plan does not waive trip fees.
	require.Len(t, summary.WaivedFees, 1)
	assert.Equal(t, FeeTypeDiagnostic, summary.WaivedFees[0].FeeType)
	assertDecimal(t, "149", summary.TotalDiscount)
	assert.True(t, summary.PriorityScheduling)
	assert.False(t, summary.EmergencyResponse)
	require.NotNil(t, summary.ServiceAvailability)
	assert.True(t, summary.ServiceAvailability.Available)
	assert.Equal(t, 2, summary.ServiceAvailability.RemainingCount)

	stored := f.reload(t, m.ID)
	assert.Equal(t, m.Version, stored.Version)
	assert.Empty(t, stored.DiscountsApplied)
	assert.Empty(t, stored.FeesWaived)
}

func TestCalculateMembershipBenefits_InactiveGetsNothing(t *testing.T) {
	m := &models.Membership{Status: models.MembershipStatusCancelled}
	summary := CalculateMembershipBenefits(m, Quote{Subtotal: dec("100"), ServiceType: "hvac-tuneup"})

	assert.False(t, summary.HasActiveMembership)
	assert.True(t, summary.TotalDiscount.IsZero())
	assert.Empty(t, summary.WaivedFees)
	require.NotNil(t, summary.ServiceAvailability)
	assert.Equal(t, ReasonNoActiveMembership, summary.ServiceAvailability.Reason)
}
