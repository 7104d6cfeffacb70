package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/homeledger/memberships/internal/db"
	"github.com/homeledger/memberships/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "store-test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return NewGormStore(conn)
}

func seedPlan(t *testing.T, s *GormStore, contractorID, id string) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		ID:           id,
		ContractorID: contractorID,
		Name:         "Comfort Club",
		Price:        decimal.NewFromInt(300),
		BillingCycle: models.BillingCycleAnnual,
		IncludedServices: datatypes.JSONSlice[models.IncludedService]{
			{ServiceType: "hvac-tuneup", Quantity: 2},
		},
		Benefits: datatypes.NewJSONType(models.Benefits{DiscountPercent: decimal.NewFromInt(15)}),
		Active:   true,
	}
	require.NoError(t, s.CreatePlan(context.Background(), plan))
	return plan
}

func seedMembership(t *testing.T, s *GormStore, plan *models.Plan, id string, end time.Time) *models.Membership {
	t.Helper()
	m := &models.Membership{
		ID:               id,
		ContractorID:     plan.ContractorID,
		PlanID:           plan.ID,
		PlanName:         plan.Name,
		Price:            plan.Price,
		BillingCycle:     plan.BillingCycle,
		Benefits:         plan.Benefits,
		CustomerID:       "cust-" + id,
		CustomerName:     "Customer " + id,
		CustomerEmail:    id + "@example.com",
		Status:           models.MembershipStatusActive,
		StartDate:        end.AddDate(-1, 0, 0),
		EndDate:          end,
		RenewalDate:      end.AddDate(0, 0, -30),
		ServicesUsed:     datatypes.JSONSlice[models.ServiceUsage]{{ServiceType: "hvac-tuneup", IncludedCount: 2}},
		DiscountsApplied: datatypes.JSONSlice[models.DiscountRecord]{},
		FeesWaived:       datatypes.JSONSlice[models.FeeWaiver]{},
	}
	require.NoError(t, s.CreateMembership(context.Background(), m))
	return m
}

func TestCreateMembership_IncrementsMemberCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	plan := seedPlan(t, s, "c1", "plan-1")

	seedMembership(t, s, plan, "m1", time.Now().UTC().AddDate(1, 0, 0))
	seedMembership(t, s, plan, "m2", time.Now().UTC().AddDate(1, 0, 0))

	reloaded, err := s.GetPlan(ctx, "c1", plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.MemberCount)
}

func TestCreateMembership_MissingPlanRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := &models.Membership{
		ID:            "orphan",
		ContractorID:  "c1",
		PlanID:        "missing",
		PlanName:      "Ghost",
		BillingCycle:  models.BillingCycleMonthly,
		CustomerName:  "Ghost",
		CustomerEmail: "ghost@example.com",
		Status:        models.MembershipStatusActive,
	}
	err := s.CreateMembership(ctx, m)
	require.ErrorIs(t, err, ErrNotFound)

	_, errGet := s.GetMembership(ctx, "c1", "orphan")
	require.ErrorIs(t, errGet, ErrNotFound)
}

func TestGetPlan_ScopedByContractor(t *testing.T) {
	s := openTestStore(t)
	plan := seedPlan(t, s, "c1", "plan-1")

	_, err := s.GetPlan(context.Background(), "c2", plan.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPatchPlan_UnknownAndCounterGuard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	plan := seedPlan(t, s, "c1", "plan-1")

	_, err := s.PatchPlan(ctx, "c1", "nope", map[string]any{"name": "x"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.PatchPlan(ctx, "c1", plan.ID, map[string]any{"member_count": 10})
	require.Error(t, err)

	updated, err := s.PatchPlan(ctx, "c1", plan.ID, map[string]any{"name": "Premier", "active": false})
	require.NoError(t, err)
	assert.Equal(t, "Premier", updated.Name)
	assert.False(t, updated.Active)
}

func TestListPlans_ActiveFilterAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	first := seedPlan(t, s, "c1", "plan-1")
	second := seedPlan(t, s, "c1", "plan-2")
	seedPlan(t, s, "c2", "plan-3")

	_, err := s.PatchPlan(ctx, "c1", first.ID, map[string]any{"active": false})
	require.NoError(t, err)
	_, err = s.PatchPlan(ctx, "c1", second.ID, map[string]any{"sort_order": -1})
	require.NoError(t, err)

	active, err := s.ListPlans(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	all, err := s.ListPlans(ctx, "c1", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
}

func TestListMemberships_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	plan := seedPlan(t, s, "c1", "plan-1")
	now := time.Now().UTC()

	seedMembership(t, s, plan, "late", now.AddDate(0, 0, 40))
	seedMembership(t, s, plan, "soon", now.AddDate(0, 0, 10))

	from := now
	to := now.AddDate(0, 0, 30)
	rows, err := s.ListMemberships(ctx, "c1", MembershipFilter{
		Status:     models.MembershipStatusActive,
		EndFrom:    &from,
		EndTo:      &to,
		OrderByEnd: true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "soon", rows[0].ID)

	rows, err = s.ListMemberships(ctx, "c1", MembershipFilter{CustomerID: "cust-late"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "late", rows[0].ID)

	rows, err = s.ListMemberships(ctx, "c1", MembershipFilter{Search: "CUSTOMER SO"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "soon", rows[0].ID)

	rows, err = s.ListMemberships(ctx, "c2", MembershipFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMutateMembership_BumpsVersionAndAppliesDelta(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	plan := seedPlan(t, s, "c1", "plan-1")
	seedMembership(t, s, plan, "m1", time.Now().UTC().AddDate(1, 0, 0))

	updated, err := s.MutateMembership(ctx, "c1", "m1", func(m *models.Membership) (Mutation, error) {
		m.Status = models.MembershipStatusCancelled
		m.AutoRenew = false
		return Mutation{PlanMemberDelta: -1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)

	stored, err := s.GetMembership(ctx, "c1", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusCancelled, stored.Status)
	assert.Equal(t, int64(1), stored.Version)

	reloaded, err := s.GetPlan(ctx, "c1", plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.MemberCount)

	// The counter is floored at zero.
	_, err = s.MutateMembership(ctx, "c1", "m1", func(m *models.Membership) (Mutation, error) {
		return Mutation{PlanMemberDelta: -1}, nil
	})
	require.NoError(t, err)
	reloaded, err = s.GetPlan(ctx, "c1", plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.MemberCount)
}

func TestMutateMembership_SkipAndErrorLeaveRowUntouched(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	plan := seedPlan(t, s, "c1", "plan-1")
	seedMembership(t, s, plan, "m1", time.Now().UTC().AddDate(1, 0, 0))

	_, err := s.MutateMembership(ctx, "c1", "m1", func(m *models.Membership) (Mutation, error) {
		m.Notes = "should not persist"
		return Mutation{Skip: true}, nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.MutateMembership(ctx, "c1", "m1", func(m *models.Membership) (Mutation, error) {
		m.Notes = "should not persist"
		return Mutation{}, boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := s.GetMembership(ctx, "c1", "m1")
	require.NoError(t, err)
	assert.Empty(t, stored.Notes)
	assert.Equal(t, int64(0), stored.Version)

	_, err = s.MutateMembership(ctx, "c1", "missing", func(m *models.Membership) (Mutation, error) {
		return Mutation{}, nil
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListDueMemberships(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	plan := seedPlan(t, s, "c1", "plan-1")
	now := time.Now().UTC()

	seedMembership(t, s, plan, "ended", now.AddDate(0, 0, -1))
	seedMembership(t, s, plan, "reminder-due", now.AddDate(0, 0, 10))
	seedMembership(t, s, plan, "far", now.AddDate(0, 6, 0))

	rows, err := s.ListDueMemberships(ctx, now, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []string{"ended", "reminder-due"}, ids)
}
