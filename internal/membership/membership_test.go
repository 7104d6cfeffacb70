package membership

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/homeledger/memberships/internal/db"
	"github.com/homeledger/memberships/internal/models"
	"github.com/homeledger/memberships/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contractor = "contractor-1"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type countingRecorder struct {
	mu        sync.Mutex
	ops       map[string]int
	failures  map[string]int
	exhausted int
	savings   decimal.Decimal
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: map[string]int{}, failures: map[string]int{}, savings: decimal.Zero}
}

func (r *countingRecorder) ObserveOperation(operation string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[operation]++
	if err != nil {
		r.failures[operation]++
	}
}

func (r *countingRecorder) ObserveQuotaExhausted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted++
}

func (r *countingRecorder) ObserveSavings(amount decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savings = r.savings.Add(amount)
}

type fixture struct {
	svc      *Service
	store    *store.GormStore
	clock    *testClock
	recorder *countingRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "membership-test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	st := store.NewGormStore(conn)
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	recorder := newCountingRecorder()
	return &fixture{
		svc:      New(st, clock.Now, recorder),
		store:    st,
		clock:    clock,
		recorder: recorder,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "expected %s, got %s", want, got.String())
}

func (f *fixture) annualPlan(t *testing.T) *models.Plan {
	t.Helper()
	plan, err := f.svc.Plans.Create(context.Background(), contractor, PlanDraft{
		Name:         "Comfort Club",
		Color:        "#1e88e5",
		Price:        dec("300"),
		BillingCycle: models.BillingCycleAnnual,
		IncludedServices: []models.IncludedService{
			{ServiceType: "hvac-tuneup", Quantity: 2, Description: "Seasonal tune-up"},
		},
		Benefits: models.Benefits{
			DiscountPercent:    dec("15"),
			PriorityScheduling: true,
			WaiveDiagnosticFee: true,
		},
		RenewalReminderDays: 30,
	})
	require.NoError(t, err)
	return plan
}

func (f *fixture) enroll(t *testing.T, planID, startDate string) *models.Membership {
	t.Helper()
	m, err := f.svc.Memberships.Create(context.Background(), contractor, planID, MembershipRequest{
		CustomerID:    "cust-1",
		CustomerName:  "Dana Homeowner",
		CustomerEmail: "dana@example.com",
		StartDate:     startDate,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) memberCount(t *testing.T, planID string) int {
	t.Helper()
	plan, err := f.svc.Plans.Get(context.Background(), contractor, planID)
	require.NoError(t, err)
	return plan.MemberCount
}

func (f *fixture) reload(t *testing.T, id string) *models.Membership {
	t.Helper()
	m, err := f.svc.Memberships.Get(context.Background(), contractor, id)
	require.NoError(t, err)
	return m
}

func assertSavingsConsistent(t *testing.T, m *models.Membership) {
	t.Helper()
	assert.Truef(t, m.TotalSavings.Equal(m.SavingsFromHistory()),
		"total savings %s does not match history %s", m.TotalSavings, m.SavingsFromHistory())
	for _, tracker := range m.ServicesUsed {
		assert.GreaterOrEqual(t, tracker.UsedCount, 0)
		assert.LessOrEqual(t, tracker.UsedCount, tracker.IncludedCount)
	}
}
