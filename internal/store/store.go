package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/homeledger/memberships/internal/db"
	"github.com/homeledger/memberships/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a plan or membership does not resolve in the contractor scope.
	ErrNotFound = errors.New("store: record not found")
	// ErrStaleVersion is returned when a membership changed between read and write.
	ErrStaleVersion = errors.New("store: stale version")
)

// MembershipFilter narrows ListMemberships. Zero fields do not filter.
type MembershipFilter struct {
	Status     models.MembershipStatus
	CustomerID string
	PlanID     string
	EndFrom    *time.Time // Inclusive lower bound on end_date.
	EndTo      *time.Time // Inclusive upper bound on end_date.
	Search     string     // Matches customer name or email.
	OrderByEnd bool       // Ascending end_date instead of newest first.
}

// Mutation tells MutateMembership what to do after the callback ran.
type Mutation struct {
	Skip            bool // Leave the row untouched.
	PlanMemberDelta int  // Applied atomically to the plan's member_count (-1, 0, +1).
}

// MutateFunc edits a locked membership in place.
type MutateFunc func(m *models.Membership) (Mutation, error)

// GormStore persists plans and memberships through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore.
func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

func (s *GormStore) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store: not initialized")
	}
	return nil
}

// CreatePlan inserts a plan.
func (s *GormStore) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if errReady := s.ready(); errReady != nil {
		return errReady
	}
	if plan == nil {
		return fmt.Errorf("gorm store: plan is nil")
	}
	if errCreate := s.db.WithContext(ctx).Create(plan).Error; errCreate != nil {
		return fmt.Errorf("gorm store: create plan: %w", errCreate)
	}
	return nil
}

// GetPlan loads a plan inside the contractor scope.
func (s *GormStore) GetPlan(ctx context.Context, contractorID, id string) (*models.Plan, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	var plan models.Plan
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND contractor_id = ?", strings.TrimSpace(id), contractorID).
		First(&plan).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gorm store: get plan: %w", errFind)
	}
	return &plan, nil
}

// ListPlans returns the contractor's plans ordered by sort order, newest first within a weight.
func (s *GormStore) ListPlans(ctx context.Context, contractorID string, includeInactive bool) ([]models.Plan, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	q := s.db.WithContext(ctx).Model(&models.Plan{}).Where("contractor_id = ?", contractorID)
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	var plans []models.Plan
	if errFind := q.Order("sort_order ASC").Order("created_at DESC").Find(&plans).Error; errFind != nil {
		return nil, fmt.Errorf("gorm store: list plans: %w", errFind)
	}
	return plans, nil
}

// PatchPlan applies column updates to a plan and returns the reloaded row.
// member_count is never accepted here.
func (s *GormStore) PatchPlan(ctx context.Context, contractorID, id string, updates map[string]any) (*models.Plan, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	if _, ok := updates["member_count"]; ok {
		return nil, fmt.Errorf("gorm store: member_count is not patchable")
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["updated_at"] = time.Now().UTC()

	var plan models.Plan
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Plan{}).
			Where("id = ? AND contractor_id = ?", id, contractorID).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("gorm store: patch plan: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if errFind := tx.Where("id = ? AND contractor_id = ?", id, contractorID).First(&plan).Error; errFind != nil {
			return fmt.Errorf("gorm store: reload plan: %w", errFind)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &plan, nil
}

// CreateMembership inserts a membership and increments its plan's member_count
// in one transaction. A plan that vanished in between rolls back the insert.
func (s *GormStore) CreateMembership(ctx context.Context, m *models.Membership) error {
	if errReady := s.ready(); errReady != nil {
		return errReady
	}
	if m == nil {
		return fmt.Errorf("gorm store: membership is nil")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(m).Error; errCreate != nil {
			return fmt.Errorf("gorm store: create membership: %w", errCreate)
		}
		res := tx.Model(&models.Plan{}).
			Where("id = ? AND contractor_id = ?", m.PlanID, m.ContractorID).
			UpdateColumn("member_count", gorm.Expr("member_count + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("gorm store: increment member count: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetMembership loads a membership inside the contractor scope.
func (s *GormStore) GetMembership(ctx context.Context, contractorID, id string) (*models.Membership, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	var m models.Membership
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND contractor_id = ?", strings.TrimSpace(id), contractorID).
		First(&m).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gorm store: get membership: %w", errFind)
	}
	return &m, nil
}

// ListMemberships returns the contractor's memberships matching filter.
func (s *GormStore) ListMemberships(ctx context.Context, contractorID string, filter MembershipFilter) ([]models.Membership, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	q := s.db.WithContext(ctx).Model(&models.Membership{}).Where("contractor_id = ?", contractorID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
		q = q.Where("customer_id = ?", customerID)
	}
	if planID := strings.TrimSpace(filter.PlanID); planID != "" {
		q = q.Where("plan_id = ?", planID)
	}
	if filter.EndFrom != nil {
		q = q.Where("end_date >= ?", *filter.EndFrom)
	}
	if filter.EndTo != nil {
		q = q.Where("end_date <= ?", *filter.EndTo)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+search+"%")
		q = q.Where(
			"("+db.CaseInsensitiveLikeExpr(s.db, "customer_name")+" OR "+db.CaseInsensitiveLikeExpr(s.db, "customer_email")+")",
			pattern, pattern,
		)
	}
	if filter.OrderByEnd {
		q = q.Order("end_date ASC")
	} else {
		q = q.Order("created_at DESC")
	}

	var rows []models.Membership
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("gorm store: list memberships: %w", errFind)
	}
	return rows, nil
}

// ListDueMemberships returns active memberships across all contractors whose
// period ended or whose renewal reminder is due and not yet sent.
func (s *GormStore) ListDueMemberships(ctx context.Context, now time.Time, limit int) ([]models.Membership, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	if limit <= 0 {
		limit = 500
	}
	var rows []models.Membership
	errFind := s.db.WithContext(ctx).
		Where("status = ?", models.MembershipStatusActive).
		Where("(end_date < ? OR (renewal_date <= ? AND renewal_reminder_sent_at IS NULL))", now, now).
		Order("end_date ASC").
		Limit(limit).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("gorm store: list due memberships: %w", errFind)
	}
	return rows, nil
}

// MutateMembership locks one membership, hands it to fn and writes the result
// back guarded by the version read under the lock. The plan counter delta is
// applied in the same transaction with an atomic SQL expression.
func (s *GormStore) MutateMembership(ctx context.Context, contractorID, id string, fn MutateFunc) (*models.Membership, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	if fn == nil {
		return nil, fmt.Errorf("gorm store: mutate func is nil")
	}

	var current models.Membership
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND contractor_id = ?", strings.TrimSpace(id), contractorID).
			First(&current).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("gorm store: lock membership: %w", errFind)
		}

		mutation, errFn := fn(&current)
		if errFn != nil {
			return errFn
		}
		if mutation.Skip {
			return nil
		}

		prevVersion := current.Version
		current.Version = prevVersion + 1
		current.UpdatedAt = time.Now().UTC()
		res := tx.Model(&current).
			Where("contractor_id = ? AND version = ?", contractorID, prevVersion).
			Select("*").
			Omit("id", "contractor_id", "created_at").
			Updates(&current)
		if res.Error != nil {
			return fmt.Errorf("gorm store: update membership: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleVersion
		}

		return applyMemberDelta(tx, contractorID, current.PlanID, mutation.PlanMemberDelta)
	})
	if errTx != nil {
		return nil, errTx
	}
	return &current, nil
}

// applyMemberDelta moves a plan's member_count by one step, never below zero.
// A plan missing from the scope is tolerated; memberships only hold a weak reference.
func applyMemberDelta(tx *gorm.DB, contractorID, planID string, delta int) error {
	if delta == 0 || strings.TrimSpace(planID) == "" {
		return nil
	}
	q := tx.Model(&models.Plan{}).Where("id = ? AND contractor_id = ?", planID, contractorID)
	var expr clause.Expr
	if delta > 0 {
		expr = gorm.Expr("member_count + ?", delta)
	} else {
		q = q.Where("member_count >= ?", -delta)
		expr = gorm.Expr("member_count - ?", -delta)
	}
	if errUpdate := q.UpdateColumn("member_count", expr).Error; errUpdate != nil {
		return fmt.Errorf("gorm store: adjust member count: %w", errUpdate)
	}
	return nil
}
