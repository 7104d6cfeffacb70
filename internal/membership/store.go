package membership

import (
	"context"

	"github.com/homeledger/memberships/internal/models"
	"github.com/homeledger/memberships/internal/store"
)

// Store is the persistence surface the services need. store.GormStore implements it.
type Store interface {
	CreatePlan(ctx context.Context, plan *models.Plan) error
	GetPlan(ctx context.Context, contractorID, id string) (*models.Plan, error)
	ListPlans(ctx context.Context, contractorID string, includeInactive bool) ([]models.Plan, error)
	PatchPlan(ctx context.Context, contractorID, id string, updates map[string]any) (*models.Plan, error)

	CreateMembership(ctx context.Context, m *models.Membership) error
	GetMembership(ctx context.Context, contractorID, id string) (*models.Membership, error)
	ListMemberships(ctx context.Context, contractorID string, filter store.MembershipFilter) ([]models.Membership, error)
	MutateMembership(ctx context.Context, contractorID, id string, fn store.MutateFunc) (*models.Membership, error)
}

var _ Store = (*store.GormStore)(nil)
