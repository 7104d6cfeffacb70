package membership

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homeledger/memberships/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var hundred = decimal.NewFromInt(100)

// PlanDraft carries the fields of a new plan.
type PlanDraft struct {
	Name                string                   `json:"name" validate:"required,max=255"`
	Description         string                   `json:"description" validate:"max=4000"`
	Color               string                   `json:"color" validate:"max=32"`
	Price               decimal.Decimal          `json:"price"`
	BillingCycle        models.BillingCycle      `json:"billing_cycle" validate:"required"`
	IncludedServices    []models.IncludedService `json:"included_services" validate:"dive"`
	Benefits            models.Benefits          `json:"benefits"`
	RenewalReminderDays int                      `json:"renewal_reminder_days" validate:"gte=0,lte=365"`
	AutoRenewDefault    bool                     `json:"auto_renew_default"`
	SortOrder           int                      `json:"sort_order"`
}

// PlanPatch carries optional plan field updates. Nil fields are left alone.
type PlanPatch struct {
	Name                *string                   `json:"name" validate:"omitempty,max=255"`
	Description         *string                   `json:"description" validate:"omitempty,max=4000"`
	Color               *string                   `json:"color" validate:"omitempty,max=32"`
	Price               *decimal.Decimal          `json:"price"`
	BillingCycle        *models.BillingCycle      `json:"billing_cycle"`
	IncludedServices    *[]models.IncludedService `json:"included_services"`
	Benefits            *models.Benefits          `json:"benefits"`
	Active              *bool                     `json:"active"`
	RenewalReminderDays *int                      `json:"renewal_reminder_days" validate:"omitempty,gte=0,lte=365"`
	AutoRenewDefault    *bool                     `json:"auto_renew_default"`
	SortOrder           *int                      `json:"sort_order"`
}

// PlanCatalog owns plan definitions. It never writes member_count.
type PlanCatalog struct {
	store    Store
	now      func() time.Time
	recorder Recorder
}

// Create validates and stores a new active plan with no members.
func (c *PlanCatalog) Create(ctx context.Context, contractorID string, draft PlanDraft) (plan *models.Plan, err error) {
	defer func() { c.recorder.ObserveOperation("plan_create", err) }()

	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	draft.Name = strings.TrimSpace(draft.Name)
	if errValidate := validateStruct(draft); errValidate != nil {
		return nil, errValidate
	}
	if errPrice := validatePrice(draft.Price); errPrice != nil {
		return nil, errPrice
	}
	if !draft.BillingCycle.Valid() {
		return nil, validationf("unknown billing cycle %q", draft.BillingCycle)
	}
	if errServices := validateIncludedServices(draft.IncludedServices); errServices != nil {
		return nil, errServices
	}
	if errBenefits := validateBenefits(draft.Benefits); errBenefits != nil {
		return nil, errBenefits
	}

	now := c.now()
	plan = &models.Plan{
		ID:                  uuid.NewString(),
		ContractorID:        contractorID,
		Name:                draft.Name,
		Description:         strings.TrimSpace(draft.Description),
		Color:               strings.TrimSpace(draft.Color),
		Price:               draft.Price,
		BillingCycle:        draft.BillingCycle,
		IncludedServices:    datatypes.JSONSlice[models.IncludedService](normalizeServices(draft.IncludedServices)),
		Benefits:            datatypes.NewJSONType(draft.Benefits),
		Active:              true,
		MemberCount:         0,
		RenewalReminderDays: draft.RenewalReminderDays,
		AutoRenewDefault:    draft.AutoRenewDefault,
		SortOrder:           draft.SortOrder,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if errCreate := c.store.CreatePlan(ctx, plan); errCreate != nil {
		return nil, errCreate
	}
	return plan, nil
}

// Get loads one plan.
func (c *PlanCatalog) Get(ctx context.Context, contractorID, planID string) (*models.Plan, error) {
	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	plan, errGet := c.store.GetPlan(ctx, contractorID, planID)
	if errGet != nil {
		return nil, translateStoreError(errGet, "plan "+planID)
	}
	return plan, nil
}

// List returns the contractor's plans, active ones only unless includeInactive.
func (c *PlanCatalog) List(ctx context.Context, contractorID string, includeInactive bool) ([]models.Plan, error) {
	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	return c.store.ListPlans(ctx, contractorID, includeInactive)
}

// Update merges the set fields of patch into the plan. Existing memberships
// keep their snapshot.
func (c *PlanCatalog) Update(ctx context.Context, contractorID, planID string, patch PlanPatch) (plan *models.Plan, err error) {
	defer func() { c.recorder.ObserveOperation("plan_update", err) }()

	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	if errValidate := validateStruct(patch); errValidate != nil {
		return nil, errValidate
	}

	updates := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, validationf("name is required")
		}
		updates["name"] = name
	}
	if patch.Description != nil {
		updates["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Color != nil {
		updates["color"] = strings.TrimSpace(*patch.Color)
	}
	if patch.Price != nil {
		if errPrice := validatePrice(*patch.Price); errPrice != nil {
			return nil, errPrice
		}
		updates["price"] = *patch.Price
	}
	if patch.BillingCycle != nil {
		if !patch.BillingCycle.Valid() {
			return nil, validationf("unknown billing cycle %q", *patch.BillingCycle)
		}
		updates["billing_cycle"] = *patch.BillingCycle
	}
	if patch.IncludedServices != nil {
		services := *patch.IncludedServices
		for i := range services {
			if errValidate := validateStruct(services[i]); errValidate != nil {
				return nil, errValidate
			}
		}
		if errServices := validateIncludedServices(services); errServices != nil {
			return nil, errServices
		}
		updates["included_services"] = datatypes.JSONSlice[models.IncludedService](normalizeServices(services))
	}
	if patch.Benefits != nil {
		if errBenefits := validateBenefits(*patch.Benefits); errBenefits != nil {
			return nil, errBenefits
		}
		updates["benefits"] = datatypes.NewJSONType(*patch.Benefits)
	}
	if patch.Active != nil {
		updates["active"] = *patch.Active
	}
	if patch.RenewalReminderDays != nil {
		updates["renewal_reminder_days"] = *patch.RenewalReminderDays
	}
	if patch.AutoRenewDefault != nil {
		updates["auto_renew_default"] = *patch.AutoRenewDefault
	}
	if patch.SortOrder != nil {
		updates["sort_order"] = *patch.SortOrder
	}

	plan, errPatch := c.store.PatchPlan(ctx, contractorID, planID, updates)
	if errPatch != nil {
		return nil, translateStoreError(errPatch, "plan "+planID)
	}
	return plan, nil
}

// SoftDelete deactivates a plan. The row stays so memberships keep resolving it.
func (c *PlanCatalog) SoftDelete(ctx context.Context, contractorID, planID string) (err error) {
	defer func() { c.recorder.ObserveOperation("plan_delete", err) }()

	if errScope := requireContractor(contractorID); errScope != nil {
		return errScope
	}
	_, errPatch := c.store.PatchPlan(ctx, contractorID, planID, map[string]any{"active": false})
	return translateStoreError(errPatch, "plan "+planID)
}

func requireContractor(contractorID string) error {
	if strings.TrimSpace(contractorID) == "" {
		return validationf("contractor id is required")
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return validationf("price must be greater than zero")
	}
	return nil
}

func validateBenefits(b models.Benefits) error {
	if b.DiscountPercent.IsNegative() || b.DiscountPercent.GreaterThan(hundred) {
		return validationf("discount_percent must be between 0 and 100")
	}
	return nil
}

// validateIncludedServices rejects duplicate service types; trackers are keyed by type.
func validateIncludedServices(services []models.IncludedService) error {
	seen := make(map[string]struct{}, len(services))
	for _, svc := range services {
		key := strings.TrimSpace(svc.ServiceType)
		if key == "" {
			return validationf("service_type is required")
		}
		if svc.Quantity < 0 {
			return validationf("quantity for %q must not be negative", key)
		}
		if _, dup := seen[key]; dup {
			return validationf("service_type %q is listed twice", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func normalizeServices(services []models.IncludedService) []models.IncludedService {
	out := make([]models.IncludedService, 0, len(services))
	for _, svc := range services {
		out = append(out, models.IncludedService{
			ServiceType: strings.TrimSpace(svc.ServiceType),
			Quantity:    svc.Quantity,
			Description: strings.TrimSpace(svc.Description),
		})
	}
	return out
}
