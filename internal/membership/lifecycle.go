package membership

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homeledger/memberships/internal/models"
	"github.com/homeledger/memberships/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// MembershipRequest carries the customer side of a new membership.
type MembershipRequest struct {
	CustomerID          string `json:"customer_id" validate:"max=64"`
	CustomerName        string `json:"customer_name" validate:"required,max=255"`
	CustomerEmail       string `json:"customer_email" validate:"required,email,max=255"`
	CustomerPhone       string `json:"customer_phone" validate:"max=64"`
	ServiceAddress      string `json:"service_address" validate:"max=1000"`
	StartDate           string `json:"start_date"`                                               // YYYY-MM-DD or RFC 3339; empty starts now.
	AutoRenew           *bool  `json:"auto_renew"`                                               // Defaults to the plan's auto-renew setting.
	RenewalReminderDays *int   `json:"renewal_reminder_days" validate:"omitempty,gte=0,lte=365"` // Overrides the plan's reminder window.
	PaymentMethod       string `json:"payment_method" validate:"max=64"`
	Notes               string `json:"notes"`
}

// MembershipPatch carries editable membership fields. Quota and savings
// state is not reachable from here.
type MembershipPatch struct {
	CustomerID      *string `json:"customer_id" validate:"omitempty,max=64"`
	CustomerName    *string `json:"customer_name" validate:"omitempty,max=255"`
	CustomerEmail   *string `json:"customer_email" validate:"omitempty,email,max=255"`
	CustomerPhone   *string `json:"customer_phone" validate:"omitempty,max=64"`
	ServiceAddress  *string `json:"service_address" validate:"omitempty,max=1000"`
	AutoRenew       *bool   `json:"auto_renew"`
	PaymentMethod   *string `json:"payment_method" validate:"omitempty,max=64"`
	Notes           *string `json:"notes"`
	ExpectedVersion *int64  `json:"version"` // Rejects the patch with ErrConflict when the stored version differs.
}

// ListFilter narrows Lifecycle.List.
type ListFilter struct {
	Status     models.MembershipStatus
	CustomerID string
	PlanID     string
	Search     string
}

// Lifecycle creates, renews, cancels and patches memberships. It is the only
// writer of a plan's member_count.
type Lifecycle struct {
	store    Store
	plans    *PlanCatalog
	now      func() time.Time
	recorder Recorder
}

// Create snapshots the plan onto a new active membership and counts it on the plan.
func (l *Lifecycle) Create(ctx context.Context, contractorID, planID string, req MembershipRequest) (m *models.Membership, err error) {
	defer func() { l.recorder.ObserveOperation("membership_create", err) }()

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if errValidate := validateStruct(req); errValidate != nil {
		return nil, errValidate
	}

	plan, errPlan := l.plans.Get(ctx, contractorID, planID)
	if errPlan != nil {
		return nil, errPlan
	}
	if !plan.Active {
		return nil, invalidStatef("plan %s is no longer offered", plan.ID)
	}

	now := l.now()
	start, errStart := parseStartDate(req.StartDate, now)
	if errStart != nil {
		return nil, errStart
	}
	end, errEnd := AdvancePeriod(start, plan.BillingCycle)
	if errEnd != nil {
		return nil, errEnd
	}
	reminderDays := plan.RenewalReminderDays
	if req.RenewalReminderDays != nil {
		reminderDays = *req.RenewalReminderDays
	}
	autoRenew := plan.AutoRenewDefault
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}

	trackers := make(datatypes.JSONSlice[models.ServiceUsage], 0, len(plan.IncludedServices))
	for _, svc := range plan.IncludedServices {
		trackers = append(trackers, models.ServiceUsage{
			ServiceType:   svc.ServiceType,
			UsedCount:     0,
			IncludedCount: svc.Quantity,
			JobIDs:        []string{},
		})
	}

	m = &models.Membership{
		ID:               uuid.NewString(),
		ContractorID:     contractorID,
		PlanID:           plan.ID,
		PlanName:         plan.Name,
		PlanColor:        plan.Color,
		Price:            plan.Price,
		BillingCycle:     plan.BillingCycle,
		Benefits:         datatypes.NewJSONType(plan.Benefits.Data()),
		CustomerID:       strings.TrimSpace(req.CustomerID),
		CustomerName:     req.CustomerName,
		CustomerEmail:    req.CustomerEmail,
		CustomerPhone:    strings.TrimSpace(req.CustomerPhone),
		ServiceAddress:   strings.TrimSpace(req.ServiceAddress),
		Status:           models.MembershipStatusActive,
		StartDate:        start,
		EndDate:          end,
		RenewalDate:      reminderDate(end, reminderDays),
		AutoRenew:        autoRenew,
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
		ServicesUsed:     trackers,
		DiscountsApplied: datatypes.JSONSlice[models.DiscountRecord]{},
		FeesWaived:       datatypes.JSONSlice[models.FeeWaiver]{},
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if errCreate := l.store.CreateMembership(ctx, m); errCreate != nil {
		return nil, translateStoreError(errCreate, "plan "+planID)
	}

	log.WithFields(log.Fields{
		"contractor_id": contractorID,
		"membership_id": m.ID,
		"plan_id":       plan.ID,
		"end_date":      end.Format(time.DateOnly),
	}).Info("membership created")
	return m, nil
}

// Get loads one membership.
func (l *Lifecycle) Get(ctx context.Context, contractorID, membershipID string) (*models.Membership, error) {
	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	m, errGet := l.store.GetMembership(ctx, contractorID, membershipID)
	if errGet != nil {
		return nil, translateStoreError(errGet, "membership "+membershipID)
	}
	return m, nil
}

// List returns the contractor's memberships, newest first.
func (l *Lifecycle) List(ctx context.Context, contractorID string, filter ListFilter) ([]models.Membership, error) {
	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationf("unknown status %q", filter.Status)
	}
	return l.store.ListMemberships(ctx, contractorID, store.MembershipFilter{
		Status:     filter.Status,
		CustomerID: filter.CustomerID,
		PlanID:     filter.PlanID,
		Search:     filter.Search,
	})
}

// Cancel ends a membership and releases its plan seat. Cancelling an already
// cancelled membership changes nothing.
func (l *Lifecycle) Cancel(ctx context.Context, contractorID, membershipID, reason string) (m *models.Membership, err error) {
	defer func() { l.recorder.ObserveOperation("membership_cancel", err) }()

	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	now := l.now()
	alreadyCancelled := false
	m, errMutate := l.store.MutateMembership(ctx, contractorID, membershipID, func(cur *models.Membership) (store.Mutation, error) {
		if cur.Status == models.MembershipStatusCancelled {
			alreadyCancelled = true
			return store.Mutation{Skip: true}, nil
		}
		cur.Status = models.MembershipStatusCancelled
		cur.AutoRenew = false
		cur.CancelledAt = &now
		cur.CancellationReason = strings.TrimSpace(reason)
		return store.Mutation{PlanMemberDelta: -1}, nil
	})
	if errMutate != nil {
		return nil, translateStoreError(errMutate, "membership "+membershipID)
	}

	if !alreadyCancelled {
		log.WithFields(log.Fields{
			"contractor_id": contractorID,
			"membership_id": membershipID,
			"plan_id":       m.PlanID,
		}).Info("membership cancelled")
	}
	return m, nil
}

// Renew opens a new period starting now from the membership's own billing
// cycle and clears quota usage. Savings history is kept.
func (l *Lifecycle) Renew(ctx context.Context, contractorID, membershipID string) (m *models.Membership, err error) {
	defer func() { l.recorder.ObserveOperation("membership_renew", err) }()

	m, _, err = l.renew(ctx, contractorID, membershipID, nil)
	return m, err
}

// AutoRenew renews a membership only while, under the row lock, it is still
// active, past its end date and set to auto-renew. It reports whether a
// renewal happened.
func (l *Lifecycle) AutoRenew(ctx context.Context, contractorID, membershipID string) (m *models.Membership, renewed bool, err error) {
	defer func() { l.recorder.ObserveOperation("membership_auto_renew", err) }()

	return l.renew(ctx, contractorID, membershipID, func(cur *models.Membership, now time.Time) bool {
		return cur.Status == models.MembershipStatusActive && cur.AutoRenew && cur.EndDate.Before(now)
	})
}

func (l *Lifecycle) renew(ctx context.Context, contractorID, membershipID string, eligible func(*models.Membership, time.Time) bool) (*models.Membership, bool, error) {
	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, false, errScope
	}
	current, errGet := l.store.GetMembership(ctx, contractorID, membershipID)
	if errGet != nil {
		return nil, false, translateStoreError(errGet, "membership "+membershipID)
	}
	// The plan may have been edited since; only its reminder window is read.
	reminderDays := -1
	plan, errPlan := l.store.GetPlan(ctx, contractorID, current.PlanID)
	switch {
	case errPlan == nil:
		reminderDays = plan.RenewalReminderDays
	case !errors.Is(errPlan, store.ErrNotFound):
		return nil, false, errPlan
	}

	now := l.now()
	renewed := false
	m, errMutate := l.store.MutateMembership(ctx, contractorID, membershipID, func(cur *models.Membership) (store.Mutation, error) {
		if eligible != nil && !eligible(cur, now) {
			return store.Mutation{Skip: true}, nil
		}
		end, errEnd := AdvancePeriod(now, cur.BillingCycle)
		if errEnd != nil {
			return store.Mutation{}, errEnd
		}
		days := reminderDays
		if days < 0 {
			days = int(cur.EndDate.Sub(cur.RenewalDate).Hours() / 24)
		}
		mutation := store.Mutation{}
		if cur.Status == models.MembershipStatusCancelled {
			mutation.PlanMemberDelta = 1
		}

		cur.Status = models.MembershipStatusActive
		cur.StartDate = now
		cur.EndDate = end
		cur.RenewalDate = reminderDate(end, days)
		cur.RenewedAt = &now
		cur.RenewalCount++
		cur.RenewalReminderSentAt = nil
		cur.CancelledAt = nil
		cur.CancellationReason = ""
		for i := range cur.ServicesUsed {
			cur.ServicesUsed[i].UsedCount = 0
			cur.ServicesUsed[i].LastUsedDate = nil
			cur.ServicesUsed[i].JobIDs = []string{}
		}
		renewed = true
		return mutation, nil
	})
	if errMutate != nil {
		return nil, false, translateStoreError(errMutate, "membership "+membershipID)
	}

	if renewed {
		log.WithFields(log.Fields{
			"contractor_id": contractorID,
			"membership_id": membershipID,
			"end_date":      m.EndDate.Format(time.DateOnly),
			"renewals":      m.RenewalCount,
		}).Info("membership renewed")
	}
	return m, renewed, nil
}

// Update applies a field patch.
func (l *Lifecycle) Update(ctx context.Context, contractorID, membershipID string, patch MembershipPatch) (m *models.Membership, err error) {
	defer func() { l.recorder.ObserveOperation("membership_update", err) }()

	if errScope := requireContractor(contractorID); errScope != nil {
		return nil, errScope
	}
	if errValidate := validateStruct(patch); errValidate != nil {
		return nil, errValidate
	}
	if patch.CustomerName != nil && strings.TrimSpace(*patch.CustomerName) == "" {
		return nil, validationf("customer_name must not be empty")
	}

	m, errMutate := l.store.MutateMembership(ctx, contractorID, membershipID, func(cur *models.Membership) (store.Mutation, error) {
		if patch.ExpectedVersion != nil && *patch.ExpectedVersion != cur.Version {
			return store.Mutation{}, store.ErrStaleVersion
		}
		if patch.AutoRenew != nil && *patch.AutoRenew && cur.Status == models.MembershipStatusCancelled {
			return store.Mutation{}, invalidStatef("cancelled membership cannot auto-renew")
		}
		if patch.CustomerID != nil {
			cur.CustomerID = strings.TrimSpace(*patch.CustomerID)
		}
		if patch.CustomerName != nil {
			cur.CustomerName = strings.TrimSpace(*patch.CustomerName)
		}
		if patch.CustomerEmail != nil {
			cur.CustomerEmail = strings.TrimSpace(*patch.CustomerEmail)
		}
		if patch.CustomerPhone != nil {
			cur.CustomerPhone = strings.TrimSpace(*patch.CustomerPhone)
		}
		if patch.ServiceAddress != nil {
			cur.ServiceAddress = strings.TrimSpace(*patch.ServiceAddress)
		}
		if patch.AutoRenew != nil {
			cur.AutoRenew = *patch.AutoRenew
		}
		if patch.PaymentMethod != nil {
			cur.PaymentMethod = strings.TrimSpace(*patch.PaymentMethod)
		}
		if patch.Notes != nil {
			cur.Notes = *patch.Notes
		}
		return store.Mutation{}, nil
	})
	if errMutate != nil {
		return nil, translateStoreError(errMutate, "membership "+membershipID)
	}
	return m, nil
}

// Expire moves an active membership past its end date to expired. Used by
// the sweeper; the plan seat is kept since expired memberships still count.
func (l *Lifecycle) Expire(ctx context.Context, contractorID, membershipID string) (expired bool, err error) {
	defer func() { l.recorder.ObserveOperation("membership_expire", err) }()

	now := l.now()
	_, errMutate := l.store.MutateMembership(ctx, contractorID, membershipID, func(cur *models.Membership) (store.Mutation, error) {
		if cur.Status != models.MembershipStatusActive || !cur.EndDate.Before(now) {
			return store.Mutation{Skip: true}, nil
		}
		cur.Status = models.MembershipStatusExpired
		expired = true
		return store.Mutation{}, nil
	})
	if errMutate != nil {
		return false, translateStoreError(errMutate, "membership "+membershipID)
	}
	return expired, nil
}

// MarkReminderSent stamps the renewal reminder for the current period.
// It reports false when the reminder was already sent or is not due.
func (l *Lifecycle) MarkReminderSent(ctx context.Context, contractorID, membershipID string) (marked bool, err error) {
	now := l.now()
	_, errMutate := l.store.MutateMembership(ctx, contractorID, membershipID, func(cur *models.Membership) (store.Mutation, error) {
		if cur.Status != models.MembershipStatusActive || cur.RenewalReminderSentAt != nil || cur.RenewalDate.After(now) {
			return store.Mutation{Skip: true}, nil
		}
		cur.RenewalReminderSentAt = &now
		marked = true
		return store.Mutation{}, nil
	})
	if errMutate != nil {
		return false, translateStoreError(errMutate, "membership "+membershipID)
	}
	return marked, nil
}
