package membership

import (
	"context"
	"strings"
	"time"

	"github.com/homeledger/memberships/internal/models"
	"github.com/homeledger/memberships/internal/store"
	"github.com/shopspring/decimal"
)

// Fee line item types recognised by CalculateMembershipBenefits.
const (
	FeeTypeDiagnostic = "diagnostic_fee"
	FeeTypeTrip       = "trip_fee"
)

// Availability reasons.
const (
	ReasonNoActiveMembership = "No active membership"
	ReasonServiceNotIncluded = "Service not included in plan"
)

// DiscountResult is returned by ApplyDiscount.
type DiscountResult struct {
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	NewTotal       decimal.Decimal `json:"new_total"`
	TotalSavings   decimal.Decimal `json:"total_savings"`
}

// WaiverResult is returned by WaiveFee.
type WaiverResult struct {
	FeeType      string          `json:"fee_type"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	TotalSavings decimal.Decimal `json:"total_savings"`
}

// UsageResult is returned by RecordServiceUsage. Success=false means the
// quota was already used up and nothing was written.
type UsageResult struct {
	Success        bool `json:"success"`
	UsedCount      int  `json:"used_count"`
	IncludedCount  int  `json:"included_count"`
	RemainingCount int  `json:"remaining_count"`
}

// Availability answers whether a service can still be drawn from a membership.
type Availability struct {
	Available      bool   `json:"available"`
	Reason         string `json:"reason,omitempty"`
	UsedCount      int    `json:"used_count"`
	IncludedCount  int    `json:"included_count"`
	RemainingCount int    `json:"remaining_count"`
}

// QuoteLineItem is one priced line on a quote.
type QuoteLineItem struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Quote is the job estimate benefits are previewed against.
type Quote struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	ServiceType string          `json:"service_type"`
	LineItems   []QuoteLineItem `json:"line_items"`
}

// WaivedFee is one fee a preview would waive.
type WaivedFee struct {
	FeeType string          `json:"fee_type"`
	Amount  decimal.Decimal `json:"amount"`
}

// BenefitSummary describes what a membership would grant on a quote.
type BenefitSummary struct {
	HasActiveMembership bool            `json:"has_active_membership"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	WaivedFees          []WaivedFee     `json:"waived_fees"`
	ServiceAvailability *Availability   `json:"service_availability,omitempty"`
	PriorityScheduling  bool            `json:"priority_scheduling"`
	EmergencyResponse   bool            `json:"emergency_response"`
	TotalDiscount       decimal.Decimal `json:"total_discount"`
}

// BenefitEngine applies discounts, fee waivers and quota usage to memberships.
// Every write runs inside one locked, versioned store mutation and requires
// the membership to be active.
type BenefitEngine struct {
	store    Store
	now      func() time.Time
	recorder Recorder
}

// ApplyDiscount records the plan's percentage discount against a job total.
func (e *BenefitEngine) ApplyDiscount(ctx context.Context, contractorID, membershipID, jobID string, originalTotal decimal.Decimal) (res DiscountResult, err error) {
	defer func() { e.recorder.ObserveOperation("apply_discount", err) }()

	jobID = strings.TrimSpace(jobID)
	if errScope := requireContractor(contractorID); errScope != nil {
		return DiscountResult{}, errScope
	}
	if jobID == "" {
		return DiscountResult{}, validationf("job id is required")
	}
	if originalTotal.IsNegative() {
		return DiscountResult{}, validationf("original total must not be negative")
	}

	now := e.now()
	_, errMutate := e.store.MutateMembership(ctx, contractorID, membershipID, func(cur *models.Membership) (store.Mutation, error) {
		if cur.Status != models.MembershipStatusActive {
			return store.Mutation{}, invalidStatef("membership %s is %s", cur.ID, cur.Status)
		}
		percent := cur.BenefitSet().DiscountPercent
		amount := discountFor(originalTotal, percent)
		cur.DiscountsApplied = append(cur.DiscountsApplied, models.DiscountRecord{
			JobID:           jobID,
			OriginalTotal:   originalTotal,
			DiscountPercent: percent,
			DiscountAmount:  amount,
			Date:            now,
		})
		cur.TotalSavings = cur.TotalSavings.Add(amount)
		res = DiscountResult{
			DiscountAmount: amount,
			NewTotal:       originalTotal.Sub(amount),
			TotalSavings:   cur.TotalSavings,
		}
		return store.Mutation{}, nil
	})
	if errMutate != nil {
		return DiscountResult{}, translateStoreError(errMutate, "membership "+membershipID)
	}
	e.recorder.ObserveSavings(res.DiscountAmount)
	return res, nil
}

// WaiveFee records a waived fee. Like discounts it needs an active membership.
func (e *BenefitEngine) WaiveFee(ctx context.Context, contractorID, membershipID, jobID, feeType string, feeAmount decimal.Decimal) (res WaiverResult, err error) {
	defer func() { e.recorder.ObserveOperation("waive_fee", err) }()

	jobID = strings.TrimSpace(jobID)
	feeType = strings.TrimSpace(feeType)
	if errScope := requireContractor(contractorID); errScope != nil {
		return WaiverResult{}, errScope
	}
	if jobID == "" {
		return WaiverResult{}, validationf("job id is required")
	}
	if feeType == "" {
		return WaiverResult{}, validationf("fee type is required")
	}
	if feeAmount.IsNegative() {
		return WaiverResult{}, validationf("fee amount must not be negative")
	}

	now := e.now()
	_, errMutate := e.store.MutateMembership(ctx, contractorID, membershipID, func(cur *models.Membership) (store.Mutation, error) {
		if cur.Status != models.MembershipStatusActive {
			return store.Mutation{}, invalidStatef("membership %s is %s", cur.ID, cur.Status)
		}
		cur.FeesWaived = append(cur.FeesWaived, models.FeeWaiver{
			JobID:     jobID,
			FeeType:   feeType,
			FeeAmount: feeAmount,
			Date:      now,
		})
		cur.TotalSavings = cur.TotalSavings.Add(feeAmount)
		res = WaiverResult{FeeType: feeType, FeeAmount: feeAmount, TotalSavings: cur.TotalSavings}
		return store.Mutation{}, nil
	})
	if errMutate != nil {
		return WaiverResult{}, translateStoreError(errMutate, "membership "+membershipID)
	}
	e.recorder.ObserveSavings(feeAmount)
	return res, nil
}

// RecordServiceUsage draws one use of an included service for a job. An
// exhausted quota is reported in the result and leaves the membership as is.
func (e *BenefitEngine) RecordServiceUsage(ctx context.Context, contractorID, membershipID, serviceType, jobID string) (res UsageResult, err error) {
	defer func() { e.recorder.ObserveOperation("record_service_usage", err) }()

	serviceType = strings.TrimSpace(serviceType)
	jobID = strings.TrimSpace(jobID)
	if errScope := requireContractor(contractorID); errScope != nil {
		return UsageResult{}, errScope
	}
	if serviceType == "" {
		return UsageResult{}, validationf("service type is required")
	}
	if jobID == "" {
		return UsageResult{}, validationf("job id is required")
	}

	now := e.now()
	_, errMutate := e.store.MutateMembership(ctx, contractorID, membershipID, func(cur *models.Membership) (store.Mutation, error) {
		if cur.Status != models.MembershipStatusActive {
			return store.Mutation{}, invalidStatef("membership %s is %s", cur.ID, cur.Status)
		}
		idx := cur.FindService(serviceType)
		if idx < 0 {
			return store.Mutation{}, validationf("service type %q is not part of the plan", serviceType)
		}
		tracker := &cur.ServicesUsed[idx]
		if tracker.UsedCount >= tracker.IncludedCount {
			res = UsageResult{Success: false, UsedCount: tracker.UsedCount, IncludedCount: tracker.IncludedCount}
			return store.Mutation{Skip: true}, nil
		}
		tracker.UsedCount++
		tracker.LastUsedDate = &now
		tracker.JobIDs = append(tracker.JobIDs, jobID)
		res = UsageResult{
			Success:        true,
			UsedCount:      tracker.UsedCount,
			IncludedCount:  tracker.IncludedCount,
			RemainingCount: tracker.IncludedCount - tracker.UsedCount,
		}
		return store.Mutation{}, nil
	})
	if errMutate != nil {
		return UsageResult{}, translateStoreError(errMutate, "membership "+membershipID)
	}
	if !res.Success {
		e.recorder.ObserveQuotaExhausted()
	}
	return res, nil
}

// CheckAvailability loads a membership and reports service availability.
func (e *BenefitEngine) CheckAvailability(ctx context.Context, contractorID, membershipID, serviceType string) (Availability, error) {
	if errScope := requireContractor(contractorID); errScope != nil {
		return Availability{}, errScope
	}
	m, errGet := e.store.GetMembership(ctx, contractorID, membershipID)
	if errGet != nil {
		return Availability{}, translateStoreError(errGet, "membership "+membershipID)
	}
	return CheckServiceAvailability(m, serviceType), nil
}

// Preview loads a membership and summarises the benefits a quote would get.
func (e *BenefitEngine) Preview(ctx context.Context, contractorID, membershipID string, quote Quote) (BenefitSummary, error) {
	if errScope := requireContractor(contractorID); errScope != nil {
		return BenefitSummary{}, errScope
	}
	m, errGet := e.store.GetMembership(ctx, contractorID, membershipID)
	if errGet != nil {
		return BenefitSummary{}, translateStoreError(errGet, "membership "+membershipID)
	}
	return CalculateMembershipBenefits(m, quote), nil
}

// CheckServiceAvailability reports whether serviceType still has quota left.
func CheckServiceAvailability(m *models.Membership, serviceType string) Availability {
	if m == nil || m.Status != models.MembershipStatusActive {
		return Availability{Reason: ReasonNoActiveMembership}
	}
	idx := m.FindService(strings.TrimSpace(serviceType))
	if idx < 0 {
		return Availability{Reason: ReasonServiceNotIncluded}
	}
	tracker := m.ServicesUsed[idx]
	remaining := tracker.IncludedCount - tracker.UsedCount
	if remaining < 0 {
		remaining = 0
	}
	return Availability{
		Available:      remaining > 0,
		UsedCount:      tracker.UsedCount,
		IncludedCount:  tracker.IncludedCount,
		RemainingCount: remaining,
	}
}

// CalculateMembershipBenefits totals what a membership would grant on a
// quote without writing anything.
func CalculateMembershipBenefits(m *models.Membership, quote Quote) BenefitSummary {
	summary := BenefitSummary{
		DiscountPercent: decimal.Zero,
		DiscountAmount:  decimal.Zero,
		WaivedFees:      []WaivedFee{},
		TotalDiscount:   decimal.Zero,
	}
	if strings.TrimSpace(quote.ServiceType) != "" {
		availability := CheckServiceAvailability(m, quote.ServiceType)
		summary.ServiceAvailability = &availability
	}
	if m == nil || m.Status != models.MembershipStatusActive {
		return summary
	}

	benefits := m.BenefitSet()
	summary.HasActiveMembership = true
	summary.PriorityScheduling = benefits.PriorityScheduling
	summary.EmergencyResponse = benefits.EmergencyResponse
	summary.DiscountPercent = benefits.DiscountPercent
	summary.DiscountAmount = discountFor(quote.Subtotal, benefits.DiscountPercent)

	for _, item := range quote.LineItems {
		switch {
		case item.Type == FeeTypeDiagnostic && benefits.WaiveDiagnosticFee,
			item.Type == FeeTypeTrip && benefits.WaiveTripFee:
			summary.WaivedFees = append(summary.WaivedFees, WaivedFee{FeeType: item.Type, Amount: item.Amount})
		}
	}

	total := summary.DiscountAmount
	for _, fee := range summary.WaivedFees {
		total = total.Add(fee.Amount)
	}
	summary.TotalDiscount = total
	return summary
}

// discountFor is total × percent / 100, rounded to cents.
func discountFor(total, percent decimal.Decimal) decimal.Decimal {
	if percent.IsZero() || !total.IsPositive() {
		return decimal.Zero
	}
	return total.Mul(percent).Div(hundred).Round(2)
}
