package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BillingCycle is the recurrence unit of a plan.
type BillingCycle string

// BillingCycle constants define the supported recurrence units.
const (
	// BillingCycleMonthly renews every month.
	BillingCycleMonthly BillingCycle = "monthly"
	// BillingCycleQuarterly renews every three months.
	BillingCycleQuarterly BillingCycle = "quarterly"
	// BillingCycleAnnual renews every year.
	BillingCycleAnnual BillingCycle = "annual"
	// BillingCycleOneTime is sold once.
	BillingCycleOneTime BillingCycle = "one-time"
)

// Valid reports whether the cycle is one of the supported values.
func (c BillingCycle) Valid() bool {
	switch c {
	case BillingCycleMonthly, BillingCycleQuarterly, BillingCycleAnnual, BillingCycleOneTime:
		return true
	default:
		return false
	}
}

// IncludedService is a capped service bundled into a plan.
type IncludedService struct {
	ServiceType string `json:"service_type" validate:"required,max=64"` // Free-form service key, e.g. "hvac-tuneup".
	Quantity    int    `json:"quantity" validate:"gte=0"`              // Uses included per period.
	Description string `json:"description"`                            // Display text.
}

// Benefits holds the non-quota perks of a plan. The flags carry no behavior
// beyond what the benefit engine reads from them.
type Benefits struct {
	DiscountPercent    decimal.Decimal `json:"discount_percent"`
	PriorityScheduling bool            `json:"priority_scheduling"`
	WaiveDiagnosticFee bool            `json:"waive_diagnostic_fee"`
	WaiveTripFee       bool            `json:"waive_trip_fee"`
	EmergencyResponse  bool            `json:"emergency_response"`
	Transferable       bool            `json:"transferable"`
}

// Plan represents a sellable service-plan template owned by one contractor.
type Plan struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`     // UUID primary key.
	ContractorID string `gorm:"type:varchar(64);not null;index"` // Owning contractor.

	Name        string `gorm:"type:varchar(255);not null"` // Plan name.
	Description string `gorm:"type:text"`                  // Plan description.
	Color       string `gorm:"type:varchar(32)"`           // Display color, snapshotted onto memberships.

	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Price per billing cycle.
	BillingCycle BillingCycle    `gorm:"type:varchar(16);not null"`             // Recurrence unit.

	IncludedServices datatypes.JSONSlice[IncludedService] `gorm:"not null"` // Ordered quota definitions.
	Benefits         datatypes.JSONType[Benefits]         `gorm:"not null"` // Perk flags.

	Active      bool `gorm:"not null"`           // False once soft-deleted.
	MemberCount int  `gorm:"not null;default:0"` // Non-cancelled memberships; written only by the lifecycle manager.

	RenewalReminderDays int  `gorm:"not null;default:0"` // Days before end date to remind.
	AutoRenewDefault    bool `gorm:"not null"`           // Default autoRenew for new memberships.

	SortOrder int `gorm:"not null;default:0"` // Display ordering weight.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
