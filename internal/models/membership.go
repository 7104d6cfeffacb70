package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MembershipStatus represents the lifecycle state of a membership.
type MembershipStatus string

// MembershipStatus constants define membership lifecycle states.
const (
	// MembershipStatusActive marks a membership whose benefits can be used.
	MembershipStatusActive MembershipStatus = "active"
	// MembershipStatusCancelled marks a cancelled membership. Only renew reopens it.
	MembershipStatusCancelled MembershipStatus = "cancelled"
	// MembershipStatusExpired marks a membership whose period ended without renewal.
	MembershipStatusExpired MembershipStatus = "expired"
)

// Valid reports whether the status is one of the known values.
func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipStatusActive, MembershipStatusCancelled, MembershipStatusExpired:
		return true
	default:
		return false
	}
}

// ServiceUsage tracks one included service quota within the current period.
type ServiceUsage struct {
	ServiceType   string     `json:"service_type"`
	UsedCount     int        `json:"used_count"`
	IncludedCount int        `json:"included_count"`
	LastUsedDate  *time.Time `json:"last_used_date"`
	JobIDs        []string   `json:"job_ids"`
}

// DiscountRecord is one applied percentage discount.
type DiscountRecord struct {
	JobID           string          `json:"job_id"`
	OriginalTotal   decimal.Decimal `json:"original_total"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	Date            time.Time       `json:"date"`
}

// FeeWaiver is one waived fee.
type FeeWaiver struct {
	JobID     string          `json:"job_id"`
	FeeType   string          `json:"fee_type"`
	FeeAmount decimal.Decimal `json:"fee_amount"`
	Date      time.Time       `json:"date"`
}

// Membership records one customer's subscription to a plan. Plan fields are
// copied at creation so later plan edits never change existing memberships.
type Membership struct {
	ID           string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.
	ContractorID string `gorm:"type:varchar(64);not null"`   // Owning contractor.

	PlanID       string                       `gorm:"type:varchar(36);not null;index"`       // Originating plan (weak reference).
	PlanName     string                       `gorm:"type:varchar(255);not null"`            // Snapshot of plan name.
	PlanColor    string                       `gorm:"type:varchar(32)"`                      // Snapshot of plan color.
	Price        decimal.Decimal              `gorm:"type:decimal(12,2);not null;default:0"` // Snapshot of plan price.
	BillingCycle BillingCycle                 `gorm:"type:varchar(16);not null"`             // Snapshot of billing cycle.
	Benefits     datatypes.JSONType[Benefits] `gorm:"not null"`                              // Snapshot of plan benefits.

	CustomerID     string `gorm:"type:varchar(64)"`           // External customer identifier.
	CustomerName   string `gorm:"type:varchar(255);not null"` // Customer display name.
	CustomerEmail  string `gorm:"type:varchar(255);not null"` // Customer email.
	CustomerPhone  string `gorm:"type:varchar(64)"`           // Customer phone.
	ServiceAddress string `gorm:"type:text"`                  // Property receiving service.

	Status      MembershipStatus `gorm:"type:varchar(16);not null"` // Lifecycle state.
	StartDate   time.Time        `gorm:"not null"`                  // Current period start.
	EndDate     time.Time        `gorm:"not null"`                  // Current period end.
	RenewalDate time.Time        `gorm:"not null"`                  // Reminder trigger (end date minus reminder days).

	AutoRenew     bool   `gorm:"not null"`          // Renew automatically at period end.
	PaymentMethod string `gorm:"type:varchar(64)"` // Payment-method tag; no money moves here.

	ServicesUsed     datatypes.JSONSlice[ServiceUsage]   `gorm:"not null"` // Per-service quota trackers.
	DiscountsApplied datatypes.JSONSlice[DiscountRecord] `gorm:"not null"` // Append-only discount history.
	FeesWaived       datatypes.JSONSlice[FeeWaiver]      `gorm:"not null"` // Append-only fee waiver history.

	TotalSavings decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"` // Sum of discounts and waived fees.

	Notes string `gorm:"type:text"` // Free-form notes.

	RenewalCount          int        `gorm:"not null;default:0"` // Completed renewals.
	RenewalReminderSentAt *time.Time // Set once the reminder for the current period fired.

	Version int64 `gorm:"not null;default:0"` // Incremented on every write.

	CreatedAt          time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt          time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
	RenewedAt          *time.Time // Last renewal.
	CancelledAt        *time.Time // Cancellation time.
	CancellationReason string     `gorm:"type:text"` // Reason supplied on cancel.
}

// BenefitSet returns the snapshotted plan benefits.
func (m *Membership) BenefitSet() Benefits {
	if m == nil {
		return Benefits{}
	}
	return m.Benefits.Data()
}

// FindService returns the tracker index for a service type, or -1.
func (m *Membership) FindService(serviceType string) int {
	if m == nil {
		return -1
	}
	for i := range m.ServicesUsed {
		if m.ServicesUsed[i].ServiceType == serviceType {
			return i
		}
	}
	return -1
}

// SavingsFromHistory sums the discount and waiver history. It always equals
// TotalSavings for a consistent record.
func (m *Membership) SavingsFromHistory() decimal.Decimal {
	total := decimal.Zero
	if m == nil {
		return total
	}
	for _, d := range m.DiscountsApplied {
		total = total.Add(d.DiscountAmount)
	}
	for _, f := range m.FeesWaived {
		total = total.Add(f.FeeAmount)
	}
	return total
}
