package membership

import (
	"strings"
	"time"

	"github.com/homeledger/memberships/internal/models"
)

// AdvancePeriod returns the end of a period that starts at start. One-time
// plans run for a year.
func AdvancePeriod(start time.Time, cycle models.BillingCycle) (time.Time, error) {
	switch cycle {
	case models.BillingCycleMonthly:
		return start.AddDate(0, 1, 0), nil
	case models.BillingCycleQuarterly:
		return start.AddDate(0, 3, 0), nil
	case models.BillingCycleAnnual, models.BillingCycleOneTime:
		return start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, validationf("unknown billing cycle %q", cycle)
	}
}

// reminderDate is the renewal reminder trigger for a period end.
func reminderDate(end time.Time, reminderDays int) time.Time {
	if reminderDays <= 0 {
		return end
	}
	return end.AddDate(0, 0, -reminderDays)
}

// parseStartDate accepts a calendar date or an RFC 3339 timestamp. Empty means now.
func parseStartDate(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC(), nil
	}
	if t, errParse := time.Parse(time.DateOnly, raw); errParse == nil {
		return t.UTC(), nil
	}
	t, errParse := time.Parse(time.RFC3339, raw)
	if errParse != nil {
		return time.Time{}, validationf("start_date %q is not a date", raw)
	}
	return t.UTC(), nil
}
