// internal/engine/derived/derived.go
package derived

import (
	"math"
	"time"

	"dca-platform/internal/models"
)

// AgingCategoryFor buckets overdue days into an aging category.
func AgingCategoryFor(days int) models.AgingCategory {
	switch {
	case days <= 0:
		return models.AgingFresh
	case days <= 30:
		return models.AgingLow
	case days <= 60:
		return models.AgingMedium
	case days <= 90:
		return models.AgingHigh
	default:
		return models.AgingCritical
	}
}

// Recompute refreshes every derived field of the case from its owned
// records and the reference time. It is the single place these fields
// are calculated; callers must invoke it after any mutation that
// touches payments or debt.
func Recompute(c *models.Case, now time.Time) {
	c.TotalPaid = c.CompletedPaymentsTotal()

	remaining := c.Debt.OriginalAmount - c.TotalPaid
	if remaining < 0 {
		remaining = 0
	}
	c.Debt.CurrentAmount = remaining
	c.RemainingBalance = remaining

	if c.Debt.OriginalAmount > 0 {
		c.RecoveryRate = round2(c.TotalPaid / c.Debt.OriginalAmount * 100)
	} else {
		c.RecoveryRate = 0
	}

	days := int(now.Sub(c.Debt.DueDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	c.OverdueDays = days
	c.Aging = models.Aging{Days: days, Category: AgingCategoryFor(days)}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
