// internal/engine/derived/derived_test.go
package derived

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dca-platform/internal/models"
)

func TestAgingCategoryFor(t *testing.T) {
	tests := []struct {
		days int
		want models.AgingCategory
	}{
		{-5, models.AgingFresh},
		{0, models.AgingFresh},
		{1, models.AgingLow},
		{30, models.AgingLow},
		{31, models.AgingMedium},
		{60, models.AgingMedium},
		{61, models.AgingHigh},
		{90, models.AgingHigh},
		{91, models.AgingCritical},
		{400, models.AgingCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AgingCategoryFor(tt.days), "days=%d", tt.days)
	}
}

func TestRecompute_Financials(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := &models.Case{
		Debt: models.Debt{
			OriginalAmount: 1000,
			CurrentAmount:  1000,
			DueDate:        now.AddDate(0, 0, -45),
		},
		Payments: []models.Payment{
			{ID: "p1", Amount: 400, Status: models.PaymentCompleted},
			{ID: "p2", Amount: 100, Status: models.PaymentPending},
			{ID: "p3", Amount: 50, Status: models.PaymentFailed},
		},
	}

	Recompute(c, now)

	assert.Equal(t, float64(400), c.TotalPaid)
	assert.Equal(t, float64(600), c.Debt.CurrentAmount)
	assert.Equal(t, float64(600), c.RemainingBalance)
	assert.Equal(t, float64(40), c.RecoveryRate)
	assert.Equal(t, 45, c.OverdueDays)
	assert.Equal(t, models.AgingMedium, c.Aging.Category)
}

func TestRecompute_OverpaymentFloorsAtZero(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := &models.Case{
		Debt: models.Debt{OriginalAmount: 100, DueDate: now},
		Payments: []models.Payment{
			{ID: "p1", Amount: 150, Status: models.PaymentCompleted},
		},
	}

	Recompute(c, now)

	assert.Equal(t, float64(0), c.Debt.CurrentAmount)
	assert.Equal(t, float64(0), c.RemainingBalance)
	assert.Equal(t, float64(150), c.RecoveryRate)
}

func TestRecompute_NotYetDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := &models.Case{
		Debt: models.Debt{OriginalAmount: 100, DueDate: now.AddDate(0, 0, 14)},
	}

	Recompute(c, now)

	assert.Equal(t, 0, c.OverdueDays)
	assert.Equal(t, models.AgingFresh, c.Aging.Category)
}
