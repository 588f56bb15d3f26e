// internal/ingestion/prioritizer.go
package ingestion

import (
	"math"

	"dca-platform/internal/models"
	"dca-platform/pkg/policy"
)

// Prioritizer computes the 0-100 priority score a case enters the
// system with, from banded factor scores blended by policy weights.
type Prioritizer struct {
	weights policy.PriorityWeights
}

func NewPrioritizer(weights policy.PriorityWeights) *Prioritizer {
	return &Prioritizer{weights: weights}
}

// Score computes the priority score and its label for a case.
func (p *Prioritizer) Score(c *models.Case) (float64, string) {
	debt := debtAmountScore(c.Debt.OriginalAmount)
	aging := agingScore(c.Aging.Days)
	risk := riskScore(c.RiskProfile)
	recovery := recoveryEstimate(c.Debt.OriginalAmount, c.Aging.Days)
	business := businessImpactScore(c.Debt.ServiceType, c.CustomerSegment)

	score := debt*p.weights.DebtAmount +
		aging*p.weights.Aging +
		recovery*p.weights.RecoveryChance +
		risk*p.weights.CustomerRisk +
		business*p.weights.BusinessImpact

	score = math.Max(0, math.Min(100, score))
	score = math.Round(score*100) / 100
	return score, priorityLabel(score)
}

func debtAmountScore(amount float64) float64 {
	switch {
	case amount >= 50000:
		return 95
	case amount >= 20000:
		return 85
	case amount >= 10000:
		return 75
	case amount >= 5000:
		return 65
	case amount >= 1000:
		return 50
	default:
		return 30
	}
}

func agingScore(days int) float64 {
	switch {
	case days >= 120:
		return 100
	case days >= 90:
		return 90
	case days >= 60:
		return 75
	case days >= 30:
		return 60
	default:
		return 40
	}
}

func riskScore(profile models.RiskProfile) float64 {
	switch profile {
	case models.RiskCritical:
		return 95
	case models.RiskHigh:
		return 80
	case models.RiskLow:
		return 30
	default:
		return 50
	}
}

// recoveryEstimate is the intake heuristic used until the predictive
// service supplies an advisory probability.
func recoveryEstimate(amount float64, agingDays int) float64 {
	base := 70.0
	if agingDays > 90 {
		base -= 30
	} else if agingDays > 60 {
		base -= 15
	}
	if amount > 20000 {
		base += 10
	} else if amount < 500 {
		base -= 20
	}
	return math.Max(10, math.Min(95, base))
}

func businessImpactScore(serviceType, segment string) float64 {
	score := 50.0
	switch serviceType {
	case "ENTERPRISE":
		score += 20
	case "PREMIUM":
		score += 10
	}
	switch segment {
	case "VIP":
		score += 15
	case "CORPORATE":
		score += 10
	}
	return math.Min(100, score)
}

func priorityLabel(score float64) string {
	switch {
	case score >= 80:
		return "CRITICAL"
	case score >= 60:
		return "HIGH"
	case score >= 40:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
