// internal/engine/scoring/scorer.go
package scoring

import (
	"math"

	"dca-platform/internal/models"
	"dca-platform/pkg/policy"
)

// Industry benchmarks the component scores are graded against.
var (
	recoveryBenchmark     = benchmark{excellent: 80, good: 65, average: 50}
	slaBenchmark          = benchmark{excellent: 95, good: 85, average: 75}
	satisfactionBenchmark = benchmark{excellent: 4.5, good: 3.5, average: 2.5}

	// Resolution time grades the other way round: fewer days is better.
	resolutionExcellentDays = 30.0
	resolutionGoodDays      = 45.0
	resolutionAverageDays   = 60.0
)

type benchmark struct {
	excellent float64
	good      float64
	average   float64
}

// grade interpolates a raw metric into a 0-100 score. Values at the
// average threshold score 60, good 75, excellent 90; the mapping is
// strictly non-decreasing in the input.
func (b benchmark) grade(v, max float64) float64 {
	switch {
	case v >= b.excellent:
		span := max - b.excellent
		if span <= 0 {
			return 100
		}
		return clamp(90+(v-b.excellent)/span*10, 0, 100)
	case v >= b.good:
		return 75 + (v-b.good)/(b.excellent-b.good)*15
	case v >= b.average:
		return 60 + (v-b.average)/(b.good-b.average)*15
	case v <= 0:
		return 0
	default:
		return v / b.average * 60
	}
}

// gradeResolutionTime scores average resolution days, faster is better.
func gradeResolutionTime(days float64) float64 {
	switch {
	case days <= 0:
		return 100
	case days <= resolutionExcellentDays:
		return clamp(90+(resolutionExcellentDays-days)/resolutionExcellentDays*10, 0, 100)
	case days <= resolutionGoodDays:
		return 75 + (resolutionGoodDays-days)/(resolutionGoodDays-resolutionExcellentDays)*15
	case days <= resolutionAverageDays:
		return 60 + (resolutionAverageDays-days)/(resolutionAverageDays-resolutionGoodDays)*15
	default:
		return clamp(resolutionAverageDays/days*60, 0, 60)
	}
}

// gradeUtilization scores capacity usage: the 70-80% band is optimal,
// idle agencies and overloaded agencies both score lower.
func gradeUtilization(u float64) float64 {
	switch {
	case u < 0.7:
		return u / 0.7 * 100
	case u <= 0.8:
		return 100
	default:
		return clamp(100-(u-0.8)/0.2*50, 0, 100)
	}
}

// gradeExperience scores total case volume, saturating at 200 cases.
func gradeExperience(total int) float64 {
	return clamp(float64(total)/200*100, 0, 100)
}

// ScoreCard is the full derived score set for one agency.
type ScoreCard struct {
	Overall      float64
	Performance  float64
	Reliability  float64
	Efficiency   float64
	Ranking      int
	Strengths    []string
	Improvements []string
}

// Score computes the agency's score card from its performance history.
// Every component is non-decreasing in its inputs, so improving any
// metric can never lower the overall score.
func Score(d *models.DCA, weights policy.ScoringWeights) ScoreCard {
	recovery := recoveryBenchmark.grade(d.Performance.AverageRecoveryRate, 100)
	resolution := gradeResolutionTime(d.Performance.AverageRecoveryTime)
	slaScore := slaBenchmark.grade(d.Performance.SLACompliance, 100)
	satisfaction := satisfactionBenchmark.grade(d.Performance.CustomerSatisfaction, 5)
	utilization := gradeUtilization(d.Capacity.Utilization())
	experience := gradeExperience(d.Performance.TotalCasesHandled)

	performance := recovery*0.7 + resolution*0.3
	reliability := slaScore
	efficiency := satisfaction*0.5 + utilization*0.3 + experience*0.2

	overall := performance*weights.Performance +
		reliability*weights.Reliability +
		efficiency*weights.Efficiency

	card := ScoreCard{
		Overall:     round2(overall),
		Performance: round2(performance),
		Reliability: round2(reliability),
		Efficiency:  round2(efficiency),
		Ranking:     rankingFor(overall),
	}
	card.Strengths, card.Improvements = insights(recovery, resolution, slaScore, satisfaction)
	return card
}

// rankingFor buckets the overall score into tiers 1 (best) to 5.
func rankingFor(overall float64) int {
	switch {
	case overall >= 90:
		return 1
	case overall >= 80:
		return 2
	case overall >= 70:
		return 3
	case overall >= 60:
		return 4
	default:
		return 5
	}
}

func insights(recovery, resolution, slaScore, satisfaction float64) (strengths, improvements []string) {
	if recovery >= 75 {
		strengths = append(strengths, "strong recovery performance")
	} else if recovery < 60 {
		improvements = append(improvements, "recovery rate below industry average")
	}
	if resolution >= 75 {
		strengths = append(strengths, "fast case resolution")
	} else if resolution < 60 {
		improvements = append(improvements, "resolution time exceeds industry average")
	}
	if slaScore >= 75 {
		strengths = append(strengths, "consistent SLA compliance")
	} else if slaScore < 60 {
		improvements = append(improvements, "SLA compliance needs attention")
	}
	if satisfaction >= 75 {
		strengths = append(strengths, "high customer satisfaction")
	} else if satisfaction < 60 {
		improvements = append(improvements, "customer satisfaction below expectations")
	}
	return strengths, improvements
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
