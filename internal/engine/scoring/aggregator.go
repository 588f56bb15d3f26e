// internal/engine/scoring/aggregator.go
package scoring

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"dca-platform/internal/common/logger"
	"dca-platform/internal/common/metrics"
	"dca-platform/internal/engine/capacity"
	"dca-platform/internal/models"
	"dca-platform/pkg/policy"
)

// Aggregator rolls terminal case outcomes into DCA performance history
// and recomputes score cards on a scheduled cadence.
type Aggregator struct {
	ledger  *capacity.Ledger
	weights policy.ScoringWeights
	logger  logger.Logger
	cron    *cron.Cron
	now     func() time.Time
}

func NewAggregator(ledger *capacity.Ledger, weights policy.ScoringWeights, log logger.Logger) *Aggregator {
	return &Aggregator{
		ledger:  ledger,
		weights: weights,
		logger:  log.WithFields(map[string]interface{}{"component": "scoring"}),
		now:     time.Now,
	}
}

// WithClock overrides the aggregator clock, for tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Start schedules the score recomputation pass.
func (a *Aggregator) Start(schedule string) error {
	a.cron = cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	_, err := a.cron.AddFunc(schedule, func() {
		a.RecomputeScores(context.Background())
	})
	if err != nil {
		return err
	}
	a.cron.Start()
	a.logger.Info("scoring aggregator started", map[string]interface{}{
		"schedule": schedule,
	})
	return nil
}

// Stop halts the schedule.
func (a *Aggregator) Stop() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
}

// RecordOutcome folds one terminally-resolved case into the agency's
// rolling performance history and its monthly metrics.
func (a *Aggregator) RecordOutcome(dcaID string, c *models.Case) error {
	resolvedAt := a.now().UTC()
	if c.Dates.ActualResolution != nil {
		resolvedAt = *c.Dates.ActualResolution
	}

	var resolutionDays float64
	if c.Dates.AssignedDate != nil {
		resolutionDays = resolvedAt.Sub(*c.Dates.AssignedDate).Hours() / 24
		if resolutionDays < 0 {
			resolutionDays = 0
		}
	}

	withinSLA := c.Dates.ExpectedResolution == nil || !resolvedAt.After(*c.Dates.ExpectedResolution)

	_, err := a.ledger.Update(dcaID, func(d *models.DCA) error {
		p := &d.Performance
		n := float64(p.TotalCasesHandled)

		p.TotalCasesHandled++
		p.TotalAmountRecovered += c.TotalPaid
		p.AverageRecoveryRate = rollMean(p.AverageRecoveryRate, n, c.RecoveryRate)
		p.AverageRecoveryTime = rollMean(p.AverageRecoveryTime, n, resolutionDays)

		compliance := 0.0
		if withinSLA {
			compliance = 100
		}
		p.SLACompliance = rollMean(p.SLACompliance, n, compliance)

		a.foldMonthlyMetric(d, c, resolvedAt, resolutionDays)
		d.UpdatedAt = resolvedAt
		return nil
	})
	if err != nil {
		return err
	}

	a.logger.Info("case outcome recorded", map[string]interface{}{
		"dca_id":        dcaID,
		"case_id":       c.ID,
		"recovery_rate": c.RecoveryRate,
	})
	return nil
}

// foldMonthlyMetric merges the outcome into the current month's entry,
// appending a new one (oldest evicted at the cap) on month rollover.
func (a *Aggregator) foldMonthlyMetric(d *models.DCA, c *models.Case, resolvedAt time.Time, resolutionDays float64) {
	month := resolvedAt.Format("2006-01")

	if n := len(d.MonthlyMetrics); n > 0 && d.MonthlyMetrics[n-1].Month == month {
		m := &d.MonthlyMetrics[n-1]
		prev := float64(m.CasesResolved)
		m.CasesResolved++
		m.AmountRecovered += c.TotalPaid
		m.RecoveryRate = rollMean(m.RecoveryRate, prev, c.RecoveryRate)
		m.AvgResolutionDays = rollMean(m.AvgResolutionDays, prev, resolutionDays)
		return
	}

	d.AppendMonthlyMetric(models.MonthlyMetric{
		Month:             month,
		CasesResolved:     1,
		AmountRecovered:   c.TotalPaid,
		RecoveryRate:      c.RecoveryRate,
		AvgResolutionDays: resolutionDays,
	})
}

// RecomputeScores refreshes the score card of every registered agency.
// Per-agency failures are logged and never abort the pass.
func (a *Aggregator) RecomputeScores(ctx context.Context) {
	start := a.now()
	scoredAt := start.UTC()

	for _, d := range a.ledger.All() {
		card := Score(d, a.weights)
		_, err := a.ledger.Update(d.ID, func(d *models.DCA) error {
			d.Scoring = models.Scoring{
				OverallScore:     card.Overall,
				PerformanceScore: card.Performance,
				ReliabilityScore: card.Reliability,
				EfficiencyScore:  card.Efficiency,
				Ranking:          card.Ranking,
				Strengths:        card.Strengths,
				Improvements:     card.Improvements,
				ScoredAt:         scoredAt,
			}
			return nil
		})
		if err != nil {
			a.logger.WithError(err).Error("failed to store score card", map[string]interface{}{
				"dca_id": d.ID,
			})
		}
	}

	metrics.SweepDuration.WithLabelValues("scoring").Observe(a.now().Sub(start).Seconds())
}

// rollMean folds one more sample into a running mean of n samples.
func rollMean(mean, n, sample float64) float64 {
	return (mean*n + sample) / (n + 1)
}
