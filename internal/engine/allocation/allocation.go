// internal/engine/allocation/allocation.go
package allocation

import (
	"context"
	"math"
	"sort"
	"time"

	"dca-platform/internal/common/config"
	"dca-platform/internal/common/database"
	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/common/metrics"
	"dca-platform/internal/engine/capacity"
	"dca-platform/internal/engine/statemachine"
	"dca-platform/internal/models"
	"dca-platform/internal/notify"
	"dca-platform/internal/store"
)

// deferredQueueKey is the Redis list of case IDs waiting for capacity.
const deferredQueueKey = "allocation:deferred"

// CandidateScore is one ranked candidate with its score breakdown.
type CandidateScore struct {
	DCAID       string  `json:"dcaId"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Utilization float64 `json:"utilization"`
}

// Result describes a committed allocation.
type Result struct {
	CaseID       string           `json:"caseId"`
	DCAID        string           `json:"dcaId"`
	Score        float64          `json:"score"`
	Alternatives []CandidateScore `json:"alternatives,omitempty"`
	AllocatedAt  time.Time        `json:"allocatedAt"`
}

// Engine binds NEW cases to eligible agencies: filter, rank by a
// weighted composite, reserve capacity and commit the transition
// all-or-nothing.
type Engine struct {
	store  *store.Store
	ledger *capacity.Ledger
	cfg    config.AllocationConfig
	sink   notify.Sink
	redis  *database.RedisClient
	logger logger.Logger
	now    func() time.Time
}

func NewEngine(st *store.Store, ledger *capacity.Ledger, cfg config.AllocationConfig, sink notify.Sink, redis *database.RedisClient, log logger.Logger) *Engine {
	return &Engine{
		store:  st,
		ledger: ledger,
		cfg:    cfg,
		sink:   sink,
		redis:  redis,
		logger: log.WithFields(map[string]interface{}{"component": "allocation"}),
		now:    time.Now,
	}
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Allocate selects an agency for a NEW case and commits the binding.
// When no agency is eligible the case stays NEW and is queued for a
// deferred retry. A commit that loses a concurrent-mutation race is
// retried whole, bounded by MaxConflictRetries.
func (e *Engine) Allocate(ctx context.Context, caseID string) (*Result, error) {
	return e.withConflictRetry(caseID, func() (*Result, error) {
		return e.allocate(ctx, caseID)
	})
}

// withConflictRetry re-runs op while it keeps failing with
// CONCURRENCY_CONFLICT, up to MaxConflictRetries extra attempts.
func (e *Engine) withConflictRetry(caseID string, op func() (*Result, error)) (*Result, error) {
	res, err := op()
	for retry := 0; retry < e.cfg.MaxConflictRetries; retry++ {
		if err == nil || errors.CodeOf(err) != errors.ErrCodeConcurrencyConflict {
			return res, err
		}
		e.logger.Warn("allocation lost a concurrent mutation race, retrying", map[string]interface{}{
			"case_id": caseID,
			"retry":   retry + 1,
		})
		res, err = op()
	}
	return res, err
}

func (e *Engine) allocate(ctx context.Context, caseID string) (*Result, error) {
	c, err := e.store.GetCase(caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CaseStatusNew {
		return nil, errors.NewInvalidTransitionError(string(c.Status), string(models.CaseStatusAssigned))
	}

	requirement := specializationFor(c)
	ranked := e.rank(c, requirement)
	if len(ranked) == 0 {
		e.deferCase(ctx, caseID)
		metrics.AllocationsFailed.WithLabelValues(string(errors.ErrCodeNoEligibleDCA)).Inc()
		return nil, errors.NewNoEligibleDCAError(caseID)
	}

	attempts := len(ranked)
	if e.cfg.MaxAttempts > 0 && attempts > e.cfg.MaxAttempts {
		attempts = e.cfg.MaxAttempts
	}

	for i := 0; i < attempts; i++ {
		candidate := ranked[i]
		result, err := e.commit(caseID, candidate, alternativesAfter(ranked, i))
		if err != nil {
			if errors.CodeOf(err) == errors.ErrCodeCapacityExceeded {
				// Lost the race for this agency's last slot; try the next one.
				e.logger.Warn("candidate filled up during allocation", map[string]interface{}{
					"case_id": caseID,
					"dca_id":  candidate.DCAID,
				})
				continue
			}
			return nil, err
		}

		metrics.AllocationsCompleted.WithLabelValues("assigned").Inc()
		e.sink.Emit(ctx, models.NotificationEvent{
			Type:      models.EventCaseAssigned,
			CaseID:    caseID,
			DCAID:     result.DCAID,
			Timestamp: result.AllocatedAt,
			Details:   map[string]interface{}{"score": result.Score},
		})
		e.logger.Info("case allocated", map[string]interface{}{
			"case_id": caseID,
			"dca_id":  result.DCAID,
			"score":   result.Score,
		})
		return result, nil
	}

	e.deferCase(ctx, caseID)
	metrics.AllocationsFailed.WithLabelValues(string(errors.ErrCodeNoEligibleDCA)).Inc()
	return nil, errors.NewNoEligibleDCAError(caseID)
}

// commit reserves the candidate's slot and applies the case-side
// effects under the per-case lock. A failed transition rolls the
// reservation back so no partial effect survives.
func (e *Engine) commit(caseID string, candidate CandidateScore, alternatives []CandidateScore) (*Result, error) {
	if err := e.ledger.Reserve(candidate.DCAID, 1); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	_, err := e.store.UpdateCase(caseID, func(c *models.Case) error {
		if c.Status != models.CaseStatusNew {
			return errors.NewConcurrencyConflictError("case left NEW during allocation: " + caseID)
		}

		c.AssignedDCA = candidate.DCAID
		if c.SLA.ResponseTimeHours == 0 {
			c.SLA.ResponseTimeHours = e.cfg.DefaultSLA.ResponseTimeHours
		}
		if c.SLA.ResolutionTimeHours == 0 {
			c.SLA.ResolutionTimeHours = e.cfg.DefaultSLA.ResolutionTimeHours
		}
		if c.SLA.EscalationTimeHours == 0 {
			c.SLA.EscalationTimeHours = e.cfg.DefaultSLA.EscalationTimeHours
		}

		if err := statemachine.Transition(c, statemachine.Request{
			Target: models.CaseStatusAssigned,
			Actor:  statemachine.ActorAllocationEngine,
			Now:    now,
		}); err != nil {
			return err
		}

		expected := now.Add(time.Duration(c.SLA.ResolutionTimeHours) * time.Hour)
		c.Dates.ExpectedResolution = &expected
		return nil
	})
	if err != nil {
		if relErr := e.ledger.Release(candidate.DCAID, 1); relErr != nil {
			e.logger.WithError(relErr).Error("failed to roll back reservation", map[string]interface{}{
				"case_id": caseID,
				"dca_id":  candidate.DCAID,
			})
		}
		return nil, err
	}

	metrics.StateTransitions.WithLabelValues(string(models.CaseStatusNew), string(models.CaseStatusAssigned)).Inc()
	return &Result{
		CaseID:       caseID,
		DCAID:        candidate.DCAID,
		Score:        candidate.Score,
		Alternatives: alternatives,
		AllocatedAt:  now,
	}, nil
}

// Reassign releases the case's current slot and re-runs selection.
// The case keeps its ASSIGNED status; only the binding moves.
func (e *Engine) Reassign(ctx context.Context, caseID, reason string) (*Result, error) {
	return e.withConflictRetry(caseID, func() (*Result, error) {
		return e.reassign(ctx, caseID, reason)
	})
}

func (e *Engine) reassign(ctx context.Context, caseID, reason string) (*Result, error) {
	c, err := e.store.GetCase(caseID)
	if err != nil {
		return nil, err
	}
	if c.AssignedDCA == "" {
		return nil, errors.NewValidationError("case has no current assignment: " + caseID)
	}
	if c.Status.IsTerminal() {
		return nil, errors.NewInvalidTransitionError(string(c.Status), string(models.CaseStatusAssigned))
	}

	prior := c.AssignedDCA
	requirement := specializationFor(c)
	ranked := e.rank(c, requirement)

	// Exclude the current holder so a reassignment always moves.
	filtered := ranked[:0]
	for _, cand := range ranked {
		if cand.DCAID != prior {
			filtered = append(filtered, cand)
		}
	}
	if len(filtered) == 0 {
		return nil, errors.NewNoEligibleDCAError(caseID)
	}

	// The prior slot is released before any new reservation: at most
	// one agency ever holds a slot for this case. If no candidate
	// commits, the slot is re-reserved below.
	if err := e.ledger.Release(prior, 1); err != nil {
		return nil, err
	}
	restorePrior := func() {
		if err := e.ledger.Reserve(prior, 1); err != nil {
			e.logger.WithError(err).Error("failed to restore prior reservation", map[string]interface{}{
				"case_id": caseID,
				"dca_id":  prior,
			})
		}
	}

	now := e.now().UTC()
	for _, candidate := range filtered {
		if err := e.ledger.Reserve(candidate.DCAID, 1); err != nil {
			if errors.CodeOf(err) == errors.ErrCodeCapacityExceeded {
				continue
			}
			restorePrior()
			return nil, err
		}

		_, err := e.store.UpdateCase(caseID, func(c *models.Case) error {
			if c.AssignedDCA != prior {
				return errors.NewConcurrencyConflictError("assignment changed during reassignment: " + caseID)
			}
			c.AssignedDCA = candidate.DCAID
			c.Dates.AssignedDate = &now
			c.UpdatedAt = now
			return nil
		})
		if err != nil {
			_ = e.ledger.Release(candidate.DCAID, 1)
			restorePrior()
			return nil, err
		}

		e.sink.Emit(ctx, models.NotificationEvent{
			Type:      models.EventCaseAssigned,
			CaseID:    caseID,
			DCAID:     candidate.DCAID,
			Timestamp: now,
			Details:   map[string]interface{}{"reassigned_from": prior, "reason": reason},
		})
		e.logger.Info("case reassigned", map[string]interface{}{
			"case_id": caseID,
			"from":    prior,
			"to":      candidate.DCAID,
			"reason":  reason,
		})
		return &Result{CaseID: caseID, DCAID: candidate.DCAID, Score: candidate.Score, AllocatedAt: now}, nil
	}

	restorePrior()
	return nil, errors.NewNoEligibleDCAError(caseID)
}

// rank filters eligible agencies and orders them by the weighted
// composite score, best first.
func (e *Engine) rank(c *models.Case, requirement string) []CandidateScore {
	candidates := e.ledger.Candidates(1)

	var ranked []CandidateScore
	for _, d := range candidates {
		if !d.HasSpecialization(requirement) {
			continue
		}
		ranked = append(ranked, CandidateScore{
			DCAID:       d.ID,
			Name:        d.Name,
			Score:       e.score(c, d),
			Utilization: d.Capacity.Utilization(),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Utilization != ranked[j].Utilization {
			return ranked[i].Utilization < ranked[j].Utilization
		}
		return ranked[i].DCAID < ranked[j].DCAID
	})
	return ranked
}

// score computes the weighted composite for one agency against one
// case. Higher is better.
func (e *Engine) score(c *models.Case, d *models.DCA) float64 {
	w := e.cfg.Weights

	var score float64
	if d.HasSpecialization(c.Debt.ServiceType) && c.Debt.ServiceType != "" {
		score += w.Specialization
	}
	score += d.Performance.AverageRecoveryRate * w.RecoveryRate
	score += d.Performance.SLACompliance * w.SLACompliance
	score += (1 - d.Capacity.Utilization()) * w.LoadBalance
	score += d.Performance.CustomerSatisfaction / 5 * w.Satisfaction
	if e.isPreferred(d) {
		score += w.Preferred
	}
	return math.Round(score*100) / 100
}

func (e *Engine) isPreferred(d *models.DCA) bool {
	if d.Flags.IsPreferred {
		return true
	}
	for _, id := range e.cfg.PreferredDCAs {
		if id == d.ID {
			return true
		}
	}
	return false
}

func specializationFor(c *models.Case) string {
	return c.Debt.ServiceType
}

// alternativesAfter returns up to three runner-up candidates.
func alternativesAfter(ranked []CandidateScore, chosen int) []CandidateScore {
	var out []CandidateScore
	for i := chosen + 1; i < len(ranked) && len(out) < 3; i++ {
		out = append(out, ranked[i])
	}
	return out
}

// deferCase queues the case for the next deferred-retry sweep.
func (e *Engine) deferCase(ctx context.Context, caseID string) {
	if e.redis == nil {
		return
	}
	if err := e.redis.Client.RPush(ctx, deferredQueueKey, caseID).Err(); err != nil {
		e.logger.WithError(err).Warn("failed to queue case for deferred allocation", map[string]interface{}{
			"case_id": caseID,
		})
	}
}

// AllocatePending sweeps every case still NEW and tries to allocate it.
// Cases without an eligible agency are queued for a deferred retry by
// Allocate itself.
func (e *Engine) AllocatePending(ctx context.Context) {
	start := e.now()

	for _, caseID := range e.store.CaseIDsByStatus(models.CaseStatusNew) {
		if _, err := e.Allocate(ctx, caseID); err != nil {
			code := errors.CodeOf(err)
			if code != errors.ErrCodeNoEligibleDCA && code != errors.ErrCodeInvalidTransition {
				e.logger.WithError(err).Error("pending allocation failed", map[string]interface{}{
					"case_id": caseID,
				})
			}
		}
	}

	metrics.SweepDuration.WithLabelValues("pending_allocation").Observe(e.now().Sub(start).Seconds())
}

// RetryDeferred drains the deferred queue and retries allocation for
// each case still NEW. Cases that again find no agency are re-queued
// by Allocate itself.
func (e *Engine) RetryDeferred(ctx context.Context) {
	if e.redis == nil {
		return
	}

	start := e.now()
	queued, err := e.redis.Client.LLen(ctx, deferredQueueKey).Result()
	if err != nil {
		e.logger.WithError(err).Warn("failed to read deferred queue", nil)
		return
	}

	for i := int64(0); i < queued; i++ {
		caseID, err := e.redis.Client.LPop(ctx, deferredQueueKey).Result()
		if err != nil {
			break
		}

		c, err := e.store.GetCase(caseID)
		if err != nil || c.Status != models.CaseStatusNew {
			continue
		}

		if _, err := e.Allocate(ctx, caseID); err != nil {
			if errors.CodeOf(err) != errors.ErrCodeNoEligibleDCA {
				e.logger.WithError(err).Error("deferred allocation failed", map[string]interface{}{
					"case_id": caseID,
				})
			}
		}
	}

	metrics.SweepDuration.WithLabelValues("deferred_allocation").Observe(e.now().Sub(start).Seconds())
}
