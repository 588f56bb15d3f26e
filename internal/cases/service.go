// internal/cases/service.go
package cases

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/common/metrics"
	"dca-platform/internal/engine/capacity"
	"dca-platform/internal/engine/derived"
	"dca-platform/internal/engine/scoring"
	"dca-platform/internal/engine/statemachine"
	"dca-platform/internal/models"
	"dca-platform/internal/notify"
	"dca-platform/internal/store"
)

// CommunicationInput is the caller-supplied part of a communication.
type CommunicationInput struct {
	Channel   string `json:"channel"`
	Direction string `json:"direction"`
	Summary   string `json:"summary,omitempty"`
	Outcome   string `json:"outcome"`
	AgentID   string `json:"agentId,omitempty"`
}

// PaymentInput is the caller-supplied part of a payment.
type PaymentInput struct {
	Amount   float64              `json:"amount"`
	Currency string               `json:"currency,omitempty"`
	Method   string               `json:"method,omitempty"`
	Status   models.PaymentStatus `json:"status,omitempty"`
	PaidAt   time.Time            `json:"paidAt"`
}

var validOutcomes = map[string]bool{
	"CONTACTED":    true,
	"NO_ANSWER":    true,
	"NEGOTIATION":  true,
	"PAYMENT_PLAN": true,
	"DISPUTE":      true,
}

// Service is the agent-facing mutation surface of a case: payments,
// communications, escalations and resolution. It owns the terminal
// side effects: releasing capacity exactly once and feeding the
// scoring aggregator.
type Service struct {
	store  *store.Store
	ledger *capacity.Ledger
	agg    *scoring.Aggregator
	sink   notify.Sink
	logger logger.Logger
	now    func() time.Time
}

func NewService(st *store.Store, ledger *capacity.Ledger, agg *scoring.Aggregator, sink notify.Sink, log logger.Logger) *Service {
	return &Service{
		store:  st,
		ledger: ledger,
		agg:    agg,
		sink:   sink,
		logger: log.WithFields(map[string]interface{}{"component": "cases"}),
		now:    time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordCommunication appends a contact attempt and advances the case
// status according to the outcome.
func (s *Service) RecordCommunication(ctx context.Context, caseID string, in CommunicationInput) (*models.Case, error) {
	if in.Channel == "" {
		return nil, errors.NewValidationError("communication channel is required")
	}
	outcome := strings.ToUpper(in.Outcome)
	if !validOutcomes[outcome] {
		return nil, errors.NewValidationError("unknown communication outcome: " + in.Outcome)
	}

	now := s.now().UTC()
	updated, err := s.store.UpdateCase(caseID, func(c *models.Case) error {
		if c.Status.IsTerminal() || c.Status == models.CaseStatusNew {
			return errors.NewInvalidTransitionError(string(c.Status), string(models.CaseStatusContacted))
		}

		c.Communications = append(c.Communications, models.Communication{
			ID:         uuid.NewString(),
			Channel:    strings.ToUpper(in.Channel),
			Direction:  strings.ToUpper(in.Direction),
			Summary:    in.Summary,
			Outcome:    outcome,
			AgentID:    in.AgentID,
			OccurredAt: now,
		})
		c.PreviousInteractions++
		if c.Dates.FirstContact == nil {
			c.Dates.FirstContact = &now
		}
		c.Dates.LastContact = &now

		if target, ok := statusForOutcome(c.Status, outcome); ok {
			from := c.Status
			if err := statemachine.Transition(c, statemachine.Request{
				Target: target,
				Actor:  statemachine.ActorAgent,
				Now:    now,
			}); err != nil {
				return err
			}
			metrics.StateTransitions.WithLabelValues(string(from), string(target)).Inc()
		} else {
			c.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("communication recorded", map[string]interface{}{
		"case_id": caseID,
		"outcome": outcome,
		"status":  string(updated.Status),
	})
	return updated, nil
}

// statusForOutcome maps a communication outcome to the transition it
// drives from the given status, when one applies.
func statusForOutcome(from models.CaseStatus, outcome string) (models.CaseStatus, bool) {
	var target models.CaseStatus
	switch outcome {
	case "CONTACTED":
		target = models.CaseStatusContacted
	case "NEGOTIATION", "DISPUTE":
		target = models.CaseStatusNegotiating
	case "PAYMENT_PLAN":
		target = models.CaseStatusPaymentPlan
	case "NO_ANSWER":
		if from == models.CaseStatusAssigned {
			return models.CaseStatusInProgress, true
		}
		return "", false
	default:
		return "", false
	}
	if from == target || !statemachine.CanTransition(from, target) {
		return "", false
	}
	return target, true
}

// RecordPayment appends a payment and recomputes the derived
// financials. A COMPLETED payment that clears the balance resolves the
// case automatically.
func (s *Service) RecordPayment(ctx context.Context, caseID string, in PaymentInput) (*models.Case, error) {
	if in.Amount <= 0 {
		return nil, errors.NewValidationError("payment amount must be positive")
	}
	if in.Status == "" {
		in.Status = models.PaymentCompleted
	}

	now := s.now().UTC()
	var resolution *resolutionEffect

	updated, err := s.store.UpdateCase(caseID, func(c *models.Case) error {
		resolution = nil
		if c.Status.IsTerminal() {
			return errors.NewInvalidTransitionError(string(c.Status), string(c.Status))
		}

		paidAt := in.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		c.Payments = append(c.Payments, models.Payment{
			ID:         uuid.NewString(),
			Amount:     in.Amount,
			Currency:   in.Currency,
			Method:     in.Method,
			Status:     in.Status,
			PaidAt:     paidAt,
			RecordedAt: now,
		})
		derived.Recompute(c, now)
		c.UpdatedAt = now

		if c.RemainingBalance == 0 && statemachine.CanTransition(c.Status, models.CaseStatusResolved) {
			return s.resolveInPlace(c, "PAID_IN_FULL", now, &resolution)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.applyResolutionEffects(ctx, resolution)
	s.logger.Info("payment recorded", map[string]interface{}{
		"case_id":   caseID,
		"amount":    in.Amount,
		"remaining": updated.RemainingBalance,
	})
	return updated, nil
}

// Escalate raises a manual escalation and moves the case to ESCALATED
// when it is not there yet.
func (s *Service) Escalate(ctx context.Context, caseID, description, escalatedBy string) (*models.Case, error) {
	now := s.now().UTC()
	var level int

	updated, err := s.store.UpdateCase(caseID, func(c *models.Case) error {
		if c.Status.IsTerminal() {
			return errors.NewInvalidTransitionError(string(c.Status), string(models.CaseStatusEscalated))
		}

		level = c.EscalationLevel() + 1
		c.Escalations = append(c.Escalations, models.Escalation{
			ID:          uuid.NewString(),
			Level:       level,
			Reason:      models.EscalationReasonManual,
			Description: description,
			EscalatedBy: escalatedBy,
			EscalatedAt: now,
		})

		if c.Status != models.CaseStatusEscalated {
			from := c.Status
			if err := statemachine.Transition(c, statemachine.Request{
				Target: models.CaseStatusEscalated,
				Actor:  statemachine.ActorAgent,
				Now:    now,
			}); err != nil {
				return err
			}
			metrics.StateTransitions.WithLabelValues(string(from), string(models.CaseStatusEscalated)).Inc()
		} else {
			c.Dates.EscalationDate = &now
			c.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sink.Emit(ctx, models.NotificationEvent{
		Type:      models.EventCaseEscalated,
		CaseID:    caseID,
		DCAID:     updated.AssignedDCA,
		Timestamp: now,
		Details:   map[string]interface{}{"level": level, "reason": models.EscalationReasonManual},
	})
	return updated, nil
}

// MoveToLegal advances an escalated case into legal proceedings. The
// caller asserts the compliance check has passed.
func (s *Service) MoveToLegal(ctx context.Context, caseID string, complianceChecked bool) (*models.Case, error) {
	now := s.now().UTC()
	return s.store.UpdateCase(caseID, func(c *models.Case) error {
		from := c.Status
		if err := statemachine.Transition(c, statemachine.Request{
			Target:            models.CaseStatusLegal,
			Actor:             statemachine.ActorAgent,
			ComplianceChecked: complianceChecked,
			Now:               now,
		}); err != nil {
			return err
		}
		metrics.StateTransitions.WithLabelValues(string(from), string(models.CaseStatusLegal)).Inc()
		return nil
	})
}

// Resolve marks a case resolved, releases its capacity slot and feeds
// the outcome to the scoring aggregator.
func (s *Service) Resolve(ctx context.Context, caseID, reason string) (*models.Case, error) {
	now := s.now().UTC()
	var resolution *resolutionEffect

	updated, err := s.store.UpdateCase(caseID, func(c *models.Case) error {
		resolution = nil
		derived.Recompute(c, now)
		return s.resolveInPlace(c, reason, now, &resolution)
	})
	if err != nil {
		return nil, err
	}

	s.applyResolutionEffects(ctx, resolution)
	return updated, nil
}

// Close finalizes a resolved case. Capacity still held at this point
// is released, covering paths that resolved without a slot release.
func (s *Service) Close(ctx context.Context, caseID string) (*models.Case, error) {
	now := s.now().UTC()
	var holder string

	updated, err := s.store.UpdateCase(caseID, func(c *models.Case) error {
		holder = c.AssignedDCA
		from := c.Status
		if err := statemachine.Transition(c, statemachine.Request{
			Target: models.CaseStatusClosed,
			Actor:  statemachine.ActorAgent,
			Now:    now,
		}); err != nil {
			return err
		}
		c.AssignedDCA = ""
		metrics.StateTransitions.WithLabelValues(string(from), string(models.CaseStatusClosed)).Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if holder != "" {
		if err := s.ledger.Release(holder, 1); err != nil {
			s.logger.WithError(err).Error("failed to release capacity at close", map[string]interface{}{
				"case_id": caseID,
				"dca_id":  holder,
			})
		}
	}
	return updated, nil
}

// resolutionEffect carries the post-commit work of a resolution.
type resolutionEffect struct {
	dcaID    string
	snapshot *models.Case
	at       time.Time
}

// resolveInPlace applies the RESOLVED transition on the working copy
// and stages the terminal side effects. The capacity slot is released
// exactly once: AssignedDCA is cleared in the same commit.
func (s *Service) resolveInPlace(c *models.Case, reason string, now time.Time, out **resolutionEffect) error {
	from := c.Status
	dcaID := c.AssignedDCA

	if err := statemachine.Transition(c, statemachine.Request{
		Target: models.CaseStatusResolved,
		Actor:  statemachine.ActorAgent,
		Reason: reason,
		Now:    now,
	}); err != nil {
		return err
	}
	c.AssignedDCA = ""
	metrics.StateTransitions.WithLabelValues(string(from), string(models.CaseStatusResolved)).Inc()

	*out = &resolutionEffect{dcaID: dcaID, snapshot: c.Clone(), at: now}
	return nil
}

func (s *Service) applyResolutionEffects(ctx context.Context, eff *resolutionEffect) {
	if eff == nil {
		return
	}

	if eff.dcaID != "" {
		if err := s.ledger.Release(eff.dcaID, 1); err != nil {
			s.logger.WithError(err).Error("failed to release capacity at resolution", map[string]interface{}{
				"case_id": eff.snapshot.ID,
				"dca_id":  eff.dcaID,
			})
		}
		if s.agg != nil {
			if err := s.agg.RecordOutcome(eff.dcaID, eff.snapshot); err != nil {
				s.logger.WithError(err).Error("failed to record case outcome", map[string]interface{}{
					"case_id": eff.snapshot.ID,
					"dca_id":  eff.dcaID,
				})
			}
		}
	}

	s.sink.Emit(ctx, models.NotificationEvent{
		Type:      models.EventCaseResolved,
		CaseID:    eff.snapshot.ID,
		DCAID:     eff.dcaID,
		Timestamp: eff.at,
		Details:   map[string]interface{}{"reason": eff.snapshot.ResolutionReason, "recovery_rate": eff.snapshot.RecoveryRate},
	})
	s.logger.Info("case resolved", map[string]interface{}{
		"case_id":       eff.snapshot.ID,
		"dca_id":        eff.dcaID,
		"recovery_rate": eff.snapshot.RecoveryRate,
	})
}
