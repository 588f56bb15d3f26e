// internal/engine/statemachine/statemachine.go
package statemachine

import (
	"time"

	"dca-platform/internal/common/errors"
	"dca-platform/internal/models"
)

// Actor identifies the capability performing a transition. Restricted
// transitions name the actor explicitly instead of inferring it from
// call context.
type Actor string

const (
	ActorAllocationEngine Actor = "ALLOCATION_ENGINE"
	ActorSLAMonitor       Actor = "SLA_MONITOR"
	ActorAgent            Actor = "AGENT"
	ActorSystem           Actor = "SYSTEM"
)

// Request carries a transition target plus everything the guards need.
type Request struct {
	Target models.CaseStatus
	Actor  Actor
	Reason string
	// ComplianceChecked must be set by the caller before moving a
	// case into LEGAL.
	ComplianceChecked bool
	Now               time.Time
}

// allowed is the raw transition table, before guards.
var allowed = map[models.CaseStatus][]models.CaseStatus{
	models.CaseStatusNew:         {models.CaseStatusAssigned, models.CaseStatusEscalated},
	models.CaseStatusAssigned:    {models.CaseStatusInProgress, models.CaseStatusContacted, models.CaseStatusEscalated},
	models.CaseStatusInProgress:  {models.CaseStatusContacted, models.CaseStatusNegotiating, models.CaseStatusPaymentPlan, models.CaseStatusEscalated},
	models.CaseStatusContacted:   {models.CaseStatusNegotiating, models.CaseStatusPaymentPlan, models.CaseStatusResolved, models.CaseStatusEscalated},
	models.CaseStatusNegotiating: {models.CaseStatusPaymentPlan, models.CaseStatusResolved, models.CaseStatusEscalated},
	models.CaseStatusPaymentPlan: {models.CaseStatusNegotiating, models.CaseStatusResolved, models.CaseStatusEscalated},
	models.CaseStatusEscalated:   {models.CaseStatusLegal, models.CaseStatusResolved},
	models.CaseStatusLegal:       {models.CaseStatusResolved, models.CaseStatusEscalated},
	models.CaseStatusResolved:    {models.CaseStatusClosed, models.CaseStatusEscalated},
	models.CaseStatusClosed:      nil,
}

// CanTransition reports whether the raw table permits from→to,
// ignoring guards.
func CanTransition(from, to models.CaseStatus) bool {
	for _, t := range allowed[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change on the case,
// mutating it in place. Callers run it inside the per-case update so
// a guard failure leaves the aggregate untouched.
func Transition(c *models.Case, req Request) error {
	from := c.Status
	to := req.Target

	if from.IsTerminal() || !CanTransition(from, to) {
		return errors.NewInvalidTransitionError(string(from), string(to))
	}

	if err := checkGuards(c, req); err != nil {
		return err
	}

	c.Status = to
	applySideEffects(c, req)
	c.UpdatedAt = req.Now
	return nil
}

func checkGuards(c *models.Case, req Request) error {
	switch req.Target {
	case models.CaseStatusAssigned:
		if req.Actor != ActorAllocationEngine {
			return errors.NewInvalidTransitionError(string(c.Status), string(req.Target))
		}
		if c.AssignedDCA == "" {
			return errors.NewValidationError("transition to ASSIGNED requires an assigned DCA")
		}

	case models.CaseStatusEscalated:
		if len(c.Escalations) == 0 {
			return errors.NewValidationError("transition to ESCALATED requires an escalation record")
		}

	case models.CaseStatusLegal:
		if !req.ComplianceChecked {
			return errors.NewComplianceCheckFailedError(c.ID)
		}

	case models.CaseStatusResolved:
		if c.RemainingBalance > 0 && req.Reason == "" {
			return errors.NewValidationError("resolution with outstanding balance requires a reason")
		}
	}
	return nil
}

func applySideEffects(c *models.Case, req Request) {
	now := req.Now
	switch req.Target {
	case models.CaseStatusAssigned:
		c.Dates.AssignedDate = &now

	case models.CaseStatusContacted, models.CaseStatusInProgress:
		if c.Dates.FirstContact == nil {
			c.Dates.FirstContact = &now
		}
		c.Dates.LastContact = &now

	case models.CaseStatusEscalated:
		c.Dates.EscalationDate = &now

	case models.CaseStatusResolved:
		c.Dates.ActualResolution = &now
		if req.Reason != "" {
			c.ResolutionReason = req.Reason
		}
	}
}
