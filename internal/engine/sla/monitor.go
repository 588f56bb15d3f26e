// internal/engine/sla/monitor.go
package sla

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"dca-platform/internal/common/config"
	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/common/metrics"
	"dca-platform/internal/engine/statemachine"
	"dca-platform/internal/models"
	"dca-platform/internal/notify"
	"dca-platform/internal/store"
)

// watchedStatuses are the open statuses the monitor scans for
// escalation deadline breaches. ESCALATED is included for the
// re-escalation cadence.
var watchedStatuses = []models.CaseStatus{
	models.CaseStatusAssigned,
	models.CaseStatusInProgress,
	models.CaseStatusContacted,
	models.CaseStatusNegotiating,
	models.CaseStatusPaymentPlan,
	models.CaseStatusEscalated,
}

// Monitor periodically scans open cases for SLA breaches and raises
// escalations. Per-case failures are isolated and never abort a sweep.
type Monitor struct {
	store  *store.Store
	cfg    config.SLAConfig
	sink   notify.Sink
	logger logger.Logger
	cron   *cron.Cron
	now    func() time.Time
}

func NewMonitor(st *store.Store, cfg config.SLAConfig, sink notify.Sink, log logger.Logger) *Monitor {
	return &Monitor{
		store:  st,
		cfg:    cfg,
		sink:   sink,
		logger: log.WithFields(map[string]interface{}{"component": "sla-monitor"}),
		now:    time.Now,
	}
}

// WithClock overrides the monitor clock, for tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Start schedules the sweep on the configured cadence.
func (m *Monitor) Start(ctx context.Context) error {
	m.cron = cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	_, err := m.cron.AddFunc(m.cfg.SweepSchedule, func() {
		m.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("sla monitor started", map[string]interface{}{
		"schedule": m.cfg.SweepSchedule,
	})
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// Sweep scans watched cases once and returns the number of cases it
// escalated or re-escalated.
func (m *Monitor) Sweep(ctx context.Context) int {
	start := m.now()
	ids := m.store.CaseIDsByStatus(watchedStatuses...)

	escalated := 0
	for _, id := range ids {
		acted, err := m.checkCase(ctx, id)
		if err != nil {
			m.logger.WithError(err).Error("sla check failed for case", map[string]interface{}{
				"case_id": id,
			})
			continue
		}
		if acted {
			escalated++
		}
	}

	metrics.SweepDuration.WithLabelValues("sla").Observe(m.now().Sub(start).Seconds())
	if escalated > 0 {
		m.logger.Info("sla sweep completed", map[string]interface{}{
			"scanned":   len(ids),
			"escalated": escalated,
		})
	}
	return escalated
}

// checkCase evaluates one case and escalates it when due. It reports
// whether an escalation was recorded.
func (m *Monitor) checkCase(ctx context.Context, caseID string) (bool, error) {
	now := m.now().UTC()

	var event *models.NotificationEvent
	var breach bool

	_, err := m.store.UpdateCase(caseID, func(c *models.Case) error {
		event = nil
		breach = false

		if c.Status == models.CaseStatusEscalated {
			return m.reescalate(c, now, &event)
		}

		deadline := c.EscalationDeadline()
		if deadline.IsZero() || !now.After(deadline) {
			return nil
		}

		c.Escalations = append(c.Escalations, models.Escalation{
			ID:          uuid.NewString(),
			Level:       1,
			Reason:      models.EscalationReasonSLABreach,
			Description: "escalation deadline exceeded",
			EscalatedAt: now,
		})
		if err := statemachine.Transition(c, statemachine.Request{
			Target: models.CaseStatusEscalated,
			Actor:  statemachine.ActorSLAMonitor,
			Now:    now,
		}); err != nil {
			return err
		}

		breach = true
		event = &models.NotificationEvent{
			Type:      models.EventCaseEscalated,
			CaseID:    c.ID,
			DCAID:     c.AssignedDCA,
			Timestamp: now,
			Details:   map[string]interface{}{"level": 1, "reason": models.EscalationReasonSLABreach},
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if event == nil {
		return false, nil
	}

	if breach {
		metrics.SLABreaches.WithLabelValues(event.DCAID).Inc()
		m.sink.Emit(ctx, models.NotificationEvent{
			Type:      models.EventSLABreach,
			CaseID:    event.CaseID,
			DCAID:     event.DCAID,
			Timestamp: now,
		})
	}
	m.sink.Emit(ctx, *event)
	return true, nil
}

// reescalate raises the level of an already-escalated case once the
// cadence interval has elapsed, up to the configured cap.
func (m *Monitor) reescalate(c *models.Case, now time.Time, event **models.NotificationEvent) error {
	last := c.LatestEscalation()
	if last == nil {
		// ESCALATED without a record should not happen; repair with level 1.
		return errors.NewValidationError("escalated case has no escalation record: " + c.ID)
	}
	if last.Level >= m.cfg.MaxEscalationLevel {
		return nil
	}
	interval := time.Duration(m.cfg.ReescalateAfterHours) * time.Hour
	if now.Sub(last.EscalatedAt) < interval {
		return nil
	}

	next := last.Level + 1
	c.Escalations = append(c.Escalations, models.Escalation{
		ID:          uuid.NewString(),
		Level:       next,
		Reason:      models.EscalationReasonSLABreach,
		Description: "escalation unresolved past cadence interval",
		EscalatedAt: now,
	})
	c.Dates.EscalationDate = &now
	c.UpdatedAt = now

	*event = &models.NotificationEvent{
		Type:      models.EventCaseEscalated,
		CaseID:    c.ID,
		DCAID:     c.AssignedDCA,
		Timestamp: now,
		Details:   map[string]interface{}{"level": next, "reason": models.EscalationReasonSLABreach},
	}
	return nil
}
