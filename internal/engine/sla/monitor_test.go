// internal/engine/sla/monitor_test.go
package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dca-platform/internal/common/config"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/models"
	"dca-platform/internal/notify"
	"dca-platform/internal/store"
)

var assignedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testSLAConfig() config.SLAConfig {
	return config.SLAConfig{
		SweepSchedule:        "0 */15 * * * *",
		MaxEscalationLevel:   5,
		ReescalateAfterHours: 24,
	}
}

func createAssignedCase(id string, escalationHours int) *models.Case {
	at := assignedAt
	return &models.Case{
		ID:          id,
		Status:      models.CaseStatusAssigned,
		AssignedDCA: "dca-1",
		SLA:         models.SLA{ResponseTimeHours: 24, ResolutionTimeHours: 720, EscalationTimeHours: escalationHours},
		Dates:       models.CaseDates{AssignedDate: &at},
		Debt:        models.Debt{OriginalAmount: 1000, DueDate: assignedAt.AddDate(0, 0, -10)},
	}
}

func newTestMonitor(t *testing.T, at time.Time) (*Monitor, *store.Store, *notify.CaptureSink, *time.Time) {
	t.Helper()
	st := store.New(logger.NewNoOpLogger())
	sink := &notify.CaptureSink{}
	clock := at
	m := NewMonitor(st, testSLAConfig(), sink, logger.NewNoOpLogger()).
		WithClock(func() time.Time { return clock })
	return m, st, sink, &clock
}

func TestSweep_EscalatesBreachedCaseOnce(t *testing.T) {
	m, st, sink, _ := newTestMonitor(t, assignedAt.Add(49*time.Hour))
	require.NoError(t, st.PutCase(createAssignedCase("c1", 48)))

	escalated := m.Sweep(context.Background())
	assert.Equal(t, 1, escalated)

	c, err := st.GetCase("c1")
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusEscalated, c.Status)
	require.Len(t, c.Escalations, 1)
	assert.Equal(t, 1, c.Escalations[0].Level)
	assert.Equal(t, models.EscalationReasonSLABreach, c.Escalations[0].Reason)

	// One SLA_BREACH plus one CASE_ESCALATED.
	require.Len(t, sink.Events, 2)
	assert.Equal(t, models.EventSLABreach, sink.Events[0].Type)
	assert.Equal(t, models.EventCaseEscalated, sink.Events[1].Type)

	// A repeated sweep inside the cadence interval must not duplicate.
	escalated = m.Sweep(context.Background())
	assert.Equal(t, 0, escalated)

	c, _ = st.GetCase("c1")
	assert.Len(t, c.Escalations, 1)
}

func TestSweep_IgnoresCasesWithinDeadline(t *testing.T) {
	m, st, sink, _ := newTestMonitor(t, assignedAt.Add(47*time.Hour))
	require.NoError(t, st.PutCase(createAssignedCase("c1", 48)))

	assert.Equal(t, 0, m.Sweep(context.Background()))

	c, _ := st.GetCase("c1")
	assert.Equal(t, models.CaseStatusAssigned, c.Status)
	assert.Empty(t, c.Escalations)
	assert.Empty(t, sink.Events)
}

func TestSweep_IgnoresUnassignedAndTerminal(t *testing.T) {
	m, st, _, _ := newTestMonitor(t, assignedAt.Add(100*time.Hour))

	fresh := createAssignedCase("c1", 48)
	fresh.Status = models.CaseStatusNew
	fresh.AssignedDCA = ""
	fresh.Dates.AssignedDate = nil
	require.NoError(t, st.PutCase(fresh))

	closed := createAssignedCase("c2", 48)
	closed.Status = models.CaseStatusClosed
	require.NoError(t, st.PutCase(closed))

	assert.Equal(t, 0, m.Sweep(context.Background()))
}

func TestSweep_ReescalationCadenceAndCap(t *testing.T) {
	m, st, sink, clock := newTestMonitor(t, assignedAt.Add(49*time.Hour))
	require.NoError(t, st.PutCase(createAssignedCase("c1", 48)))

	require.Equal(t, 1, m.Sweep(context.Background()))

	// Before the cadence interval elapses nothing happens.
	*clock = clock.Add(12 * time.Hour)
	assert.Equal(t, 0, m.Sweep(context.Background()))

	// Each elapsed interval raises the level by one, up to the cap.
	for level := 2; level <= 5; level++ {
		*clock = clock.Add(25 * time.Hour)
		require.Equal(t, 1, m.Sweep(context.Background()), "level %d", level)

		c, _ := st.GetCase("c1")
		assert.Equal(t, level, c.EscalationLevel())
	}

	// Cap reached: further sweeps are no-ops.
	*clock = clock.Add(25 * time.Hour)
	assert.Equal(t, 0, m.Sweep(context.Background()))

	c, _ := st.GetCase("c1")
	assert.Equal(t, 5, c.EscalationLevel())
	assert.Len(t, c.Escalations, 5)

	// 1 breach + 5 escalation events.
	assert.Len(t, sink.Events, 6)
}

func TestSweep_PerCaseFailureIsIsolated(t *testing.T) {
	m, st, _, _ := newTestMonitor(t, assignedAt.Add(49*time.Hour))

	// An ESCALATED case with no escalation record trips the repair
	// guard; the healthy case behind it must still be processed.
	broken := createAssignedCase("c0", 48)
	broken.Status = models.CaseStatusEscalated
	require.NoError(t, st.PutCase(broken))

	require.NoError(t, st.PutCase(createAssignedCase("c1", 48)))

	assert.Equal(t, 1, m.Sweep(context.Background()))

	c, _ := st.GetCase("c1")
	assert.Equal(t, models.CaseStatusEscalated, c.Status)
}
