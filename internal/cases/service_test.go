// internal/cases/service_test.go
package cases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/engine/capacity"
	"dca-platform/internal/engine/scoring"
	"dca-platform/internal/models"
	"dca-platform/internal/notify"
	"dca-platform/internal/store"
	"dca-platform/pkg/policy"
)

var testNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	store  *store.Store
	ledger *capacity.Ledger
	sink   *notify.CaptureSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New(logger.NewNoOpLogger())
	ledger := capacity.NewLedger()
	ledger.Register(&models.DCA{
		ID:       "dca-1",
		Status:   models.DCAStatusActive,
		Contract: models.Contract{Status: models.ContractActive},
		Capacity: models.Capacity{MaxConcurrentCases: 5},
	})
	require.NoError(t, ledger.Reserve("dca-1", 1))

	sink := &notify.CaptureSink{}
	agg := scoring.NewAggregator(ledger, policy.Default().Scoring, logger.NewNoOpLogger()).
		WithClock(func() time.Time { return testNow })
	svc := NewService(st, ledger, agg, sink, logger.NewNoOpLogger()).
		WithClock(func() time.Time { return testNow })

	return &fixture{svc: svc, store: st, ledger: ledger, sink: sink}
}

func (f *fixture) seedAssignedCase(t *testing.T, id string, status models.CaseStatus) {
	t.Helper()
	assigned := testNow.Add(-72 * time.Hour)
	expected := testNow.Add(720 * time.Hour)
	c := &models.Case{
		ID:          id,
		CaseNumber:  "CASE-2024-" + id,
		Status:      status,
		AssignedDCA: "dca-1",
		Debt: models.Debt{
			OriginalAmount: 1000,
			CurrentAmount:  1000,
			Currency:       "EUR",
			DueDate:        testNow.AddDate(0, 0, -40),
		},
		SLA:   models.SLA{ResponseTimeHours: 24, ResolutionTimeHours: 720, EscalationTimeHours: 48},
		Dates: models.CaseDates{AssignedDate: &assigned, ExpectedResolution: &expected},
	}
	c.RemainingBalance = 1000
	require.NoError(t, f.store.PutCase(c))
}

func TestRecordCommunication_DrivesTransitions(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusAssigned)

	c, err := f.svc.RecordCommunication(context.Background(), "c1", CommunicationInput{
		Channel: "call", Direction: "outbound", Outcome: "contacted", AgentID: "agent-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusContacted, c.Status)
	require.NotNil(t, c.Dates.FirstContact)
	assert.Equal(t, 1, c.PreviousInteractions)
	require.Len(t, c.Communications, 1)
	assert.Equal(t, "CALL", c.Communications[0].Channel)

	c, err = f.svc.RecordCommunication(context.Background(), "c1", CommunicationInput{
		Channel: "call", Outcome: "negotiation",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusNegotiating, c.Status)

	// Outcomes that drive no legal transition still append the record.
	c, err = f.svc.RecordCommunication(context.Background(), "c1", CommunicationInput{
		Channel: "sms", Outcome: "no_answer",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusNegotiating, c.Status)
	assert.Len(t, c.Communications, 3)
}

func TestRecordCommunication_Validation(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusAssigned)

	_, err := f.svc.RecordCommunication(context.Background(), "c1", CommunicationInput{Outcome: "CONTACTED"})
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	_, err = f.svc.RecordCommunication(context.Background(), "c1", CommunicationInput{Channel: "call", Outcome: "SHOUTED"})
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestRecordPayment_RecomputesDerivedState(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusNegotiating)

	c, err := f.svc.RecordPayment(context.Background(), "c1", PaymentInput{
		Amount: 400, Currency: "EUR", Method: "TRANSFER",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(400), c.TotalPaid)
	assert.Equal(t, float64(600), c.Debt.CurrentAmount)
	assert.Equal(t, float64(40), c.RecoveryRate)
	assert.Equal(t, models.CaseStatusNegotiating, c.Status)
}

func TestRecordPayment_FullPaymentAutoResolves(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusPaymentPlan)

	c, err := f.svc.RecordPayment(context.Background(), "c1", PaymentInput{Amount: 1000, Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusResolved, c.Status)
	assert.Empty(t, c.AssignedDCA)
	assert.Equal(t, "PAID_IN_FULL", c.ResolutionReason)

	// Slot released and outcome recorded.
	snap, _ := f.ledger.Snapshot("dca-1")
	assert.Equal(t, 0, snap.Capacity.CurrentCaseLoad)
	assert.Equal(t, 1, snap.Performance.TotalCasesHandled)
	assert.Equal(t, float64(1000), snap.Performance.TotalAmountRecovered)

	require.Len(t, f.sink.Events, 1)
	assert.Equal(t, models.EventCaseResolved, f.sink.Events[0].Type)
	assert.Equal(t, "dca-1", f.sink.Events[0].DCAID)
}

func TestRecordPayment_PendingPaymentDoesNotResolve(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusNegotiating)

	c, err := f.svc.RecordPayment(context.Background(), "c1", PaymentInput{
		Amount: 1000, Status: models.PaymentPending,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(0), c.TotalPaid)
	assert.Equal(t, models.CaseStatusNegotiating, c.Status)
}

func TestRecordPayment_RejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusNegotiating)

	_, err := f.svc.RecordPayment(context.Background(), "c1", PaymentInput{Amount: 0})
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	_, err = f.svc.RecordPayment(context.Background(), "c1", PaymentInput{Amount: -5})
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestEscalate_ManualEscalation(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusContacted)

	c, err := f.svc.Escalate(context.Background(), "c1", "customer unresponsive", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusEscalated, c.Status)
	assert.Equal(t, 1, c.EscalationLevel())
	assert.Equal(t, models.EscalationReasonManual, c.Escalations[0].Reason)

	// A second manual escalation raises the level without a transition.
	c, err = f.svc.Escalate(context.Background(), "c1", "still unresponsive", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusEscalated, c.Status)
	assert.Equal(t, 2, c.EscalationLevel())

	require.Len(t, f.sink.Events, 2)
	assert.Equal(t, models.EventCaseEscalated, f.sink.Events[0].Type)
}

func TestMoveToLegal(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusContacted)

	_, err := f.svc.Escalate(context.Background(), "c1", "unresponsive", "agent-1")
	require.NoError(t, err)

	_, err = f.svc.MoveToLegal(context.Background(), "c1", false)
	assert.Equal(t, errors.ErrCodeComplianceCheckFailed, errors.CodeOf(err))

	c, err := f.svc.MoveToLegal(context.Background(), "c1", true)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusLegal, c.Status)
}

func TestResolve_ManualWithReason(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusNegotiating)

	_, err := f.svc.Resolve(context.Background(), "c1", "")
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	c, err := f.svc.Resolve(context.Background(), "c1", "WRITTEN_OFF")
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusResolved, c.Status)
	assert.Equal(t, "WRITTEN_OFF", c.ResolutionReason)
	require.NotNil(t, c.Dates.ActualResolution)

	snap, _ := f.ledger.Snapshot("dca-1")
	assert.Equal(t, 0, snap.Capacity.CurrentCaseLoad)
}

func TestClose_FinalizesCase(t *testing.T) {
	f := newFixture(t)
	f.seedAssignedCase(t, "c1", models.CaseStatusNegotiating)

	_, err := f.svc.Resolve(context.Background(), "c1", "WRITTEN_OFF")
	require.NoError(t, err)

	c, err := f.svc.Close(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, c.Status.IsTerminal())

	// Slot was already released at resolution; closing must not
	// release it again.
	snap, _ := f.ledger.Snapshot("dca-1")
	assert.Equal(t, 0, snap.Capacity.CurrentCaseLoad)

	// Closed cases reject further mutation.
	_, err = f.svc.RecordPayment(context.Background(), "c1", PaymentInput{Amount: 10})
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))
}
