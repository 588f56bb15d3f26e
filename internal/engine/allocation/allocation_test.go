// internal/engine/allocation/allocation_test.go
package allocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"dca-platform/internal/common/config"
	"dca-platform/internal/common/database"
	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/engine/capacity"
	"dca-platform/internal/models"
	"dca-platform/internal/notify"
	"dca-platform/internal/store"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.AllocationConfig {
	return config.AllocationConfig{
		Weights: config.AllocationWeights{
			Specialization: 30,
			RecoveryRate:   0.4,
			SLACompliance:  0.3,
			LoadBalance:    20,
			Satisfaction:   10,
			Preferred:      15,
		},
		MaxAttempts: 5,
		DefaultSLA: config.SLADefaults{
			ResponseTimeHours:   24,
			ResolutionTimeHours: 720,
			EscalationTimeHours: 48,
		},
	}
}

func createTestCase(id string) *models.Case {
	return &models.Case{
		ID:         id,
		CaseNumber: "CASE-2024-" + id,
		Status:     models.CaseStatusNew,
		Debt: models.Debt{
			OriginalAmount: 1000,
			CurrentAmount:  1000,
			Currency:       "EUR",
			DueDate:        testNow.AddDate(0, 0, -20),
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

func createTestDCA(id string, max, load int) *models.DCA {
	return &models.DCA{
		ID:       id,
		Name:     "Agency " + id,
		Status:   models.DCAStatusActive,
		Contract: models.Contract{Status: models.ContractActive},
		Capacity: models.Capacity{MaxConcurrentCases: max, CurrentCaseLoad: load},
		Performance: models.Performance{
			AverageRecoveryRate:  60,
			SLACompliance:        90,
			CustomerSatisfaction: 4,
		},
	}
}

func newTestEngine(t *testing.T, dcas ...*models.DCA) (*Engine, *store.Store, *capacity.Ledger, *notify.CaptureSink) {
	t.Helper()
	st := store.New(logger.NewNoOpLogger())
	ledger := capacity.NewLedger()
	for _, d := range dcas {
		ledger.Register(d)
	}
	sink := &notify.CaptureSink{}
	eng := NewEngine(st, ledger, testConfig(), sink, nil, logger.NewNoOpLogger()).
		WithClock(func() time.Time { return testNow })
	return eng, st, ledger, sink
}

func TestAllocate_Commit(t *testing.T) {
	eng, st, ledger, sink := newTestEngine(t, createTestDCA("dca-1", 5, 0))
	require.NoError(t, st.PutCase(createTestCase("c1")))

	res, err := eng.Allocate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "dca-1", res.DCAID)

	c, err := st.GetCase("c1")
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusAssigned, c.Status)
	assert.Equal(t, "dca-1", c.AssignedDCA)
	require.NotNil(t, c.Dates.AssignedDate)
	assert.Equal(t, 48, c.SLA.EscalationTimeHours)
	require.NotNil(t, c.Dates.ExpectedResolution)
	assert.Equal(t, testNow.Add(720*time.Hour), *c.Dates.ExpectedResolution)

	snap, _ := ledger.Snapshot("dca-1")
	assert.Equal(t, 1, snap.Capacity.CurrentCaseLoad)

	require.Len(t, sink.Events, 1)
	assert.Equal(t, models.EventCaseAssigned, sink.Events[0].Type)
}

func TestAllocate_NoEligibleDCA_CaseStaysNew(t *testing.T) {
	full := createTestDCA("dca-1", 5, 5)
	eng, st, _, sink := newTestEngine(t, full)
	require.NoError(t, st.PutCase(createTestCase("c1")))

	_, err := eng.Allocate(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoEligibleDCA, errors.CodeOf(err))

	c, _ := st.GetCase("c1")
	assert.Equal(t, models.CaseStatusNew, c.Status)
	assert.Empty(t, c.AssignedDCA)
	assert.Empty(t, sink.Events)
}

func TestAllocate_AlreadyAssignedFails(t *testing.T) {
	eng, st, ledger, _ := newTestEngine(t, createTestDCA("dca-1", 5, 0))
	require.NoError(t, st.PutCase(createTestCase("c1")))

	_, err := eng.Allocate(context.Background(), "c1")
	require.NoError(t, err)

	_, err = eng.Allocate(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))

	// No double reservation.
	snap, _ := ledger.Snapshot("dca-1")
	assert.Equal(t, 1, snap.Capacity.CurrentCaseLoad)
}

func TestAllocate_SpecializationFilter(t *testing.T) {
	plain := createTestDCA("dca-1", 5, 0)
	specialist := createTestDCA("dca-2", 5, 0)
	specialist.Specializations = []string{"ENTERPRISE"}

	eng, st, _, _ := newTestEngine(t, plain, specialist)

	c := createTestCase("c1")
	c.Debt.ServiceType = "ENTERPRISE"
	require.NoError(t, st.PutCase(c))

	res, err := eng.Allocate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "dca-2", res.DCAID)
}

func TestAllocate_RankingPrefersStrongerAgency(t *testing.T) {
	weak := createTestDCA("dca-1", 10, 8)
	weak.Performance.AverageRecoveryRate = 40
	weak.Performance.SLACompliance = 70

	strong := createTestDCA("dca-2", 10, 2)
	strong.Performance.AverageRecoveryRate = 85
	strong.Performance.SLACompliance = 98

	eng, st, _, _ := newTestEngine(t, weak, strong)
	require.NoError(t, st.PutCase(createTestCase("c1")))

	res, err := eng.Allocate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "dca-2", res.DCAID)
	require.Len(t, res.Alternatives, 1)
	assert.Equal(t, "dca-1", res.Alternatives[0].DCAID)
}

func TestAllocate_PreferredFlagBreaksTie(t *testing.T) {
	a := createTestDCA("dca-1", 5, 0)
	b := createTestDCA("dca-2", 5, 0)
	b.Flags.IsPreferred = true

	eng, st, _, _ := newTestEngine(t, a, b)
	require.NoError(t, st.PutCase(createTestCase("c1")))

	res, err := eng.Allocate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "dca-2", res.DCAID)
}

func TestAllocate_ConcurrentLastSlot(t *testing.T) {
	// One slot on the best agency, plenty on the fallback: both
	// concurrent allocations must succeed, on different agencies.
	best := createTestDCA("dca-1", 1, 0)
	best.Performance.AverageRecoveryRate = 95
	fallback := createTestDCA("dca-2", 10, 0)
	fallback.Performance.AverageRecoveryRate = 50

	eng, st, ledger, _ := newTestEngine(t, best, fallback)
	require.NoError(t, st.PutCase(createTestCase("c1")))
	require.NoError(t, st.PutCase(createTestCase("c2")))

	var wg sync.WaitGroup
	results := make(chan *Result, 2)
	errs := make(chan error, 2)
	for _, id := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(caseID string) {
			defer wg.Done()
			res, err := eng.Allocate(context.Background(), caseID)
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}(id)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("allocation failed: %v", err)
	}

	assigned := map[string]int{}
	for res := range results {
		assigned[res.DCAID]++
	}
	assert.Equal(t, 1, assigned["dca-1"])
	assert.Equal(t, 1, assigned["dca-2"])

	snap, _ := ledger.Snapshot("dca-1")
	assert.Equal(t, 1, snap.Capacity.CurrentCaseLoad)
}

func TestReassign_MovesSlotExactlyOnce(t *testing.T) {
	a := createTestDCA("dca-1", 5, 0)
	a.Performance.AverageRecoveryRate = 90
	b := createTestDCA("dca-2", 5, 0)
	b.Performance.AverageRecoveryRate = 50

	eng, st, ledger, _ := newTestEngine(t, a, b)
	require.NoError(t, st.PutCase(createTestCase("c1")))

	res, err := eng.Allocate(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "dca-1", res.DCAID)

	moved, err := eng.Reassign(context.Background(), "c1", "performance concerns")
	require.NoError(t, err)
	assert.Equal(t, "dca-2", moved.DCAID)

	aSnap, _ := ledger.Snapshot("dca-1")
	bSnap, _ := ledger.Snapshot("dca-2")
	assert.Equal(t, 0, aSnap.Capacity.CurrentCaseLoad)
	assert.Equal(t, 1, bSnap.Capacity.CurrentCaseLoad)

	c, _ := st.GetCase("c1")
	assert.Equal(t, models.CaseStatusAssigned, c.Status)
	assert.Equal(t, "dca-2", c.AssignedDCA)
}

// At no observable point during a reassignment do two agencies hold a
// slot for the same case: the prior reservation is gone by the time
// the new binding commits.
func TestReassign_NeverHoldsTwoSlots(t *testing.T) {
	a := createTestDCA("dca-1", 5, 0)
	a.Performance.AverageRecoveryRate = 90
	b := createTestDCA("dca-2", 5, 0)
	b.Performance.AverageRecoveryRate = 50

	eng, st, ledger, _ := newTestEngine(t, a, b)
	require.NoError(t, st.PutCase(createTestCase("c1")))

	_, err := eng.Allocate(context.Background(), "c1")
	require.NoError(t, err)

	var loadsAtCommit []int
	st.OnMutation(func(c *models.Case) {
		if c.AssignedDCA != "dca-2" {
			return
		}
		aSnap, _ := ledger.Snapshot("dca-1")
		bSnap, _ := ledger.Snapshot("dca-2")
		loadsAtCommit = []int{aSnap.Capacity.CurrentCaseLoad, bSnap.Capacity.CurrentCaseLoad}
	})

	_, err = eng.Reassign(context.Background(), "c1", "performance concerns")
	require.NoError(t, err)

	require.Len(t, loadsAtCommit, 2)
	assert.Equal(t, 0, loadsAtCommit[0], "prior slot must be released before the new binding commits")
	assert.Equal(t, 1, loadsAtCommit[1])
}

// A reassignment that finds no other agency restores the prior
// reservation, leaving capacity exactly as it was.
func TestReassign_NoCandidateRestoresPriorSlot(t *testing.T) {
	a := createTestDCA("dca-1", 5, 0)

	eng, st, ledger, _ := newTestEngine(t, a)
	require.NoError(t, st.PutCase(createTestCase("c1")))

	_, err := eng.Allocate(context.Background(), "c1")
	require.NoError(t, err)

	_, err = eng.Reassign(context.Background(), "c1", "performance concerns")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoEligibleDCA, errors.CodeOf(err))

	snap, _ := ledger.Snapshot("dca-1")
	assert.Equal(t, 1, snap.Capacity.CurrentCaseLoad)
}

func TestConflictRetry_RetriesUpToBound(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	eng.cfg.MaxConflictRetries = 3

	calls := 0
	res, err := eng.withConflictRetry("c1", func() (*Result, error) {
		calls++
		if calls < 3 {
			return nil, errors.NewConcurrencyConflictError("slot taken")
		}
		return &Result{CaseID: "c1", DCAID: "dca-1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "dca-1", res.DCAID)
	assert.Equal(t, 3, calls)

	// Exhaustion surfaces the conflict after the initial attempt
	// plus MaxConflictRetries retries.
	calls = 0
	_, err = eng.withConflictRetry("c2", func() (*Result, error) {
		calls++
		return nil, errors.NewConcurrencyConflictError("slot taken")
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConcurrencyConflict, errors.CodeOf(err))
	assert.Equal(t, 4, calls)
}

func TestConflictRetry_OtherErrorsNotRetried(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	eng.cfg.MaxConflictRetries = 3

	calls := 0
	_, err := eng.withConflictRetry("c1", func() (*Result, error) {
		calls++
		return nil, errors.NewNoEligibleDCAError("c1")
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoEligibleDCA, errors.CodeOf(err))
	assert.Equal(t, 1, calls)
}

func TestRetryDeferred_AllocatesWhenCapacityFrees(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	rc := &database.RedisClient{Client: client}

	full := createTestDCA("dca-1", 1, 1)
	st := store.New(logger.NewNoOpLogger())
	ledger := capacity.NewLedger()
	ledger.Register(full)
	sink := &notify.CaptureSink{}
	eng := NewEngine(st, ledger, testConfig(), sink, rc, logger.NewNoOpLogger()).
		WithClock(func() time.Time { return testNow })

	require.NoError(t, st.PutCase(createTestCase("c1")))

	_, err := eng.Allocate(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoEligibleDCA, errors.CodeOf(err))

	// Still no room: queue should cycle the case without allocating.
	eng.RetryDeferred(context.Background())
	c, _ := st.GetCase("c1")
	assert.Equal(t, models.CaseStatusNew, c.Status)

	require.NoError(t, ledger.Release("dca-1", 1))
	eng.RetryDeferred(context.Background())

	c, _ = st.GetCase("c1")
	assert.Equal(t, models.CaseStatusAssigned, c.Status)
	assert.Equal(t, "dca-1", c.AssignedDCA)
}
