// internal/store/store_test.go
package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/models"
)

func createTestCase(id string) *models.Case {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Case{
		ID:          id,
		CaseNumber:  "CASE-2024-" + id,
		CustomerRef: "CUST-" + id,
		RiskProfile: models.RiskMedium,
		Debt: models.Debt{
			OriginalAmount: 1000,
			CurrentAmount:  1000,
			Currency:       "EUR",
			DueDate:        now.AddDate(0, 0, -10),
		},
		Status:    models.CaseStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s := New(logger.NewNoOpLogger())

	c := createTestCase("001")
	require.NoError(t, s.PutCase(c))

	got, err := s.GetCase("001")
	require.NoError(t, err)
	assert.Equal(t, "CASE-2024-001", got.CaseNumber)

	// Snapshot must be independent of the stored aggregate.
	got.Debt.CurrentAmount = 0
	again, err := s.GetCase("001")
	require.NoError(t, err)
	assert.Equal(t, float64(1000), again.Debt.CurrentAmount)
}

func TestStore_PutDuplicate(t *testing.T) {
	s := New(logger.NewNoOpLogger())

	require.NoError(t, s.PutCase(createTestCase("001")))

	err := s.PutCase(createTestCase("001"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestStore_GetByNumber(t *testing.T) {
	s := New(logger.NewNoOpLogger())
	require.NoError(t, s.PutCase(createTestCase("001")))

	got, err := s.GetCaseByNumber("CASE-2024-001")
	require.NoError(t, err)
	assert.Equal(t, "001", got.ID)

	_, err = s.GetCaseByNumber("CASE-2024-999")
	assert.Equal(t, errors.ErrCodeCaseNotFound, errors.CodeOf(err))
}

func TestStore_UpdateCase_FailureLeavesStateUntouched(t *testing.T) {
	s := New(logger.NewNoOpLogger())
	require.NoError(t, s.PutCase(createTestCase("001")))

	_, err := s.UpdateCase("001", func(c *models.Case) error {
		c.Payments = append(c.Payments, models.Payment{ID: "p1", Amount: 500, Status: models.PaymentCompleted})
		c.Debt.CurrentAmount = 500
		return errors.NewValidationError("rejected")
	})
	require.Error(t, err)

	got, err := s.GetCase("001")
	require.NoError(t, err)
	assert.Empty(t, got.Payments)
	assert.Equal(t, float64(1000), got.Debt.CurrentAmount)
}

func TestStore_UpdateCase_MutationHook(t *testing.T) {
	s := New(logger.NewNoOpLogger())
	require.NoError(t, s.PutCase(createTestCase("001")))

	var mu sync.Mutex
	var seen []string
	s.OnMutation(func(c *models.Case) {
		mu.Lock()
		seen = append(seen, c.ID)
		mu.Unlock()
	})

	_, err := s.UpdateCase("001", func(c *models.Case) error {
		c.Priority = "HIGH"
		return nil
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"001"}, seen)
}

func TestStore_UpdateCase_SerializedPerCase(t *testing.T) {
	s := New(logger.NewNoOpLogger())
	require.NoError(t, s.PutCase(createTestCase("001")))

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			_, err := s.UpdateCase("001", func(c *models.Case) error {
				c.Payments = append(c.Payments, models.Payment{
					ID:     fmt.Sprintf("p%d", n),
					Amount: 10,
					Status: models.PaymentCompleted,
				})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetCase("001")
	require.NoError(t, err)
	assert.Len(t, got.Payments, workers)
}

func TestStore_CaseIDsByStatus(t *testing.T) {
	s := New(logger.NewNoOpLogger())

	a := createTestCase("001")
	b := createTestCase("002")
	b.Status = models.CaseStatusAssigned
	c := createTestCase("003")
	c.Status = models.CaseStatusClosed

	require.NoError(t, s.PutCase(a))
	require.NoError(t, s.PutCase(b))
	require.NoError(t, s.PutCase(c))

	assert.Equal(t, []string{"001"}, s.CaseIDsByStatus(models.CaseStatusNew))
	assert.Equal(t, []string{"001", "002"}, s.CaseIDsByStatus(models.CaseStatusNew, models.CaseStatusAssigned))
}

func TestStore_ListCases_ScopedByPrincipal(t *testing.T) {
	s := New(logger.NewNoOpLogger())

	a := createTestCase("001")
	a.AssignedDCA = "dca-1"
	b := createTestCase("002")
	b.AssignedDCA = "dca-2"
	require.NoError(t, s.PutCase(a))
	require.NoError(t, s.PutCase(b))

	admin := &models.Principal{ID: "u1", Role: models.RoleAdmin}
	assert.Len(t, s.ListCases(admin), 2)

	agent := &models.Principal{ID: "u2", Role: models.RoleDCAUser, DCAID: "dca-2"}
	scoped := s.ListCases(agent)
	require.Len(t, scoped, 1)
	assert.Equal(t, "002", scoped[0].ID)
}
