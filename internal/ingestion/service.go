// internal/ingestion/service.go
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/engine/derived"
	"dca-platform/internal/models"
	"dca-platform/internal/store"
)

// Intake is the raw case submission accepted from upstream systems.
type Intake struct {
	CustomerRef     string    `json:"customerRef"`
	CustomerSegment string    `json:"customerSegment,omitempty"`
	RiskProfile     string    `json:"riskProfile,omitempty"`
	OriginalAmount  float64   `json:"originalAmount"`
	Currency        string    `json:"currency"`
	DueDate         time.Time `json:"dueDate"`
	ServiceType     string    `json:"serviceType,omitempty"`

	ResponseTimeHours   int `json:"responseTimeHours,omitempty"`
	ResolutionTimeHours int `json:"resolutionTimeHours,omitempty"`
	EscalationTimeHours int `json:"escalationTimeHours,omitempty"`

	PreviousInteractions int `json:"previousInteractions,omitempty"`
}

var intakeSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"customerRef", "originalAmount", "currency", "dueDate"},
	"properties": map[string]interface{}{
		"customerRef":    map[string]interface{}{"type": "string", "minLength": 1},
		"originalAmount": map[string]interface{}{"type": "number", "exclusiveMinimum": 0},
		"currency":       map[string]interface{}{"type": "string", "minLength": 3, "maxLength": 3},
		"dueDate":        map[string]interface{}{"type": "string"},
		"riskProfile": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"LOW", "MEDIUM", "HIGH", "CRITICAL"},
		},
		"serviceType": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"STANDARD", "PREMIUM", "ENTERPRISE", "SMALL_BUSINESS"},
		},
		"customerSegment": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"STANDARD", "VIP", "CORPORATE", "SME"},
		},
	},
}

// ValidateIntake checks a raw submission document against the intake
// schema before any model is built from it.
func ValidateIntake(doc map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(intakeSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("intake validation error: %v", err))
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return errors.NewValidationError(fmt.Sprintf("intake validation failed: %v", errs))
	}
	return nil
}

// Service turns validated intakes into NEW cases: number assignment,
// priority scoring and derived-state initialization.
type Service struct {
	store       *store.Store
	numbering   *Numbering
	prioritizer *Prioritizer
	logger      logger.Logger
	now         func() time.Time
}

func NewService(st *store.Store, numbering *Numbering, prioritizer *Prioritizer, log logger.Logger) *Service {
	return &Service{
		store:       st,
		numbering:   numbering,
		prioritizer: prioritizer,
		logger:      log.WithFields(map[string]interface{}{"component": "ingestion"}),
		now:         time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Ingest creates a NEW case from an intake. The case is stored
// unallocated; allocation is a separate step.
func (s *Service) Ingest(ctx context.Context, in Intake) (*models.Case, error) {
	if in.CustomerRef == "" {
		return nil, errors.NewValidationError("customerRef is required")
	}
	if in.OriginalAmount <= 0 {
		return nil, errors.NewValidationError("originalAmount must be positive")
	}
	if len(in.Currency) != 3 {
		return nil, errors.NewValidationError("currency must be a 3-letter code")
	}
	if in.DueDate.IsZero() {
		return nil, errors.NewValidationError("dueDate is required")
	}

	number, err := s.numbering.Next(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	risk := models.RiskProfile(in.RiskProfile)
	if risk == "" {
		risk = models.RiskMedium
	}

	c := &models.Case{
		ID:              uuid.NewString(),
		CaseNumber:      number,
		CustomerRef:     in.CustomerRef,
		CustomerSegment: in.CustomerSegment,
		RiskProfile:     risk,
		Debt: models.Debt{
			OriginalAmount: in.OriginalAmount,
			CurrentAmount:  in.OriginalAmount,
			Currency:       in.Currency,
			DueDate:        in.DueDate,
			ServiceType:    in.ServiceType,
		},
		Status: models.CaseStatusNew,
		SLA: models.SLA{
			ResponseTimeHours:   in.ResponseTimeHours,
			ResolutionTimeHours: in.ResolutionTimeHours,
			EscalationTimeHours: in.EscalationTimeHours,
		},
		PreviousInteractions: in.PreviousInteractions,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	derived.Recompute(c, now)
	c.PriorityScore, c.Priority = s.prioritizer.Score(c)

	if err := s.store.PutCase(c); err != nil {
		return nil, err
	}

	s.logger.Info("case ingested", map[string]interface{}{
		"case_id":     c.ID,
		"case_number": c.CaseNumber,
		"priority":    c.Priority,
		"aging":       string(c.Aging.Category),
	})
	return c.Clone(), nil
}
