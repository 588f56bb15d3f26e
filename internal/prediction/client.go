// internal/prediction/client.go
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dca-platform/internal/common/config"
	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	commonhttp "dca-platform/internal/common/http"
	"dca-platform/internal/models"
)

// request is the payload sent to the predictive-scoring service.
type request struct {
	CaseID         string  `json:"caseId"`
	DebtAmount     float64 `json:"debtAmount"`
	AgingDays      int     `json:"agingDays"`
	RiskProfile    string  `json:"riskProfile"`
	ServiceType    string  `json:"serviceType,omitempty"`
	Interactions   int     `json:"previousInteractions"`
	PaymentsOnFile int     `json:"paymentsOnFile"`
}

type response struct {
	RecoveryProbability float64  `json:"recoveryProbability"`
	RiskScore           float64  `json:"riskScore"`
	RecommendedActions  []string `json:"recommendedActions"`
	Confidence          float64  `json:"confidence"`
}

// Client calls the external predictive-scoring service. Its output is
// advisory: callers treat failures as a missing prediction, never as
// an operation failure.
type Client struct {
	http    *commonhttp.Client
	baseURL string
	apiKey  string
	logger  logger.Logger
	now     func() time.Time
}

func NewClient(cfg config.PredictionConfig, log logger.Logger) *Client {
	return &Client{
		http:    commonhttp.NewClient(config.GetDuration(cfg.Timeout)),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  log.WithFields(map[string]interface{}{"component": "prediction"}),
		now:     time.Now,
	}
}

// Predict fetches an advisory recovery prediction for the case.
func (c *Client) Predict(ctx context.Context, cs *models.Case) (*models.Prediction, error) {
	body, err := json.Marshal(request{
		CaseID:         cs.ID,
		DebtAmount:     cs.Debt.OriginalAmount,
		AgingDays:      cs.Aging.Days,
		RiskProfile:    string(cs.RiskProfile),
		ServiceType:    cs.Debt.ServiceType,
		Interactions:   cs.PreviousInteractions,
		PaymentsOnFile: len(cs.Payments),
	})
	if err != nil {
		return nil, errors.NewPredictionFailedError(err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewPredictionFailedError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, errors.NewPredictionFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewPredictionFailedError(fmt.Errorf("prediction service returned %d", resp.StatusCode))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.NewPredictionFailedError(err)
	}

	if out.RecoveryProbability < 0 || out.RecoveryProbability > 1 {
		return nil, errors.NewPredictionFailedError(fmt.Errorf("recovery probability out of range: %v", out.RecoveryProbability))
	}
	if out.RiskScore < 0 || out.RiskScore > 100 {
		return nil, errors.NewPredictionFailedError(fmt.Errorf("risk score out of range: %v", out.RiskScore))
	}

	return &models.Prediction{
		RecoveryProbability: out.RecoveryProbability,
		RiskScore:           out.RiskScore,
		RecommendedActions:  out.RecommendedActions,
		Confidence:          out.Confidence,
		PredictedAt:         c.now().UTC(),
	}, nil
}
