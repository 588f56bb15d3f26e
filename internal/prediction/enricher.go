// internal/prediction/enricher.go
package prediction

import (
	"context"

	"dca-platform/internal/models"
	"dca-platform/internal/store"
)

// Enrich fetches a prediction for the case and merges it into the
// aggregate. A failed prediction is logged and swallowed: the case is
// valid without one.
func (c *Client) Enrich(ctx context.Context, st *store.Store, caseID string) {
	cs, err := st.GetCase(caseID)
	if err != nil {
		c.logger.WithError(err).Warn("cannot enrich unknown case", map[string]interface{}{
			"case_id": caseID,
		})
		return
	}

	pred, err := c.Predict(ctx, cs)
	if err != nil {
		c.logger.WithError(err).Warn("prediction unavailable", map[string]interface{}{
			"case_id": caseID,
		})
		return
	}

	if _, err := st.UpdateCase(caseID, func(cs *models.Case) error {
		cs.Predictions = pred
		return nil
	}); err != nil {
		c.logger.WithError(err).Warn("failed to store prediction", map[string]interface{}{
			"case_id": caseID,
		})
	}
}
