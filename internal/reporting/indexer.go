// internal/reporting/indexer.go
package reporting

import (
	"context"
	"encoding/json"
	"time"

	"dca-platform/internal/common/config"
	"dca-platform/internal/common/database"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/models"
)

// Indexer pushes read-only aggregate snapshots to Elasticsearch for
// the reporting collaborator. Indexing is best-effort and never blocks
// or fails the originating mutation.
type Indexer struct {
	es        *database.ElasticsearchClient
	caseIndex string
	dcaIndex  string
	logger    logger.Logger
}

func NewIndexer(es *database.ElasticsearchClient, cfg config.ElasticsearchConfig, log logger.Logger) *Indexer {
	return &Indexer{
		es:        es,
		caseIndex: cfg.CaseIndex,
		dcaIndex:  cfg.DCAIndex,
		logger:    log.WithFields(map[string]interface{}{"component": "reporting"}),
	}
}

// caseDocument is the flattened reporting view of a case.
type caseDocument struct {
	*models.Case
	IndexedAt time.Time `json:"indexedAt"`
}

type dcaDocument struct {
	*models.DCA
	IndexedAt time.Time `json:"indexedAt"`
}

// IndexCase writes a case snapshot under its ID.
func (i *Indexer) IndexCase(ctx context.Context, c *models.Case) {
	body, err := json.Marshal(caseDocument{Case: c, IndexedAt: time.Now().UTC()})
	if err != nil {
		i.logger.WithError(err).Error("failed to marshal case snapshot", map[string]interface{}{
			"case_id": c.ID,
		})
		return
	}
	if err := i.es.Index(ctx, i.caseIndex, c.ID, body); err != nil {
		i.logger.WithError(err).Warn("failed to index case snapshot", map[string]interface{}{
			"case_id": c.ID,
		})
	}
}

// IndexDCA writes an agency snapshot under its ID.
func (i *Indexer) IndexDCA(ctx context.Context, d *models.DCA) {
	body, err := json.Marshal(dcaDocument{DCA: d, IndexedAt: time.Now().UTC()})
	if err != nil {
		i.logger.WithError(err).Error("failed to marshal dca snapshot", map[string]interface{}{
			"dca_id": d.ID,
		})
		return
	}
	if err := i.es.Index(ctx, i.dcaIndex, d.ID, body); err != nil {
		i.logger.WithError(err).Warn("failed to index dca snapshot", map[string]interface{}{
			"dca_id": d.ID,
		})
	}
}
