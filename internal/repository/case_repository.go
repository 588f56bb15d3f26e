// internal/repository/case_repository.go
package repository

import (
	"context"
	"encoding/json"

	"dca-platform/internal/common/database"
	"dca-platform/internal/common/errors"
	"dca-platform/internal/models"
)

// CaseRepository persists case aggregates. The full aggregate is kept
// as a JSON document beside the columns queries filter on; the owned
// sequences have no identity outside the parent and need no tables of
// their own.
type CaseRepository struct {
	db *database.PostgresClient
}

func NewCaseRepository(db *database.PostgresClient) *CaseRepository {
	return &CaseRepository{db: db}
}

const upsertCaseQuery = `
	INSERT INTO cases (id, case_number, status, assigned_dca, priority, updated_at, document)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		assigned_dca = EXCLUDED.assigned_dca,
		priority = EXCLUDED.priority,
		updated_at = EXCLUDED.updated_at,
		document = EXCLUDED.document`

// Save upserts the aggregate.
func (r *CaseRepository) Save(ctx context.Context, c *models.Case) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return errors.NewDatabaseError(err)
	}

	_, err = r.db.Exec(ctx, upsertCaseQuery,
		c.ID, c.CaseNumber, string(c.Status), c.AssignedDCA, c.Priority, c.UpdatedAt, doc)
	if err != nil {
		return errors.NewDatabaseError(err)
	}
	return nil
}

// Get loads one aggregate by ID.
func (r *CaseRepository) Get(ctx context.Context, id string) (*models.Case, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, `SELECT document FROM cases WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		return nil, errors.NewCaseNotFoundError(id)
	}

	var c models.Case
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, errors.NewDatabaseError(err)
	}
	return &c, nil
}

// LoadAll streams every stored aggregate, for store hydration at
// startup.
func (r *CaseRepository) LoadAll(ctx context.Context) ([]*models.Case, error) {
	rows, err := r.db.Query(ctx, `SELECT document FROM cases ORDER BY case_number`)
	if err != nil {
		return nil, errors.NewDatabaseError(err)
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.NewDatabaseError(err)
		}
		var c models.Case
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, errors.NewDatabaseError(err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError(err)
	}
	return out, nil
}
