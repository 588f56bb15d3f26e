// internal/repository/dca_repository.go
package repository

import (
	"context"
	"encoding/json"

	"dca-platform/internal/common/database"
	"dca-platform/internal/common/errors"
	"dca-platform/internal/models"
)

// DCARepository persists agency aggregates, same document layout as
// the case repository.
type DCARepository struct {
	db *database.PostgresClient
}

func NewDCARepository(db *database.PostgresClient) *DCARepository {
	return &DCARepository{db: db}
}

const upsertDCAQuery = `
	INSERT INTO dcas (id, registration_number, status, current_case_load, updated_at, document)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		current_case_load = EXCLUDED.current_case_load,
		updated_at = EXCLUDED.updated_at,
		document = EXCLUDED.document`

// Save upserts the aggregate.
func (r *DCARepository) Save(ctx context.Context, d *models.DCA) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return errors.NewDatabaseError(err)
	}

	_, err = r.db.Exec(ctx, upsertDCAQuery,
		d.ID, d.RegistrationNumber, string(d.Status), d.Capacity.CurrentCaseLoad, d.UpdatedAt, doc)
	if err != nil {
		return errors.NewDatabaseError(err)
	}
	return nil
}

// Get loads one aggregate by ID.
func (r *DCARepository) Get(ctx context.Context, id string) (*models.DCA, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, `SELECT document FROM dcas WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		return nil, errors.NewDCANotFoundError(id)
	}

	var d models.DCA
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, errors.NewDatabaseError(err)
	}
	return &d, nil
}

// LoadAll returns every stored agency, for ledger hydration.
func (r *DCARepository) LoadAll(ctx context.Context) ([]*models.DCA, error) {
	rows, err := r.db.Query(ctx, `SELECT document FROM dcas ORDER BY id`)
	if err != nil {
		return nil, errors.NewDatabaseError(err)
	}
	defer rows.Close()

	var out []*models.DCA
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.NewDatabaseError(err)
		}
		var d models.DCA
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, errors.NewDatabaseError(err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError(err)
	}
	return out, nil
}
