package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
	"github.com/AdvantusAI/m8-collab/internal/repository"
)

type commercialInputRepository struct {
	pool Pool
}

func NewCommercialInputRepository(pool Pool) repository.CommercialInputRepository {
	return &commercialInputRepository{pool: pool}
}

// Upsert writes one commercial input. The conflict target is the natural key, so replaying an edit
// updates the existing row instead of adding another. Budgets are never touched here.
func (r *commercialInputRepository) Upsert(ctx context.Context, key domain.UpsertKey, fields domain.UpsertFields) error {
	query := `
		INSERT INTO kam_inputs (product_id, customer_id, location_id, postdate, commercial_input, notes, batch_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (product_id, customer_id, location_id, postdate)
		DO UPDATE SET
			commercial_input = EXCLUDED.commercial_input,
			notes = COALESCE(EXCLUDED.notes, kam_inputs.notes),
			batch_id = EXCLUDED.batch_id,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		key.ProductID,
		key.CustomerID,
		key.LocationID,
		key.SourceDate,
		fields.CommercialInput,
		fields.Notes,
		fields.BatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert commercial input: %w", err)
	}
	return nil
}

func (r *commercialInputRepository) FindByCustomerPeriod(ctx context.Context, customerID string, p period.Key) ([]domain.CommercialInput, error) {
	start, err := p.Start()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT product_id, customer_id, location_id, postdate,
		       COALESCE(commercial_input, 0), COALESCE(notes, ''), COALESCE(batch_id, ''), updated_at
		FROM kam_inputs
		WHERE customer_id = $1 AND LEFT(postdate, 7) = $2
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query, customerID, start.Format("2006-01"))
	if err != nil {
		return nil, fmt.Errorf("error querying commercial inputs: %w", err)
	}
	defer rows.Close()

	var out []domain.CommercialInput
	for rows.Next() {
		rec, err := scanCommercialInput(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commercial inputs: %w", err)
	}
	return out, nil
}

func (r *commercialInputRepository) Get(ctx context.Context, key domain.UpsertKey) (*domain.CommercialInput, error) {
	query := `
		SELECT product_id, customer_id, location_id, postdate,
		       COALESCE(commercial_input, 0), COALESCE(notes, ''), COALESCE(batch_id, ''), updated_at
		FROM kam_inputs
		WHERE product_id = $1 AND customer_id = $2 AND location_id = $3 AND postdate = $4
	`
	rec, err := scanCommercialInput(r.pool.QueryRow(ctx, query, key.ProductID, key.CustomerID, key.LocationID, key.SourceDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanCommercialInput(row pgx.Row) (domain.CommercialInput, error) {
	var (
		rec       domain.CommercialInput
		notes     string
		updatedAt time.Time
	)
	err := row.Scan(
		&rec.ProductID,
		&rec.CustomerID,
		&rec.LocationID,
		&rec.SourceDate,
		&rec.CommercialInput,
		&notes,
		&rec.BatchID,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("error scanning commercial input: %w", err)
	}
	if notes != "" {
		rec.Notes = &notes
	}
	rec.UpdatedAt = updatedAt
	return rec, nil
}
