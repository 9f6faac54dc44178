package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

// SourceQuery narrows a feed read to the filter's ID sets and the matrix window.
type SourceQuery struct {
	Filter domain.Filter
	Window period.Window
}

// SourceRepository reads the five row feeds plus product attributes.
type SourceRepository interface {
	Forecast(ctx context.Context, q SourceQuery) ([]domain.ForecastRow, error)
	SellIn(ctx context.Context, q SourceQuery) ([]domain.SellInRow, error)
	SellOut(ctx context.Context, q SourceQuery) ([]domain.SellOutRow, error)
	Inventory(ctx context.Context, q SourceQuery) ([]domain.InventoryRow, error)
	KAM(ctx context.Context, q SourceQuery) ([]domain.KAMRow, error)
	Products(ctx context.Context, productIDs []string) ([]domain.ProductAttributes, error)
}

type sourceRepository struct {
	db *sqlx.DB
}

func NewSourceRepository(db *sqlx.DB) SourceRepository {
	return &sourceRepository{db: db}
}

func (r *sourceRepository) Forecast(ctx context.Context, q SourceQuery) ([]domain.ForecastRow, error) {
	query := `
        SELECT
            id, customer_id, product_id, location_id, postdate,
            COALESCE(last_year, 0) AS last_year,
            COALESCE(statistical_forecast, 0) AS statistical_forecast,
            COALESCE(approved_override, 0) AS approved_override,
            COALESCE(sales_manager_view, 0) AS sales_manager_view
        FROM forecast_rows
        WHERE 1=1
    `
	where, args := sourceConditions(q)
	var rows []domain.ForecastRow
	if err := r.db.SelectContext(ctx, &rows, query+where+" ORDER BY postdate, id", args...); err != nil {
		return nil, fmt.Errorf("error getting forecast rows: %w", err)
	}
	return rows, nil
}

func (r *sourceRepository) SellIn(ctx context.Context, q SourceQuery) ([]domain.SellInRow, error) {
	query := `
        SELECT id, customer_id, product_id, location_id, postdate, COALESCE(quantity, 0) AS quantity
        FROM sell_in_rows
        WHERE 1=1
    `
	where, args := sourceConditions(q)
	var rows []domain.SellInRow
	if err := r.db.SelectContext(ctx, &rows, query+where+" ORDER BY postdate, id", args...); err != nil {
		return nil, fmt.Errorf("error getting sell-in rows: %w", err)
	}
	return rows, nil
}

func (r *sourceRepository) SellOut(ctx context.Context, q SourceQuery) ([]domain.SellOutRow, error) {
	query := `
        SELECT
            id, customer_id, product_id, location_id, postdate,
            COALESCE(prior_year, 0) AS prior_year,
            COALESCE(actual, 0) AS actual
        FROM sell_out_rows
        WHERE 1=1
    `
	where, args := sourceConditions(q)
	var rows []domain.SellOutRow
	if err := r.db.SelectContext(ctx, &rows, query+where+" ORDER BY postdate, id", args...); err != nil {
		return nil, fmt.Errorf("error getting sell-out rows: %w", err)
	}
	return rows, nil
}

func (r *sourceRepository) Inventory(ctx context.Context, q SourceQuery) ([]domain.InventoryRow, error) {
	query := `
        SELECT id, customer_id, product_id, location_id, postdate, COALESCE(on_hand, 0) AS on_hand
        FROM inventory_rows
        WHERE 1=1
    `
	where, args := sourceConditions(q)
	var rows []domain.InventoryRow
	if err := r.db.SelectContext(ctx, &rows, query+where+" ORDER BY postdate, id", args...); err != nil {
		return nil, fmt.Errorf("error getting inventory rows: %w", err)
	}
	return rows, nil
}

// KAM returns adjustments and budgets ordered by updated_at, so the most recent write of a
// period is applied last.
func (r *sourceRepository) KAM(ctx context.Context, q SourceQuery) ([]domain.KAMRow, error) {
	query := `
        SELECT id, customer_id, product_id, location_id, postdate, commercial_input, budget
        FROM kam_inputs
        WHERE 1=1
    `
	where, args := sourceConditions(q)
	var rows []domain.KAMRow
	if err := r.db.SelectContext(ctx, &rows, query+where+" ORDER BY updated_at, postdate", args...); err != nil {
		return nil, fmt.Errorf("error getting kam inputs: %w", err)
	}
	return rows, nil
}

func (r *sourceRepository) Products(ctx context.Context, productIDs []string) ([]domain.ProductAttributes, error) {
	query := `
        SELECT product_id, case_equivalent, volume, weight
        FROM products
    `
	var args []interface{}
	if len(productIDs) > 0 {
		query += " WHERE product_id = ANY($1::text[])"
		args = append(args, pq.Array(productIDs))
	}

	var products []domain.ProductAttributes
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("error getting product attributes: %w", err)
	}
	return products, nil
}

// isoDatePattern matches postdates whose first ten characters compare chronologically as text.
// Anything else is passed through so the ingestors can count it as malformed.
const isoDatePattern = `^\d{4}-\d{2}-\d{2}`

// sourceConditions builds the shared WHERE clause of the feed tables. The window bound is
// inclusive of the whole end month.
func sourceConditions(q SourceQuery) (string, []interface{}) {
	var args []interface{}
	var conditions []string
	argCounter := 1

	if len(q.Filter.CustomerIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("customer_id = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(q.Filter.CustomerIDs))
		argCounter++
	}

	if len(q.Filter.ProductIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("product_id = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(q.Filter.ProductIDs))
		argCounter++
	}

	if len(q.Filter.LocationIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("location_id = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(q.Filter.LocationIDs))
		argCounter++
	}

	if !q.Window.Start.IsZero() {
		conditions = append(conditions, fmt.Sprintf("(postdate !~ '%s' OR LEFT(postdate, 10) >= $%d)", isoDatePattern, argCounter))
		args = append(args, q.Window.Start.Format("2006-01-02"))
		argCounter++
	}

	if !q.Window.End.IsZero() {
		conditions = append(conditions, fmt.Sprintf("(postdate !~ '%s' OR LEFT(postdate, 10) < $%d)", isoDatePattern, argCounter))
		args = append(args, q.Window.End.AddDate(0, 1, 0).Format("2006-01-02"))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conditions, " AND "), args
}
