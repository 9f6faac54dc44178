package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/AdvantusAI/m8-collab/internal/domain"
)

// FeedRepository writes parsed feed files into the source tables. Every write is an upsert on the
// row ID, so loading the same file twice leaves the tables unchanged.
type FeedRepository struct {
	db *sql.DB
}

func NewFeedRepository(db *sql.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// RowID returns the stored ID of a row: its own ID, or its natural key when it has none.
func RowID(id, customerID, productID, locationID, postDate string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return strings.Join([]string{
		strings.TrimSpace(customerID),
		strings.TrimSpace(productID),
		strings.TrimSpace(locationID),
		strings.TrimSpace(postDate),
	}, "|")
}

func (r *FeedRepository) UpsertForecast(ctx context.Context, rows []domain.ForecastRow) (int, error) {
	query := `
		INSERT INTO forecast_rows (
			id, customer_id, product_id, location_id, postdate,
			last_year, statistical_forecast, approved_override, sales_manager_view, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			product_id = EXCLUDED.product_id,
			location_id = EXCLUDED.location_id,
			postdate = EXCLUDED.postdate,
			last_year = EXCLUDED.last_year,
			statistical_forecast = EXCLUDED.statistical_forecast,
			approved_override = EXCLUDED.approved_override,
			sales_manager_view = EXCLUDED.sales_manager_view,
			updated_at = NOW()
	`
	return r.execBatch(ctx, "forecast", query, len(rows), func(i int) []interface{} {
		row := rows[i]
		return []interface{}{
			RowID(row.ID, row.CustomerID, row.ProductID, row.LocationID, row.PostDate),
			row.CustomerID, row.ProductID, row.LocationID, row.PostDate,
			row.LastYear, row.StatisticalForecast, row.ApprovedOverride, row.SalesManagerView,
		}
	})
}

func (r *FeedRepository) UpsertSellIn(ctx context.Context, rows []domain.SellInRow) (int, error) {
	query := `
		INSERT INTO sell_in_rows (id, customer_id, product_id, location_id, postdate, quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			product_id = EXCLUDED.product_id,
			location_id = EXCLUDED.location_id,
			postdate = EXCLUDED.postdate,
			quantity = EXCLUDED.quantity,
			updated_at = NOW()
	`
	return r.execBatch(ctx, "sell-in", query, len(rows), func(i int) []interface{} {
		row := rows[i]
		return []interface{}{
			RowID(row.ID, row.CustomerID, row.ProductID, row.LocationID, row.PostDate),
			row.CustomerID, row.ProductID, row.LocationID, row.PostDate, row.Quantity,
		}
	})
}

func (r *FeedRepository) UpsertSellOut(ctx context.Context, rows []domain.SellOutRow) (int, error) {
	query := `
		INSERT INTO sell_out_rows (id, customer_id, product_id, location_id, postdate, prior_year, actual, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			product_id = EXCLUDED.product_id,
			location_id = EXCLUDED.location_id,
			postdate = EXCLUDED.postdate,
			prior_year = EXCLUDED.prior_year,
			actual = EXCLUDED.actual,
			updated_at = NOW()
	`
	return r.execBatch(ctx, "sell-out", query, len(rows), func(i int) []interface{} {
		row := rows[i]
		return []interface{}{
			RowID(row.ID, row.CustomerID, row.ProductID, row.LocationID, row.PostDate),
			row.CustomerID, row.ProductID, row.LocationID, row.PostDate, row.PriorYear, row.Actual,
		}
	})
}

func (r *FeedRepository) UpsertInventory(ctx context.Context, rows []domain.InventoryRow) (int, error) {
	query := `
		INSERT INTO inventory_rows (id, customer_id, product_id, location_id, postdate, on_hand, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			product_id = EXCLUDED.product_id,
			location_id = EXCLUDED.location_id,
			postdate = EXCLUDED.postdate,
			on_hand = EXCLUDED.on_hand,
			updated_at = NOW()
	`
	return r.execBatch(ctx, "inventory", query, len(rows), func(i int) []interface{} {
		row := rows[i]
		return []interface{}{
			RowID(row.ID, row.CustomerID, row.ProductID, row.LocationID, row.PostDate),
			row.CustomerID, row.ProductID, row.LocationID, row.PostDate, row.OnHand,
		}
	})
}

// UpsertKAM writes adjustments and budgets on the natural key shared with grid edits. A column
// the row does not carry keeps its stored value.
func (r *FeedRepository) UpsertKAM(ctx context.Context, rows []domain.KAMRow) (int, error) {
	query := `
		INSERT INTO kam_inputs (product_id, customer_id, location_id, postdate, commercial_input, budget, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (product_id, customer_id, location_id, postdate) DO UPDATE SET
			commercial_input = COALESCE(EXCLUDED.commercial_input, kam_inputs.commercial_input),
			budget = COALESCE(EXCLUDED.budget, kam_inputs.budget),
			updated_at = NOW()
	`
	return r.execBatch(ctx, "kam", query, len(rows), func(i int) []interface{} {
		row := rows[i]
		return []interface{}{row.ProductID, row.CustomerID, row.LocationID, row.PostDate, row.KAMAdjustment, row.Budget}
	})
}

func (r *FeedRepository) UpsertProducts(ctx context.Context, products []domain.ProductAttributes) (int, error) {
	query := `
		INSERT INTO products (product_id, case_equivalent, volume, weight, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (product_id) DO UPDATE SET
			case_equivalent = EXCLUDED.case_equivalent,
			volume = EXCLUDED.volume,
			weight = EXCLUDED.weight,
			updated_at = NOW()
	`
	return r.execBatch(ctx, "products", query, len(products), func(i int) []interface{} {
		p := products[i]
		return []interface{}{p.ProductID, p.CaseEquivalent, p.Volume, p.Weight}
	})
}

// execBatch runs query once per row inside a single transaction with a prepared statement.
func (r *FeedRepository) execBatch(ctx context.Context, name, query string, n int, args func(i int) []interface{}) (int, error) {
	if n == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin %s load: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare %s upsert: %w", name, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return i, fmt.Errorf("failed to upsert %s row %d: %w", name, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s load: %w", name, err)
	}
	return n, nil
}
