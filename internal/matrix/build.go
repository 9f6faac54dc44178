package matrix

import (
	"github.com/rs/zerolog/log"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

// Ingestors returns one ingestor per feed of src, in the fixed feed order.
func Ingestors(src domain.Sources) []Ingestor {
	return []Ingestor{
		&ForecastIngestor{Rows: src.Forecast},
		&SellInIngestor{Rows: src.SellIn},
		&SellOutIngestor{Rows: src.SellOut},
		&InventoryIngestor{Rows: src.Inventory},
		&KAMIngestor{Rows: src.KAM},
	}
}

// Reduce folds the ingestors over m. Each ingestor only sees the matrix it is handed.
func Reduce(m *Matrix, accept DatePredicate, ingestors ...Ingestor) *Matrix {
	for _, ing := range ingestors {
		ing.Ingest(m, accept)
	}
	return m
}

// Build merges all feeds into a fresh matrix, attaches product multipliers and derives the
// effective forecast.
func Build(src domain.Sources, filter domain.Filter, window period.Window, referenceYear int) *Matrix {
	m := Reduce(New(window, referenceYear, filter), filter.AcceptsDate, Ingestors(src)...)
	m.AttachProducts(src.Products)
	m.Finalize()

	diag := m.diagnostics.Total
	log.Info().
		Str("window", window.String()).
		Int("entities", m.Len()).
		Int("rows", diag.Rows).
		Int("accepted", diag.Accepted).
		Int("skipped_missing_key", diag.SkippedMissingKey).
		Int("skipped_malformed", diag.SkippedMalformed).
		Int("skipped_out_of_window", diag.SkippedOutOfWindow).
		Int("skipped_filtered", diag.SkippedFiltered).
		Msg("matrix: build completed")

	return m
}
