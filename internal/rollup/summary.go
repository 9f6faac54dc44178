package rollup

import (
	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/matrix"
)

// Series returns the per-period values of metric for one entity, converted to unit. Each cell
// follows the same zero-suppression as the rollups.
func Series(m *matrix.Matrix, e *matrix.Entity, metric domain.Metric, unit domain.Unit) []domain.PeriodCell {
	keys := m.Periods()
	cells := make([]domain.PeriodCell, 0, len(keys))
	for _, k := range keys {
		cell := domain.PeriodCell{Period: string(k)}
		if date, ok := e.SourceDate(k); ok {
			cell.SourceDate = date
		}
		if inScope(m, metric, k) {
			if v := e.Value(k, metric); v != 0 {
				if unit == domain.UnitCases {
					cell.Value = v
				} else {
					cell.Value = v * unit.Multiplier(e.Units)
				}
			}
		}
		cells = append(cells, cell)
	}
	return cells
}

// Summarize builds the YTD/YTG/TOTAL table for entities plus the "all" row. An empty entity set
// reports StatusNoData.
func Summarize(m *matrix.Matrix, entities []*matrix.Entity, metrics []domain.Metric, unit domain.Unit) domain.CollaborationSummary {
	if len(metrics) == 0 {
		metrics = domain.AllMetrics
	}

	out := domain.CollaborationSummary{
		Status: domain.StatusOK,
		Unit:   unit,
		Rows:   make([]domain.SummaryRow, 0, len(entities)),
		Total: domain.SummaryRow{
			All:     true,
			Metrics: make(map[domain.Metric]domain.RollupValues, len(metrics)),
		},
	}
	if len(entities) == 0 {
		out.Status = domain.StatusNoData
	}

	for _, e := range entities {
		row := domain.SummaryRow{
			CustomerID: e.Key.CustomerID,
			ProductID:  e.Key.ProductID,
			LocationID: e.LocationID,
			Metrics:    make(map[domain.Metric]domain.RollupValues, len(metrics)),
		}
		for _, metric := range metrics {
			row.Metrics[metric] = Values(m, e, metric, unit)
		}
		out.Rows = append(out.Rows, row)
	}

	for _, metric := range metrics {
		out.Total.Metrics[metric] = domain.RollupValues{
			YTD:   Aggregate(m, entities, metric, unit, domain.WindowYTD),
			YTG:   Aggregate(m, entities, metric, unit, domain.WindowYTG),
			Total: Aggregate(m, entities, metric, unit, domain.WindowTotal),
		}
	}
	return out
}

// View renders the matrix for entities as one row per entity and metric.
func View(m *matrix.Matrix, entities []*matrix.Entity, metrics []domain.Metric, unit domain.Unit) domain.MatrixView {
	if len(metrics) == 0 {
		metrics = domain.AllMetrics
	}
	keys := m.Periods()
	view := domain.MatrixView{
		Status:  domain.StatusOK,
		Unit:    unit,
		Periods: make([]string, len(keys)),
		Rows:    make([]domain.MatrixRow, 0, len(entities)*len(metrics)),
	}
	for i, k := range keys {
		view.Periods[i] = string(k)
	}
	if len(entities) == 0 {
		view.Status = domain.StatusNoData
		return view
	}
	for _, e := range entities {
		for _, metric := range metrics {
			view.Rows = append(view.Rows, domain.MatrixRow{
				CustomerID: e.Key.CustomerID,
				ProductID:  e.Key.ProductID,
				LocationID: e.LocationID,
				Metric:     metric,
				Label:      metric.Label(),
				Cells:      Series(m, e, metric, unit),
			})
		}
	}
	return view
}
