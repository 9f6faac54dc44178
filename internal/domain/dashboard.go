package domain

// RollupValues holds the three windows of one metric.
type RollupValues struct {
	YTD   float64 `json:"ytd"`
	YTG   float64 `json:"ytg"`
	Total float64 `json:"total"`
}

// Get returns the value for a window.
func (v RollupValues) Get(w Window) float64 {
	switch w {
	case WindowYTG:
		return v.YTG
	case WindowTotal:
		return v.Total
	default:
		return v.YTD
	}
}

// SummaryRow is one entity (or the "all" pseudo-row) of the collaboration summary.
type SummaryRow struct {
	CustomerID string                  `json:"customer_id"`
	ProductID  string                  `json:"product_id"`
	LocationID string                  `json:"location_id,omitempty"`
	All        bool                    `json:"all,omitempty"`
	Metrics    map[Metric]RollupValues `json:"metrics"`
}

// CollaborationSummary is the rollup table the grid renders next to the monthly columns.
type CollaborationSummary struct {
	Status string       `json:"status"`
	Unit   Unit         `json:"unit"`
	Rows   []SummaryRow `json:"rows"`
	Total  SummaryRow   `json:"total"`
}

// Result states distinguish "filters matched nothing" from a failure.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
)

// PeriodCell is one metric value for one period of one entity.
type PeriodCell struct {
	Period     string  `json:"period"`
	SourceDate string  `json:"source_date,omitempty"`
	Value      float64 `json:"value"`
}

// MatrixRow is one entity/metric line of the matrix view.
type MatrixRow struct {
	CustomerID string       `json:"customer_id"`
	ProductID  string       `json:"product_id"`
	LocationID string       `json:"location_id,omitempty"`
	Metric     Metric       `json:"metric"`
	Label      string       `json:"label"`
	Cells      []PeriodCell `json:"cells"`
}

// MatrixView is the serialisable form of the period matrix for one filter.
type MatrixView struct {
	Status  string      `json:"status"`
	Unit    Unit        `json:"unit"`
	Periods []string    `json:"periods"`
	Rows    []MatrixRow `json:"rows"`
}
