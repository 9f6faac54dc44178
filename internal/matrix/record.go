package matrix

import (
	"math"

	"github.com/AdvantusAI/m8-collab/internal/domain"
)

// Record holds every metric of one entity for one period. All fields default to zero.
type Record struct {
	LastYear                float64 `json:"last_year"`
	StatisticalForecast     float64 `json:"statistical_forecast"`
	ApprovedOverride        float64 `json:"approved_override"`
	KAMAdjustment           float64 `json:"kam_adjustment"`
	SalesManagerView        float64 `json:"sales_manager_view"`
	EffectiveForecast       float64 `json:"effective_forecast"`
	SellInPriorYear         float64 `json:"sell_in_prior_year"`
	SellOutPriorYear        float64 `json:"sell_out_prior_year"`
	SellOutActual           float64 `json:"sell_out_actual"`
	InventoryOnHand         float64 `json:"inventory_on_hand"`
	OriginalCommercialInput float64 `json:"original_commercial_input"`
	BudgetCurrentYear       float64 `json:"budget_current_year"`
	BudgetNextYear          float64 `json:"budget_next_year"`
}

// field returns a pointer to the field backing metric, or nil for an unknown metric.
func (r *Record) field(metric domain.Metric) *float64 {
	switch metric {
	case domain.MetricLastYear:
		return &r.LastYear
	case domain.MetricStatisticalForecast:
		return &r.StatisticalForecast
	case domain.MetricApprovedOverride:
		return &r.ApprovedOverride
	case domain.MetricKAMAdjustment:
		return &r.KAMAdjustment
	case domain.MetricSalesManagerView:
		return &r.SalesManagerView
	case domain.MetricEffectiveForecast:
		return &r.EffectiveForecast
	case domain.MetricSellInPriorYear:
		return &r.SellInPriorYear
	case domain.MetricSellOutPriorYear:
		return &r.SellOutPriorYear
	case domain.MetricSellOutActual:
		return &r.SellOutActual
	case domain.MetricInventoryOnHand:
		return &r.InventoryOnHand
	case domain.MetricOriginalCommercialInput:
		return &r.OriginalCommercialInput
	case domain.MetricBudgetCurrentYear:
		return &r.BudgetCurrentYear
	case domain.MetricBudgetNextYear:
		return &r.BudgetNextYear
	}
	return nil
}

// Get returns the value of metric; unknown metrics read as zero.
func (r *Record) Get(metric domain.Metric) float64 {
	if r == nil {
		return 0
	}
	if p := r.field(metric); p != nil {
		return *p
	}
	return 0
}

// Set overwrites metric with v. Non-finite values are stored as zero.
func (r *Record) Set(metric domain.Metric, v float64) {
	if p := r.field(metric); p != nil {
		*p = finite(v)
	}
}

func (r *Record) add(metric domain.Metric, delta float64) {
	if p := r.field(metric); p != nil {
		*p = finite(*p + finite(delta))
	}
}

// Effective applies the fixed precedence: KAM adjustment, then approved override, then the
// statistical forecast.
func (r *Record) Effective() float64 {
	switch {
	case r.KAMAdjustment != 0:
		return r.KAMAdjustment
	case r.ApprovedOverride != 0:
		return r.ApprovedOverride
	default:
		return r.StatisticalForecast
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
