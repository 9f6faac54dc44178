package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Metric identifies one numeric field of a matrix record.
type Metric string

const (
	MetricLastYear                Metric = "last_year"
	MetricStatisticalForecast     Metric = "statistical_forecast"
	MetricApprovedOverride        Metric = "approved_override"
	MetricKAMAdjustment           Metric = "kam_adjustment"
	MetricSalesManagerView        Metric = "sales_manager_view"
	MetricEffectiveForecast       Metric = "effective_forecast"
	MetricSellInPriorYear         Metric = "sell_in_prior_year"
	MetricSellOutPriorYear        Metric = "sell_out_prior_year"
	MetricSellOutActual           Metric = "sell_out_actual"
	MetricInventoryOnHand         Metric = "inventory_on_hand"
	MetricOriginalCommercialInput Metric = "original_commercial_input"
	MetricBudgetCurrentYear       Metric = "budget_current_year"
	MetricBudgetNextYear          Metric = "budget_next_year"
)

// AllMetrics lists every metric in display order.
var AllMetrics = []Metric{
	MetricLastYear,
	MetricStatisticalForecast,
	MetricApprovedOverride,
	MetricKAMAdjustment,
	MetricSalesManagerView,
	MetricEffectiveForecast,
	MetricSellInPriorYear,
	MetricSellOutPriorYear,
	MetricSellOutActual,
	MetricInventoryOnHand,
	MetricOriginalCommercialInput,
	MetricBudgetCurrentYear,
	MetricBudgetNextYear,
}

var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrUnknownUnit   = errors.New("unknown unit")
	ErrUnknownWindow = errors.New("unknown rollup window")
)

// metricLabels maps the row captions shown on the collaboration grid to metrics.
var metricLabels = map[string]Metric{
	"last year":                 MetricLastYear,
	"statistical forecast":      MetricStatisticalForecast,
	"approved override":         MetricApprovedOverride,
	"kam adjustment":            MetricKAMAdjustment,
	"commercial input":          MetricKAMAdjustment,
	"sales manager view":        MetricSalesManagerView,
	"effective forecast":        MetricEffectiveForecast,
	"final forecast":            MetricEffectiveForecast,
	"sell in ly":                MetricSellInPriorYear,
	"sell-in last year":         MetricSellInPriorYear,
	"sell out ly":               MetricSellOutPriorYear,
	"sell-out last year":        MetricSellOutPriorYear,
	"sell out":                  MetricSellOutActual,
	"sell-out actual":           MetricSellOutActual,
	"inventory":                 MetricInventoryOnHand,
	"inventory on hand":         MetricInventoryOnHand,
	"original commercial input": MetricOriginalCommercialInput,
	"budget":                    MetricBudgetCurrentYear,
	"budget current year":       MetricBudgetCurrentYear,
	"budget next year":          MetricBudgetNextYear,
}

var metricDisplay = map[Metric]string{
	MetricLastYear:                "Last Year",
	MetricStatisticalForecast:     "Statistical Forecast",
	MetricApprovedOverride:        "Approved Override",
	MetricKAMAdjustment:           "KAM Adjustment",
	MetricSalesManagerView:        "Sales Manager View",
	MetricEffectiveForecast:       "Effective Forecast",
	MetricSellInPriorYear:         "Sell-in Last Year",
	MetricSellOutPriorYear:        "Sell-out Last Year",
	MetricSellOutActual:           "Sell-out Actual",
	MetricInventoryOnHand:         "Inventory On Hand",
	MetricOriginalCommercialInput: "Original Commercial Input",
	MetricBudgetCurrentYear:       "Budget Current Year",
	MetricBudgetNextYear:          "Budget Next Year",
}

// Label returns the grid caption for a metric.
func (m Metric) Label() string {
	if label, ok := metricDisplay[m]; ok {
		return label
	}
	return string(m)
}

// Valid reports whether m is one of the known metrics.
func (m Metric) Valid() bool {
	_, ok := metricDisplay[m]
	return ok
}

// ParseMetric accepts a metric identifier such as "effective_forecast".
func ParseMetric(id string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(id)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, id)
	}
	return m, nil
}

// ParseMetricLabel maps a grid caption (case-insensitive) to its metric. Captions without a
// mapping are rejected instead of falling back to a default field.
func ParseMetricLabel(label string) (Metric, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(label)), " ")
	if m, ok := metricLabels[normalized]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: no metric for label %q", ErrUnknownMetric, label)
}

// Unit is the unit system a rollup is expressed in.
type Unit string

const (
	UnitCases  Unit = "cases"
	UnitVolume Unit = "volume"
	UnitWeight Unit = "weight"
)

// ParseUnit accepts "cases", "volume" or "weight"; empty input means cases.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cases", "case", "units":
		return UnitCases, nil
	case "volume", "vol":
		return UnitVolume, nil
	case "weight", "wt":
		return UnitWeight, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// Multiplier returns the factor applied per period for u. Cases use raw values.
func (u Unit) Multiplier(m UnitMultipliers) float64 {
	switch u {
	case UnitVolume:
		return m.Volume
	case UnitWeight:
		return m.Weight
	default:
		return 1
	}
}

// Window selects which periods a rollup sums.
type Window string

const (
	WindowYTD   Window = "ytd"
	WindowYTG   Window = "ytg"
	WindowTotal Window = "total"
)

// AllWindows lists the rollup windows in display order.
var AllWindows = []Window{WindowYTD, WindowYTG, WindowTotal}

// ParseWindow accepts "ytd", "ytg" or "total" in any case.
func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case WindowYTD, WindowYTG, WindowTotal:
		return w, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
}

// Feed names one of the row sources.
type Feed string

const (
	FeedForecast  Feed = "forecast"
	FeedSellIn    Feed = "sell_in"
	FeedSellOut   Feed = "sell_out"
	FeedInventory Feed = "inventory"
	FeedKAM       Feed = "kam_budget"
)

// AllFeeds lists the feeds in ingestion order.
var AllFeeds = []Feed{FeedForecast, FeedSellIn, FeedSellOut, FeedInventory, FeedKAM}
