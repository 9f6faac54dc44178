package rollup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/matrix"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

func f64(v float64) *float64 { return &v }

// halfYear is Jan-25..Jun-25, so YTG covers Apr, May and Jun.
func halfYear(t *testing.T) period.Window {
	t.Helper()
	w, err := period.NewWindow(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return w
}

func forecastRows(customer string, values ...float64) []domain.ForecastRow {
	rows := make([]domain.ForecastRow, 0, len(values))
	for i, v := range values {
		rows = append(rows, domain.ForecastRow{
			CustomerID:          customer,
			ProductID:           "P1",
			LocationID:          "L1",
			PostDate:            time.Date(2025, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			StatisticalForecast: v,
		})
	}
	return rows
}

func TestEntityWindows(t *testing.T) {
	m := matrix.Build(domain.Sources{
		Forecast: forecastRows("C1", 1, 2, 3, 4, 5, 6),
		Products: []domain.ProductAttributes{{ProductID: "P1", UnitMultipliers: domain.UnitMultipliers{CaseEquivalent: 1, Volume: 2, Weight: 10}}},
	}, domain.Filter{}, halfYear(t), 2025)
	e, ok := m.Entity(domain.NewEntityKey("C1", "P1"))
	require.True(t, ok)

	assert.Equal(t, 21.0, Entity(m, e, domain.MetricStatisticalForecast, domain.UnitCases, domain.WindowYTD))
	assert.Equal(t, 15.0, Entity(m, e, domain.MetricStatisticalForecast, domain.UnitCases, domain.WindowYTG))
	assert.Equal(t, 42.0, Entity(m, e, domain.MetricStatisticalForecast, domain.UnitVolume, domain.WindowYTD))
	assert.Equal(t, 150.0, Entity(m, e, domain.MetricStatisticalForecast, domain.UnitWeight, domain.WindowYTG))
}

// TOTAL is YTD + YTG, so the last three periods are counted twice. This pins the current
// definition; changing it to the plain window sum must be a deliberate decision.
func TestTotalDoubleCountsTrailingPeriods(t *testing.T) {
	m := matrix.Build(domain.Sources{Forecast: forecastRows("C1", 1, 2, 3, 4, 5, 6)}, domain.Filter{}, halfYear(t), 2025)
	e, _ := m.Entity(domain.NewEntityKey("C1", "P1"))

	total := Entity(m, e, domain.MetricStatisticalForecast, domain.UnitCases, domain.WindowTotal)
	assert.Equal(t, 36.0, total)
	assert.NotEqual(t, 21.0, total, "TOTAL is not the plain window sum")
}

func TestShortWindowYTGUsesAllPeriods(t *testing.T) {
	w, err := period.NewWindow(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	m := matrix.Build(domain.Sources{Forecast: forecastRows("C1", 4, 6)}, domain.Filter{}, w, 2025)
	e, _ := m.Entity(domain.NewEntityKey("C1", "P1"))

	assert.Equal(t, 10.0, Entity(m, e, domain.MetricStatisticalForecast, domain.UnitCases, domain.WindowYTG))
}

func TestZeroSuppressionWithVolumeMultiplier(t *testing.T) {
	m := matrix.Build(domain.Sources{
		SellIn: []domain.SellInRow{
			{CustomerID: "A", ProductID: "P1", PostDate: "2025-01-01", Quantity: 0},
			{CustomerID: "A", ProductID: "P1", PostDate: "2025-03-01", Quantity: 0},
		},
		Products: []domain.ProductAttributes{{ProductID: "P1", UnitMultipliers: domain.UnitMultipliers{CaseEquivalent: 1, Volume: 2.5, Weight: 3}}},
	}, domain.Filter{}, halfYear(t), 2025)
	e, _ := m.Entity(domain.NewEntityKey("A", "P1"))

	for _, unit := range []domain.Unit{domain.UnitCases, domain.UnitVolume, domain.UnitWeight} {
		for _, w := range domain.AllWindows {
			assert.Zero(t, Entity(m, e, domain.MetricSellInPriorYear, unit, w), "unit %s window %s", unit, w)
		}
	}
}

func TestRawSumOfZeroSuppressesConvertedValue(t *testing.T) {
	m := matrix.Build(domain.Sources{
		SellIn: []domain.SellInRow{
			{CustomerID: "A", ProductID: "P1", PostDate: "2025-01-01", Quantity: 5},
			{CustomerID: "A", ProductID: "P1", PostDate: "2025-02-01", Quantity: -5},
		},
		Products: []domain.ProductAttributes{{ProductID: "P1", UnitMultipliers: domain.UnitMultipliers{Volume: 2.5}}},
	}, domain.Filter{}, halfYear(t), 2025)
	e, _ := m.Entity(domain.NewEntityKey("A", "P1"))

	assert.Zero(t, Entity(m, e, domain.MetricSellInPriorYear, domain.UnitVolume, domain.WindowYTD))
}

func TestBudgetYearScoping(t *testing.T) {
	m := matrix.Build(domain.Sources{
		KAM: []domain.KAMRow{
			{CustomerID: "C1", ProductID: "P1", PostDate: "2024-12-01", Budget: f64(1000)},
			{CustomerID: "C1", ProductID: "P1", PostDate: "2025-03-01", Budget: f64(100)},
			{CustomerID: "C1", ProductID: "P1", PostDate: "2026-03-01", Budget: f64(200)},
		},
	}, domain.Filter{}, period.DefaultWindow(2025), 2025)
	e, _ := m.Entity(domain.NewEntityKey("C1", "P1"))

	assert.Equal(t, 100.0, Entity(m, e, domain.MetricBudgetCurrentYear, domain.UnitCases, domain.WindowYTD))
	assert.Equal(t, 200.0, Entity(m, e, domain.MetricBudgetNextYear, domain.UnitCases, domain.WindowYTD))

	// A next-year value stored under the wrong year is still ignored by the rollup.
	rec, ok := e.Record("Mar-25")
	require.True(t, ok)
	rec.Set(domain.MetricBudgetNextYear, 999)
	assert.Equal(t, 200.0, Entity(m, e, domain.MetricBudgetNextYear, domain.UnitCases, domain.WindowYTD))
}

func TestAggregateEqualsSumOfEntities(t *testing.T) {
	rows := append(forecastRows("C1", 1, 2, 3, 4, 5, 6), forecastRows("C2", 0, 0, 0, 0, 0, 0)...)
	rows = append(rows, domain.ForecastRow{CustomerID: "C3", ProductID: "P2", PostDate: "2025-05-01", StatisticalForecast: 7.5})
	m := matrix.Build(domain.Sources{
		Forecast: rows,
		Products: []domain.ProductAttributes{
			{ProductID: "P1", UnitMultipliers: domain.UnitMultipliers{Volume: 1.5, Weight: 2}},
			{ProductID: "P2", UnitMultipliers: domain.UnitMultipliers{Volume: 4, Weight: 0.5}},
		},
	}, domain.Filter{}, halfYear(t), 2025)
	entities := m.Entities()
	require.Len(t, entities, 3)

	for _, unit := range []domain.Unit{domain.UnitCases, domain.UnitVolume, domain.UnitWeight} {
		for _, w := range domain.AllWindows {
			var parts float64
			for _, e := range entities {
				parts += Entity(m, e, domain.MetricStatisticalForecast, unit, w)
			}
			assert.InDelta(t, parts, Aggregate(m, entities, domain.MetricStatisticalForecast, unit, w), 1e-9, "unit %s window %s", unit, w)
		}
	}
}

func TestSummarize(t *testing.T) {
	m := matrix.Build(domain.Sources{
		Forecast: append(forecastRows("C1", 1, 1, 1, 1, 1, 1), forecastRows("C2", 2, 2, 2, 2, 2, 2)...),
	}, domain.Filter{}, halfYear(t), 2025)

	summary := Summarize(m, m.Entities(), []domain.Metric{domain.MetricEffectiveForecast}, domain.UnitCases)
	assert.Equal(t, domain.StatusOK, summary.Status)
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, domain.RollupValues{YTD: 6, YTG: 3, Total: 9}, summary.Rows[0].Metrics[domain.MetricEffectiveForecast])
	assert.Equal(t, domain.RollupValues{YTD: 18, YTG: 9, Total: 27}, summary.Total.Metrics[domain.MetricEffectiveForecast])
	assert.True(t, summary.Total.All)

	empty := Summarize(m, nil, nil, domain.UnitCases)
	assert.Equal(t, domain.StatusNoData, empty.Status)
	assert.Len(t, empty.Total.Metrics, len(domain.AllMetrics))
}

func TestViewCarriesSourceDatesAndUnits(t *testing.T) {
	m := matrix.Build(domain.Sources{
		Forecast: []domain.ForecastRow{{CustomerID: "C1", ProductID: "P1", PostDate: "2025-02-14", StatisticalForecast: 4}},
		Products: []domain.ProductAttributes{{ProductID: "P1", UnitMultipliers: domain.UnitMultipliers{Volume: 0.5}}},
	}, domain.Filter{}, halfYear(t), 2025)

	view := View(m, m.Entities(), []domain.Metric{domain.MetricStatisticalForecast}, domain.UnitVolume)
	assert.Equal(t, []string{"Jan-25", "Feb-25", "Mar-25", "Apr-25", "May-25", "Jun-25"}, view.Periods)
	require.Len(t, view.Rows, 1)
	row := view.Rows[0]
	assert.Equal(t, "Statistical Forecast", row.Label)
	require.Len(t, row.Cells, 6)
	assert.Equal(t, domain.PeriodCell{Period: "Feb-25", SourceDate: "2025-02-14", Value: 2}, row.Cells[1])
	assert.Zero(t, row.Cells[0].Value)

	assert.Equal(t, domain.StatusNoData, View(m, nil, nil, domain.UnitCases).Status)
}
