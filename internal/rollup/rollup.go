// Package rollup derives YTD, YTG and TOTAL measures from a period matrix.
//
// YTD sums every period of the matrix window, YTG the last three, and TOTAL is YTD + YTG, so the
// last three periods are counted twice. Planners compare against numbers produced this way.
package rollup

import (
	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/matrix"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

// ytgPeriods is the number of trailing periods in the YTG window.
const ytgPeriods = 3

// Entity returns the rollup of metric for one entity.
func Entity(m *matrix.Matrix, e *matrix.Entity, metric domain.Metric, unit domain.Unit, window domain.Window) float64 {
	if e == nil {
		return 0
	}
	keys := m.Periods()
	switch window {
	case domain.WindowYTG:
		return sum(m, e, metric, unit, tail(keys))
	case domain.WindowTotal:
		return sum(m, e, metric, unit, keys) + sum(m, e, metric, unit, tail(keys))
	default:
		return sum(m, e, metric, unit, keys)
	}
}

// Aggregate sums the per-entity rollups of entities. It never sums raw rows directly, so the
// aggregate always equals the sum of the rows shown beneath it.
func Aggregate(m *matrix.Matrix, entities []*matrix.Entity, metric domain.Metric, unit domain.Unit, window domain.Window) float64 {
	var total float64
	for _, e := range entities {
		total += Entity(m, e, metric, unit, window)
	}
	return total
}

// Values computes all three windows of metric for one entity.
func Values(m *matrix.Matrix, e *matrix.Entity, metric domain.Metric, unit domain.Unit) domain.RollupValues {
	return domain.RollupValues{
		YTD:   Entity(m, e, metric, unit, domain.WindowYTD),
		YTG:   Entity(m, e, metric, unit, domain.WindowYTG),
		Total: Entity(m, e, metric, unit, domain.WindowTotal),
	}
}

func tail(keys []period.Key) []period.Key {
	if len(keys) <= ytgPeriods {
		return keys
	}
	return keys[len(keys)-ytgPeriods:]
}

// sum adds the converted values of keys. A raw sum of exactly zero yields zero whatever the
// multiplier.
func sum(m *matrix.Matrix, e *matrix.Entity, metric domain.Metric, unit domain.Unit, keys []period.Key) float64 {
	factor := unit.Multiplier(e.Units)
	var raw, converted float64
	for _, k := range keys {
		if !inScope(m, metric, k) {
			continue
		}
		v := e.Value(k, metric)
		raw += v
		if unit == domain.UnitCases {
			converted += v
		} else {
			converted += v * factor
		}
	}
	if raw == 0 {
		return 0
	}
	return converted
}

// inScope applies year scoping: budget metrics only count periods of the year they plan.
func inScope(m *matrix.Matrix, metric domain.Metric, k period.Key) bool {
	switch metric {
	case domain.MetricBudgetCurrentYear:
		return k.Year() == m.ReferenceYear()
	case domain.MetricBudgetNextYear:
		return k.Year() == m.ReferenceYear()+1
	}
	return true
}
