// Package matrix builds the customer × product × month period matrix from the source feeds.
package matrix

import (
	"sort"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

// Entity is one customer/product pair with its per-period records.
type Entity struct {
	Key        domain.EntityKey
	LocationID string
	Units      domain.UnitMultipliers

	records     map[period.Key]*Record
	sourceDates map[period.Key]string
	sourceLocs  map[period.Key]string
}

func newEntity(key domain.EntityKey) *Entity {
	return &Entity{
		Key:         key,
		records:     make(map[period.Key]*Record),
		sourceDates: make(map[period.Key]string),
		sourceLocs:  make(map[period.Key]string),
	}
}

// Record returns the record for k, if the entity has one.
func (e *Entity) Record(k period.Key) (*Record, bool) {
	rec, ok := e.records[k]
	return rec, ok
}

// Value returns metric for k, zero when the period was never touched.
func (e *Entity) Value(k period.Key, metric domain.Metric) float64 {
	return e.records[k].Get(metric)
}

// SourceDate returns the literal source date recorded for k.
func (e *Entity) SourceDate(k period.Key) (string, bool) {
	d, ok := e.sourceDates[k]
	return d, ok && d != ""
}

// SourceLocation returns the location of the row that set the source date for k. KAM rows win
// over the other feeds, matching SourceDate.
func (e *Entity) SourceLocation(k period.Key) (string, bool) {
	l, ok := e.sourceLocs[k]
	return l, ok && l != ""
}

// Periods returns the keys the entity has records for, chronologically.
func (e *Entity) Periods() []period.Key {
	keys := make([]period.Key, 0, len(e.records))
	for k := range e.records {
		keys = append(keys, k)
	}
	period.Sort(keys)
	return keys
}

func (e *Entity) touch(k period.Key) *Record {
	rec, ok := e.records[k]
	if !ok {
		rec = &Record{}
		e.records[k] = rec
	}
	return rec
}

// Matrix is the canonical in-memory structure: entity → period → record.
type Matrix struct {
	window        period.Window
	normalizer    *period.Normalizer
	referenceYear int
	filter        domain.Filter

	entities      map[domain.EntityKey]*Entity
	contributions map[domain.Feed]map[string]contribution
	diagnostics   Diagnostics
}

// contribution remembers what one accumulating source row added, so re-ingesting the row
// replaces its share instead of adding it twice.
type contribution struct {
	entity domain.EntityKey
	period period.Key
	values map[domain.Metric]float64
}

// New creates an empty matrix for a window. referenceYear decides which budget field a plan
// lands in.
func New(window period.Window, referenceYear int, filter domain.Filter) *Matrix {
	return &Matrix{
		window:        window,
		normalizer:    period.NewNormalizer(window),
		referenceYear: referenceYear,
		filter:        filter,
		entities:      make(map[domain.EntityKey]*Entity),
		contributions: make(map[domain.Feed]map[string]contribution),
		diagnostics:   Diagnostics{Feeds: make(map[domain.Feed]Stats)},
	}
}

// Window returns the matrix's period window.
func (m *Matrix) Window() period.Window { return m.window }

// Periods returns every key of the window chronologically.
func (m *Matrix) Periods() []period.Key { return m.window.Keys() }

// ReferenceYear returns the "current" year budgets are classified against.
func (m *Matrix) ReferenceYear() int { return m.referenceYear }

// Filter returns the filter the matrix was built for.
func (m *Matrix) Filter() domain.Filter { return m.filter }

// Diagnostics returns the skip counters accumulated by the ingestors.
func (m *Matrix) Diagnostics() Diagnostics { return m.diagnostics.clone() }

// Empty reports the "no data" state: the filters matched no rows.
func (m *Matrix) Empty() bool { return len(m.entities) == 0 }

// Len returns the number of entities.
func (m *Matrix) Len() int { return len(m.entities) }

// Entity looks up an entity by key.
func (m *Matrix) Entity(key domain.EntityKey) (*Entity, bool) {
	e, ok := m.entities[key]
	return e, ok
}

// Entities returns all entities ordered by customer then product.
func (m *Matrix) Entities() []*Entity {
	out := make([]*Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.CustomerID != out[j].Key.CustomerID {
			return out[i].Key.CustomerID < out[j].Key.CustomerID
		}
		return out[i].Key.ProductID < out[j].Key.ProductID
	})
	return out
}

// Select returns the entities matching the filter's customer, product and location sets.
func (m *Matrix) Select(f domain.Filter) []*Entity {
	var out []*Entity
	for _, e := range m.Entities() {
		if f.Matches(e.Key.CustomerID, e.Key.ProductID, e.LocationID) {
			out = append(out, e)
		}
	}
	return out
}

func (m *Matrix) entity(key domain.EntityKey) *Entity {
	e, ok := m.entities[key]
	if !ok {
		e = newEntity(key)
		m.entities[key] = e
	}
	return e
}

// AttachProducts copies each product's unit multipliers onto every entity sharing the product.
func (m *Matrix) AttachProducts(products []domain.ProductAttributes) {
	byProduct := make(map[string]domain.UnitMultipliers, len(products))
	for _, p := range products {
		byProduct[p.ProductID] = domain.UnitMultipliers{
			CaseEquivalent: finite(p.CaseEquivalent),
			Volume:         finite(p.Volume),
			Weight:         finite(p.Weight),
		}
	}
	for key, e := range m.entities {
		if units, ok := byProduct[key.ProductID]; ok {
			e.Units = units
		}
	}
}

// Finalize derives effective_forecast for every record. It runs after all ingestors so the
// precedence does not depend on ingestion order.
func (m *Matrix) Finalize() {
	for _, e := range m.entities {
		for _, rec := range e.records {
			rec.EffectiveForecast = rec.Effective()
		}
	}
}

// SetCommercialInput overwrites the KAM adjustment of one confirmed edit and refreshes the
// effective forecast. The pre-edit snapshot in original_commercial_input is left alone.
func (m *Matrix) SetCommercialInput(key domain.EntityKey, k period.Key, value float64) bool {
	e, ok := m.entities[key]
	if !ok || !m.window.Contains(k) {
		return false
	}
	rec := e.touch(k)
	rec.KAMAdjustment = finite(value)
	rec.EffectiveForecast = rec.Effective()
	return true
}
