package matrix

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

// DatePredicate reports whether a row dated t belongs to the active date range.
type DatePredicate func(t time.Time) bool

// Ingestor merges one feed into a matrix in place.
type Ingestor interface {
	Feed() domain.Feed
	Ingest(m *Matrix, accept DatePredicate) Stats
}

// Stats counts what happened to the rows of one ingestion pass.
type Stats struct {
	Feed               domain.Feed `json:"feed"`
	Rows               int         `json:"rows"`
	Accepted           int         `json:"accepted"`
	Replaced           int         `json:"replaced"`
	SkippedMissingKey  int         `json:"skipped_missing_key"`
	SkippedMalformed   int         `json:"skipped_malformed"`
	SkippedOutOfWindow int         `json:"skipped_out_of_window"`
	SkippedFiltered    int         `json:"skipped_filtered"`
}

// Skipped returns the number of rows that did not reach the matrix.
func (s Stats) Skipped() int {
	return s.SkippedMissingKey + s.SkippedMalformed + s.SkippedOutOfWindow + s.SkippedFiltered
}

func (s *Stats) merge(o Stats) {
	s.Rows += o.Rows
	s.Accepted += o.Accepted
	s.Replaced += o.Replaced
	s.SkippedMissingKey += o.SkippedMissingKey
	s.SkippedMalformed += o.SkippedMalformed
	s.SkippedOutOfWindow += o.SkippedOutOfWindow
	s.SkippedFiltered += o.SkippedFiltered
}

// Diagnostics aggregates ingestion stats per feed.
type Diagnostics struct {
	Feeds map[domain.Feed]Stats `json:"feeds"`
	Total Stats                 `json:"total"`
}

func (d Diagnostics) clone() Diagnostics {
	out := Diagnostics{Feeds: make(map[domain.Feed]Stats, len(d.Feeds)), Total: d.Total}
	for k, v := range d.Feeds {
		out.Feeds[k] = v
	}
	return out
}

func (m *Matrix) record(s Stats) {
	agg := m.diagnostics.Feeds[s.Feed]
	agg.Feed = s.Feed
	agg.merge(s)
	m.diagnostics.Feeds[s.Feed] = agg
	m.diagnostics.Total.merge(s)
}

// rowRef is the feed-independent part of a source row.
type rowRef struct {
	id         string
	customerID string
	productID  string
	locationID string
	postDate   string
}

func (r rowRef) identity() string {
	if id := strings.TrimSpace(r.id); id != "" {
		return id
	}
	return strings.Join([]string{
		strings.TrimSpace(r.customerID),
		strings.TrimSpace(r.productID),
		strings.TrimSpace(r.locationID),
		strings.TrimSpace(r.postDate),
	}, "|")
}

// admit validates a row and materialises its (entity, period) record. overrideDate lets the
// KAM feed replace the stored source date and location, since edits are persisted against them.
func (m *Matrix) admit(feed domain.Feed, ref rowRef, accept DatePredicate, stats *Stats, overrideDate bool) (*Entity, period.Key, bool) {
	stats.Rows++

	if strings.TrimSpace(ref.customerID) == "" {
		stats.SkippedMissingKey++
		log.Debug().Str("feed", string(feed)).Str("row", ref.identity()).Msg("matrix: row without customer skipped")
		return nil, "", false
	}

	key := domain.NewEntityKey(ref.customerID, ref.productID)
	location := strings.TrimSpace(ref.locationID)
	if !m.filter.Matches(key.CustomerID, key.ProductID, location) {
		stats.SkippedFiltered++
		return nil, "", false
	}

	stamp, ok, err := m.normalizer.Normalize(ref.postDate)
	if err != nil {
		stats.SkippedMalformed++
		log.Debug().Err(err).Str("feed", string(feed)).Str("row", ref.identity()).Msg("matrix: row with bad date skipped")
		return nil, "", false
	}
	if !ok || (accept != nil && !accept(stamp.Time)) {
		stats.SkippedOutOfWindow++
		return nil, "", false
	}

	e := m.entity(key)
	if e.LocationID == "" {
		e.LocationID = location
	}
	e.touch(stamp.Key)
	if _, exists := e.sourceDates[stamp.Key]; !exists || overrideDate {
		e.sourceDates[stamp.Key] = stamp.SourceDate
		if location != "" || !exists {
			e.sourceLocs[stamp.Key] = location
		}
	}
	stats.Accepted++
	return e, stamp.Key, true
}

// accumulate adds values to the record, first withdrawing whatever the same source row added on
// an earlier pass.
func (m *Matrix) accumulate(feed domain.Feed, ref rowRef, e *Entity, k period.Key, values map[domain.Metric]float64, stats *Stats) {
	seen, ok := m.contributions[feed]
	if !ok {
		seen = make(map[string]contribution)
		m.contributions[feed] = seen
	}

	id := ref.identity()
	if prev, ok := seen[id]; ok {
		if pe, ok := m.entities[prev.entity]; ok {
			rec := pe.touch(prev.period)
			for metric, v := range prev.values {
				rec.add(metric, -v)
			}
		}
		stats.Replaced++
	}

	rec := e.touch(k)
	applied := make(map[domain.Metric]float64, len(values))
	for metric, v := range values {
		v = finite(v)
		rec.add(metric, v)
		applied[metric] = v
	}
	seen[id] = contribution{entity: e.Key, period: k, values: applied}
}

// ForecastIngestor merges the forecast/collaboration feed. All of its fields accumulate.
type ForecastIngestor struct {
	Rows []domain.ForecastRow
}

func (ing *ForecastIngestor) Feed() domain.Feed { return domain.FeedForecast }

func (ing *ForecastIngestor) Ingest(m *Matrix, accept DatePredicate) Stats {
	stats := Stats{Feed: ing.Feed()}
	for _, row := range ing.Rows {
		ref := rowRef{id: row.ID, customerID: row.CustomerID, productID: row.ProductID, locationID: row.LocationID, postDate: row.PostDate}
		e, k, ok := m.admit(ing.Feed(), ref, accept, &stats, false)
		if !ok {
			continue
		}
		m.accumulate(ing.Feed(), ref, e, k, map[domain.Metric]float64{
			domain.MetricLastYear:            row.LastYear,
			domain.MetricStatisticalForecast: row.StatisticalForecast,
			domain.MetricApprovedOverride:    row.ApprovedOverride,
			domain.MetricSalesManagerView:    row.SalesManagerView,
		}, &stats)
	}
	m.record(stats)
	return stats
}

// SellInIngestor merges historical sell-in quantities.
type SellInIngestor struct {
	Rows []domain.SellInRow
}

func (ing *SellInIngestor) Feed() domain.Feed { return domain.FeedSellIn }

func (ing *SellInIngestor) Ingest(m *Matrix, accept DatePredicate) Stats {
	stats := Stats{Feed: ing.Feed()}
	for _, row := range ing.Rows {
		ref := rowRef{id: row.ID, customerID: row.CustomerID, productID: row.ProductID, locationID: row.LocationID, postDate: row.PostDate}
		e, k, ok := m.admit(ing.Feed(), ref, accept, &stats, false)
		if !ok {
			continue
		}
		m.accumulate(ing.Feed(), ref, e, k, map[domain.Metric]float64{
			domain.MetricSellInPriorYear: row.Quantity,
		}, &stats)
	}
	m.record(stats)
	return stats
}

// SellOutIngestor merges prior-year and actual sell-out.
type SellOutIngestor struct {
	Rows []domain.SellOutRow
}

func (ing *SellOutIngestor) Feed() domain.Feed { return domain.FeedSellOut }

func (ing *SellOutIngestor) Ingest(m *Matrix, accept DatePredicate) Stats {
	stats := Stats{Feed: ing.Feed()}
	for _, row := range ing.Rows {
		ref := rowRef{id: row.ID, customerID: row.CustomerID, productID: row.ProductID, locationID: row.LocationID, postDate: row.PostDate}
		e, k, ok := m.admit(ing.Feed(), ref, accept, &stats, false)
		if !ok {
			continue
		}
		m.accumulate(ing.Feed(), ref, e, k, map[domain.Metric]float64{
			domain.MetricSellOutPriorYear: row.PriorYear,
			domain.MetricSellOutActual:    row.Actual,
		}, &stats)
	}
	m.record(stats)
	return stats
}

// InventoryIngestor merges on-hand inventory; positions of several locations add up.
type InventoryIngestor struct {
	Rows []domain.InventoryRow
}

func (ing *InventoryIngestor) Feed() domain.Feed { return domain.FeedInventory }

func (ing *InventoryIngestor) Ingest(m *Matrix, accept DatePredicate) Stats {
	stats := Stats{Feed: ing.Feed()}
	for _, row := range ing.Rows {
		ref := rowRef{id: row.ID, customerID: row.CustomerID, productID: row.ProductID, locationID: row.LocationID, postDate: row.PostDate}
		e, k, ok := m.admit(ing.Feed(), ref, accept, &stats, false)
		if !ok {
			continue
		}
		m.accumulate(ing.Feed(), ref, e, k, map[domain.Metric]float64{
			domain.MetricInventoryOnHand: row.OnHand,
		}, &stats)
	}
	m.record(stats)
	return stats
}

// KAMIngestor merges KAM adjustments and budgets. Both are authoritative single values, so the
// last row touching a period wins.
type KAMIngestor struct {
	Rows []domain.KAMRow
}

func (ing *KAMIngestor) Feed() domain.Feed { return domain.FeedKAM }

func (ing *KAMIngestor) Ingest(m *Matrix, accept DatePredicate) Stats {
	stats := Stats{Feed: ing.Feed()}
	for _, row := range ing.Rows {
		ref := rowRef{id: row.ID, customerID: row.CustomerID, productID: row.ProductID, locationID: row.LocationID, postDate: row.PostDate}
		e, k, ok := m.admit(ing.Feed(), ref, accept, &stats, true)
		if !ok {
			continue
		}
		rec := e.touch(k)
		if row.KAMAdjustment != nil {
			rec.Set(domain.MetricKAMAdjustment, *row.KAMAdjustment)
			rec.Set(domain.MetricOriginalCommercialInput, *row.KAMAdjustment)
		}
		if row.Budget != nil {
			if metric, ok := m.budgetMetric(k); ok {
				rec.Set(metric, *row.Budget)
			}
		}
	}
	m.record(stats)
	return stats
}

// budgetMetric classifies a plan by the calendar year of its period.
func (m *Matrix) budgetMetric(k period.Key) (domain.Metric, bool) {
	switch k.Year() {
	case m.referenceYear:
		return domain.MetricBudgetCurrentYear, true
	case m.referenceYear + 1:
		return domain.MetricBudgetNextYear, true
	}
	return "", false
}
