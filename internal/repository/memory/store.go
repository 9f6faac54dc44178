// Package memory keeps feeds and commercial inputs in process. It backs the tests and the server
// when no database is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
	"github.com/AdvantusAI/m8-collab/internal/repository"
)

var (
	_ repository.SourceRepository          = (*Store)(nil)
	_ repository.CommercialInputRepository = (*Store)(nil)
)

type kamEntry struct {
	row       domain.KAMRow
	notes     *string
	batchID   string
	updatedAt time.Time
	seq       int
}

// Store is a thread-safe in-memory source and commercial input repository.
type Store struct {
	mu        sync.RWMutex
	forecast  []domain.ForecastRow
	sellIn    []domain.SellInRow
	sellOut   []domain.SellOutRow
	inventory []domain.InventoryRow
	kam       map[domain.UpsertKey]*kamEntry
	products  map[string]domain.ProductAttributes
	seq       int
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		kam:      make(map[domain.UpsertKey]*kamEntry),
		products: make(map[string]domain.ProductAttributes),
		now:      time.Now,
	}
}

// Load appends feed rows. KAM rows are merged on their natural key like the database load.
func (s *Store) Load(src domain.Sources) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.forecast = append(s.forecast, src.Forecast...)
	s.sellIn = append(s.sellIn, src.SellIn...)
	s.sellOut = append(s.sellOut, src.SellOut...)
	s.inventory = append(s.inventory, src.Inventory...)
	for _, p := range src.Products {
		s.products[p.ProductID] = p
	}
	for _, row := range src.KAM {
		key := kamKey(row.ProductID, row.CustomerID, row.LocationID, row.PostDate)
		entry := s.entry(key, row.ID)
		if row.KAMAdjustment != nil {
			v := *row.KAMAdjustment
			entry.row.KAMAdjustment = &v
		}
		if row.Budget != nil {
			v := *row.Budget
			entry.row.Budget = &v
		}
	}
}

func kamKey(productID, customerID, locationID, postDate string) domain.UpsertKey {
	return domain.UpsertKey{
		ProductID:  strings.TrimSpace(productID),
		CustomerID: strings.TrimSpace(customerID),
		LocationID: strings.TrimSpace(locationID),
		SourceDate: strings.TrimSpace(postDate),
	}
}

// entry returns the record for key, creating it if needed, and marks it as the latest write.
func (s *Store) entry(key domain.UpsertKey, id string) *kamEntry {
	s.seq++
	e, ok := s.kam[key]
	if !ok {
		if id == "" {
			id = repository.RowID("", key.CustomerID, key.ProductID, key.LocationID, key.SourceDate)
		}
		e = &kamEntry{row: domain.KAMRow{
			ID:         id,
			CustomerID: key.CustomerID,
			ProductID:  key.ProductID,
			LocationID: key.LocationID,
			PostDate:   key.SourceDate,
		}}
		s.kam[key] = e
	}
	e.seq = s.seq
	e.updatedAt = s.now()
	return e
}

func (s *Store) Forecast(ctx context.Context, q repository.SourceQuery) ([]domain.ForecastRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ForecastRow
	for _, r := range s.forecast {
		if matches(q, r.CustomerID, r.ProductID, r.LocationID, r.PostDate) {
			out = append(out, r)
		}
	}
	return out, ctx.Err()
}

func (s *Store) SellIn(ctx context.Context, q repository.SourceQuery) ([]domain.SellInRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SellInRow
	for _, r := range s.sellIn {
		if matches(q, r.CustomerID, r.ProductID, r.LocationID, r.PostDate) {
			out = append(out, r)
		}
	}
	return out, ctx.Err()
}

func (s *Store) SellOut(ctx context.Context, q repository.SourceQuery) ([]domain.SellOutRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SellOutRow
	for _, r := range s.sellOut {
		if matches(q, r.CustomerID, r.ProductID, r.LocationID, r.PostDate) {
			out = append(out, r)
		}
	}
	return out, ctx.Err()
}

func (s *Store) Inventory(ctx context.Context, q repository.SourceQuery) ([]domain.InventoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.InventoryRow
	for _, r := range s.inventory {
		if matches(q, r.CustomerID, r.ProductID, r.LocationID, r.PostDate) {
			out = append(out, r)
		}
	}
	return out, ctx.Err()
}

// KAM returns adjustments and budgets oldest write first.
func (s *Store) KAM(ctx context.Context, q repository.SourceQuery) ([]domain.KAMRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*kamEntry, 0, len(s.kam))
	for _, e := range s.kam {
		if matches(q, e.row.CustomerID, e.row.ProductID, e.row.LocationID, e.row.PostDate) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]domain.KAMRow, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.row)
	}
	return out, ctx.Err()
}

func (s *Store) Products(ctx context.Context, productIDs []string) ([]domain.ProductAttributes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ProductAttributes
	if len(productIDs) == 0 {
		for _, p := range s.products {
			out = append(out, p)
		}
	} else {
		for _, id := range productIDs {
			if p, ok := s.products[id]; ok {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, ctx.Err()
}

// Upsert sets the commercial input of key, creating the record on first write. Budgets are kept.
func (s *Store) Upsert(ctx context.Context, key domain.UpsertKey, fields domain.UpsertFields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(kamKey(key.ProductID, key.CustomerID, key.LocationID, key.SourceDate), "")
	v := fields.CommercialInput
	e.row.KAMAdjustment = &v
	if fields.Notes != nil {
		notes := *fields.Notes
		e.notes = &notes
	}
	e.batchID = fields.BatchID
	return nil
}

func (s *Store) FindByCustomerPeriod(ctx context.Context, customerID string, p period.Key) ([]domain.CommercialInput, error) {
	if _, _, err := period.ParseKey(p); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*kamEntry
	for key, e := range s.kam {
		if key.CustomerID != customerID {
			continue
		}
		t, err := period.ParseDate(key.SourceDate)
		if err != nil || period.KeyOf(t) != p {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })

	out := make([]domain.CommercialInput, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.record())
	}
	return out, ctx.Err()
}

func (s *Store) Get(ctx context.Context, key domain.UpsertKey) (*domain.CommercialInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.kam[kamKey(key.ProductID, key.CustomerID, key.LocationID, key.SourceDate)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec := e.record()
	return &rec, ctx.Err()
}

// Len returns the number of stored commercial input records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.kam)
}

func (e *kamEntry) record() domain.CommercialInput {
	rec := domain.CommercialInput{
		UpsertKey: domain.UpsertKey{
			ProductID:  e.row.ProductID,
			CustomerID: e.row.CustomerID,
			LocationID: e.row.LocationID,
			SourceDate: e.row.PostDate,
		},
		UpsertFields: domain.UpsertFields{Notes: e.notes, BatchID: e.batchID},
		UpdatedAt:    e.updatedAt,
	}
	if e.row.KAMAdjustment != nil {
		rec.CommercialInput = *e.row.KAMAdjustment
	}
	return rec
}

// matches applies the same narrowing as the SQL source queries. Rows with unparseable dates are
// passed through for the ingestors to count.
func matches(q repository.SourceQuery, customerID, productID, locationID, postDate string) bool {
	if !q.Filter.Matches(strings.TrimSpace(customerID), strings.TrimSpace(productID), strings.TrimSpace(locationID)) {
		return false
	}
	if q.Window.Start.IsZero() && q.Window.End.IsZero() {
		return true
	}
	t, err := period.ParseDate(postDate)
	if err != nil {
		return true
	}
	return q.Window.ContainsTime(t)
}
