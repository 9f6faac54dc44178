package memory

import (
	"context"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/repository"
)

// The Upsert* methods mirror repository.FeedRepository: rows replace earlier rows with the same
// stored ID.

func (s *Store) UpsertForecast(ctx context.Context, rows []domain.ForecastRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecast = upsertRows(s.forecast, rows, func(r domain.ForecastRow) string {
		return repository.RowID(r.ID, r.CustomerID, r.ProductID, r.LocationID, r.PostDate)
	})
	return len(rows), nil
}

func (s *Store) UpsertSellIn(ctx context.Context, rows []domain.SellInRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellIn = upsertRows(s.sellIn, rows, func(r domain.SellInRow) string {
		return repository.RowID(r.ID, r.CustomerID, r.ProductID, r.LocationID, r.PostDate)
	})
	return len(rows), nil
}

func (s *Store) UpsertSellOut(ctx context.Context, rows []domain.SellOutRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellOut = upsertRows(s.sellOut, rows, func(r domain.SellOutRow) string {
		return repository.RowID(r.ID, r.CustomerID, r.ProductID, r.LocationID, r.PostDate)
	})
	return len(rows), nil
}

func (s *Store) UpsertInventory(ctx context.Context, rows []domain.InventoryRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory = upsertRows(s.inventory, rows, func(r domain.InventoryRow) string {
		return repository.RowID(r.ID, r.CustomerID, r.ProductID, r.LocationID, r.PostDate)
	})
	return len(rows), nil
}

// UpsertKAM merges rows on the natural key. Blank values keep what is stored.
func (s *Store) UpsertKAM(ctx context.Context, rows []domain.KAMRow) (int, error) {
	s.Load(domain.Sources{KAM: rows})
	return len(rows), nil
}

func (s *Store) UpsertProducts(ctx context.Context, products []domain.ProductAttributes) (int, error) {
	s.Load(domain.Sources{Products: products})
	return len(products), nil
}

func upsertRows[T any](dst, src []T, id func(T) string) []T {
	index := make(map[string]int, len(dst))
	for i, r := range dst {
		index[id(r)] = i
	}
	for _, r := range src {
		key := id(r)
		if i, ok := index[key]; ok {
			dst[i] = r
			continue
		}
		index[key] = len(dst)
		dst = append(dst, r)
	}
	return dst
}
