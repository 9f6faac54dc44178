package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/AdvantusAI/m8-collab/internal/cache"
	"github.com/AdvantusAI/m8-collab/internal/config"
	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/edit"
	"github.com/AdvantusAI/m8-collab/internal/matrix"
	"github.com/AdvantusAI/m8-collab/internal/period"
	"github.com/AdvantusAI/m8-collab/internal/repository"
	"github.com/AdvantusAI/m8-collab/internal/rollup"
)

// ErrNoMatrix is returned when no matrix has been built for a filter yet.
var ErrNoMatrix = errors.New("no matrix built for filter")

const maxMatrices = 32

// Planning fixes the reference year and the default window.
type Planning struct {
	ReferenceYear int
	Window        period.Window
}

// DefaultPlanning returns the planning settings for referenceYear with the default window.
func DefaultPlanning(referenceYear int) Planning {
	return Planning{ReferenceYear: referenceYear, Window: period.DefaultWindow(referenceYear)}
}

// RollupQuery selects one rollup value. A nil Entity means the aggregate over all entities.
type RollupQuery struct {
	Metric domain.Metric
	Unit   domain.Unit
	Window domain.Window
	Entity *domain.EntityKey
}

type builtMatrix struct {
	m       *matrix.Matrix
	builtAt time.Time
}

// CollaborationService owns the matrix lifecycle: fetch, build, summarise, edit and rebuild.
// Rebuilds and edits run one at a time.
type CollaborationService struct {
	sources  repository.SourceRepository
	inputs   repository.CommercialInputRepository
	cache    cache.SummaryCache
	engine   *edit.Engine
	planning Planning

	sem      *semaphore.Weighted
	mu       sync.RWMutex
	matrices map[string]*builtMatrix
	order    []string
}

func NewCollaborationService(sources repository.SourceRepository, inputs repository.CommercialInputRepository, cacheImpl cache.SummaryCache, planning Planning) *CollaborationService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopSummaryCache()
	}
	if planning.Window.Start.IsZero() {
		planning.Window = period.DefaultWindow(planning.ReferenceYear)
	}
	return &CollaborationService{
		sources:  sources,
		inputs:   inputs,
		cache:    cacheImpl,
		engine:   edit.NewEngine(inputs),
		planning: planning,
		sem:      semaphore.NewWeighted(1),
		matrices: make(map[string]*builtMatrix),
	}
}

// WindowFor returns the window a filter is built over: its own date range when both bounds are
// set, the configured default otherwise.
func (s *CollaborationService) WindowFor(filter domain.Filter) (period.Window, error) {
	if filter.StartDate != nil && filter.EndDate != nil {
		return period.NewWindow(*filter.StartDate, *filter.EndDate)
	}
	return s.planning.Window, nil
}

// Current returns the last matrix built for filter without fetching.
func (s *CollaborationService) Current(filter domain.Filter) (*matrix.Matrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.matrices[filterKey(filter)]; ok {
		return b.m, nil
	}
	return nil, ErrNoMatrix
}

// Matrix returns the current matrix for filter, building it on first use.
func (s *CollaborationService) Matrix(ctx context.Context, filter domain.Filter) (*matrix.Matrix, error) {
	if m, err := s.Current(filter); err == nil {
		return m, nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	if m, err := s.Current(filter); err == nil {
		return m, nil
	}
	return s.rebuildLocked(ctx, filter)
}

// Rebuild fetches every feed again and swaps in a fresh matrix. Cached summaries are dropped once
// the new matrix is in place, since the sources may have changed under every filter.
func (s *CollaborationService) Rebuild(ctx context.Context, filter domain.Filter) (*matrix.Matrix, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	m, err := s.rebuildLocked(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("collaboration: cache invalidate after rebuild failed")
	}
	return m, nil
}

// rebuildLocked must be called with the semaphore held. If ctx is cancelled once the fetch is
// done, the rows are discarded and the current matrix stays in place.
func (s *CollaborationService) rebuildLocked(ctx context.Context, filter domain.Filter) (*matrix.Matrix, error) {
	window, err := s.WindowFor(filter)
	if err != nil {
		return nil, err
	}

	src, err := s.fetch(ctx, repository.SourceQuery{Filter: filter, Window: window})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		log.Info().Err(err).Msg("collaboration: rebuild cancelled, fetched rows discarded")
		return nil, err
	}

	m := matrix.Build(src, filter, window, s.planning.ReferenceYear)
	s.store(filter, m)
	return m, nil
}

func (s *CollaborationService) fetch(ctx context.Context, q repository.SourceQuery) (domain.Sources, error) {
	var src domain.Sources
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		src.Forecast, err = s.sources.Forecast(gctx, q)
		return wrapFetch(domain.FeedForecast, err)
	})
	g.Go(func() (err error) {
		src.SellIn, err = s.sources.SellIn(gctx, q)
		return wrapFetch(domain.FeedSellIn, err)
	})
	g.Go(func() (err error) {
		src.SellOut, err = s.sources.SellOut(gctx, q)
		return wrapFetch(domain.FeedSellOut, err)
	})
	g.Go(func() (err error) {
		src.Inventory, err = s.sources.Inventory(gctx, q)
		return wrapFetch(domain.FeedInventory, err)
	})
	g.Go(func() (err error) {
		src.KAM, err = s.sources.KAM(gctx, q)
		return wrapFetch(domain.FeedKAM, err)
	})
	g.Go(func() (err error) {
		src.Products, err = s.sources.Products(gctx, q.Filter.ProductIDs)
		if err != nil {
			return fmt.Errorf("fetch products: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.Sources{}, err
	}
	return src, nil
}

func wrapFetch(feed domain.Feed, err error) error {
	if err != nil {
		return fmt.Errorf("fetch %s feed: %w", feed, err)
	}
	return nil
}

func (s *CollaborationService) store(filter domain.Filter, m *matrix.Matrix) {
	key := filterKey(filter)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matrices[key]; !ok {
		s.order = append(s.order, key)
		if len(s.order) > maxMatrices {
			delete(s.matrices, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.matrices[key] = &builtMatrix{m: m, builtAt: time.Now()}
}

// dropOthers forgets every matrix except the one for keep. Their data may predate an edit.
func (s *CollaborationService) dropOthers(keep string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.matrices {
		if key != keep {
			delete(s.matrices, key)
		}
	}
	s.order = s.order[:0]
	if _, ok := s.matrices[keep]; ok {
		s.order = append(s.order, keep)
	}
}

// View renders the matrix grid for filter.
func (s *CollaborationService) View(ctx context.Context, filter domain.Filter, metrics []domain.Metric, unit domain.Unit) (*domain.MatrixView, error) {
	m, err := s.Matrix(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := rollup.View(m, m.Entities(), metrics, unit)
	return &view, nil
}

// Summary returns the YTD/YTG/TOTAL table for filter, served from the cache when possible.
func (s *CollaborationService) Summary(ctx context.Context, filter domain.Filter, metrics []domain.Metric, unit domain.Unit) (*domain.CollaborationSummary, error) {
	window, err := s.WindowFor(filter)
	if err != nil {
		return nil, err
	}
	key := cache.SummaryKey{Filter: filter, Window: window, Unit: unit, Metrics: metrics}

	if summary, ok, err := s.cache.GetSummary(ctx, key); err == nil && ok {
		return summary, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("collaboration: cache get summary failed")
	}

	m, err := s.Matrix(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	summary := rollup.Summarize(m, m.Entities(), metrics, unit)
	s.mu.RUnlock()

	if err := s.cache.SetSummary(ctx, key, &summary); err != nil {
		log.Warn().Err(err).Msg("collaboration: cache set summary failed")
	}
	return &summary, nil
}

// Rollup computes a single rollup value for one entity or for all of them.
func (s *CollaborationService) Rollup(ctx context.Context, filter domain.Filter, q RollupQuery) (float64, error) {
	m, err := s.Matrix(ctx, filter)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.Entity == nil {
		return rollup.Aggregate(m, m.Entities(), q.Metric, q.Unit, q.Window), nil
	}
	key := domain.NewEntityKey(q.Entity.CustomerID, q.Entity.ProductID)
	e, ok := m.Entity(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", edit.ErrEntityNotFound, key)
	}
	return rollup.Entity(m, e, q.Metric, q.Unit, q.Window), nil
}

// Diagnostics returns the skip counters of the last build for filter.
func (s *CollaborationService) Diagnostics(filter domain.Filter) (matrix.Diagnostics, error) {
	m, err := s.Current(filter)
	if err != nil {
		return matrix.Diagnostics{}, err
	}
	return m.Diagnostics(), nil
}

// Edit applies one cell edit. Writes are confirmed before the matrix changes; after any confirmed
// write the summary cache is cleared and the matrix is rebuilt from the sources.
func (s *CollaborationService) Edit(ctx context.Context, filter domain.Filter, req edit.Request) (*edit.Result, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	m, err := s.Current(filter)
	if errors.Is(err, ErrNoMatrix) {
		m, err = s.rebuildLocked(ctx, filter)
	}
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	plan, err := s.engine.Plan(ctx, m, req)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	res := s.engine.Commit(ctx, m, plan)
	s.mu.Unlock()

	if !res.AnyApplied() {
		return res, nil
	}

	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("collaboration: cache invalidate failed")
	}
	s.dropOthers(filterKey(filter))
	if _, err := s.rebuildLocked(ctx, filter); err != nil {
		log.Warn().Err(err).Str("batch_id", res.BatchID).Msg("collaboration: rebuild after edit failed")
	}
	return res, nil
}

// Invalidate forgets every built matrix and cached summary. Call it after the source feeds change.
func (s *CollaborationService) Invalidate(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	s.matrices = make(map[string]*builtMatrix)
	s.order = nil
	s.mu.Unlock()

	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("collaboration: cache invalidate failed")
	}
	return nil
}

// filterKey is a canonical text form of a filter, insensitive to ID ordering.
func filterKey(f domain.Filter) string {
	parts := []string{
		"c=" + sortedJoin(f.CustomerIDs),
		"p=" + sortedJoin(f.ProductIDs),
		"l=" + sortedJoin(f.LocationIDs),
	}
	if f.StartDate != nil {
		parts = append(parts, "s="+f.StartDate.Format("2006-01-02"))
	}
	if f.EndDate != nil {
		parts = append(parts, "e="+f.EndDate.Format("2006-01-02"))
	}
	return strings.Join(parts, ";")
}

func sortedJoin(values []string) string {
	c := append([]string(nil), values...)
	sort.Strings(c)
	return strings.Join(c, ",")
}

// PlanningFromConfig resolves the configured reference year and optional window bounds
// (YYYY-MM-DD). Without both bounds the default window around the reference year is used.
func PlanningFromConfig(cfg config.PlanningConfig) (Planning, error) {
	p := DefaultPlanning(cfg.ReferenceYear)
	if cfg.WindowStart == "" || cfg.WindowEnd == "" {
		return p, nil
	}
	start, err := time.Parse("2006-01-02", cfg.WindowStart)
	if err != nil {
		return p, fmt.Errorf("invalid planning window start: %w", err)
	}
	end, err := time.Parse("2006-01-02", cfg.WindowEnd)
	if err != nil {
		return p, fmt.Errorf("invalid planning window end: %w", err)
	}
	if p.Window, err = period.NewWindow(start, end); err != nil {
		return p, err
	}
	return p, nil
}
