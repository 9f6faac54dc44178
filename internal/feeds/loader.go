package feeds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/AdvantusAI/m8-collab/internal/domain"
)

// Writer persists parsed rows. repository.FeedRepository and memory.Store implement it.
type Writer interface {
	UpsertForecast(ctx context.Context, rows []domain.ForecastRow) (int, error)
	UpsertSellIn(ctx context.Context, rows []domain.SellInRow) (int, error)
	UpsertSellOut(ctx context.Context, rows []domain.SellOutRow) (int, error)
	UpsertInventory(ctx context.Context, rows []domain.InventoryRow) (int, error)
	UpsertKAM(ctx context.Context, rows []domain.KAMRow) (int, error)
	UpsertProducts(ctx context.Context, products []domain.ProductAttributes) (int, error)
}

// Report summarises one loaded file.
type Report struct {
	Source  string `json:"source"`
	Kind    Kind   `json:"kind"`
	Parsed  int    `json:"parsed"`
	Skipped int    `json:"skipped"`
	Written int    `json:"written"`
}

type Loader struct {
	writer Writer
}

func NewLoader(w Writer) *Loader {
	return &Loader{writer: w}
}

// Load writes one parsed batch.
func (l *Loader) Load(ctx context.Context, b *Batch) (Report, error) {
	rep := Report{Source: b.Source, Kind: b.Kind, Parsed: b.Len(), Skipped: b.Skipped}

	var err error
	switch b.Kind {
	case KindForecast:
		rep.Written, err = l.writer.UpsertForecast(ctx, b.Forecast)
	case KindSellIn:
		rep.Written, err = l.writer.UpsertSellIn(ctx, b.SellIn)
	case KindSellOut:
		rep.Written, err = l.writer.UpsertSellOut(ctx, b.SellOut)
	case KindInventory:
		rep.Written, err = l.writer.UpsertInventory(ctx, b.Inventory)
	case KindKAM:
		rep.Written, err = l.writer.UpsertKAM(ctx, b.KAM)
	case KindProducts:
		rep.Written, err = l.writer.UpsertProducts(ctx, b.Products)
	default:
		return rep, fmt.Errorf("%w: %q", ErrUnknownKind, b.Kind)
	}
	if err != nil {
		return rep, fmt.Errorf("load %s: %w", b.Source, err)
	}

	log.Info().
		Str("source", rep.Source).
		Str("kind", string(rep.Kind)).
		Int("parsed", rep.Parsed).
		Int("skipped", rep.Skipped).
		Int("written", rep.Written).
		Msg("feeds: file loaded")
	return rep, nil
}

// LoadFiles parses and loads every path, product files first. The kind of each file comes from
// its name. It stops at the first failure and returns the reports gathered so far.
func (l *Loader) LoadFiles(ctx context.Context, paths []string) ([]Report, error) {
	type job struct {
		path string
		kind Kind
	}
	jobs := make([]job, 0, len(paths))
	for _, p := range paths {
		kind, err := KindFromFilename(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("feeds: skipping file")
			continue
		}
		jobs = append(jobs, job{path: p, kind: kind})
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return kindOrder(jobs[i].kind) < kindOrder(jobs[j].kind)
	})

	reports := make([]Report, 0, len(jobs))
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		batch, err := ParseFile(j.path, j.kind)
		if err != nil {
			return reports, err
		}
		rep, err := l.Load(ctx, batch)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func kindOrder(k Kind) int {
	for i, candidate := range Kinds {
		if candidate == k {
			return i
		}
	}
	return len(Kinds)
}

// ListFiles returns the CSV and XLSX files directly inside dir, sorted by name.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read feed dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".csv", ".xlsx", ".xlsm":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
