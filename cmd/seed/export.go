package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/AdvantusAI/m8-collab/internal/config"
	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/export"
	"github.com/AdvantusAI/m8-collab/internal/repository"
	"github.com/AdvantusAI/m8-collab/internal/repository/postgres"
	"github.com/AdvantusAI/m8-collab/internal/service"
	"github.com/AdvantusAI/m8-collab/internal/storage"
)

func newCollaboration(c *cli.Context, cfg *config.Config) (*service.CollaborationService, error) {
	db, pool, err := dbFrom(c)
	if err != nil {
		return nil, err
	}
	planning, err := service.PlanningFromConfig(cfg.Planning)
	if err != nil {
		return nil, err
	}
	return service.NewCollaborationService(
		repository.NewSourceRepository(sqlxFrom(db)),
		postgres.NewCommercialInputRepository(pool),
		nil,
		planning,
	), nil
}

func runExport(c *cli.Context) error {
	cfg := config.Load()
	unit, err := domain.ParseUnit(c.String("unit"))
	if err != nil {
		return err
	}
	collab, err := newCollaboration(c, cfg)
	if err != nil {
		return err
	}

	store, err := storage.NewMinioClient(cfg.Storage)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(c.Context); err != nil {
		return err
	}

	filter := filterFrom(c)
	view, err := collab.View(c.Context, filter, domain.AllMetrics, unit)
	if err != nil {
		return err
	}
	summary, err := collab.Summary(c.Context, filter, domain.AllMetrics, unit)
	if err != nil {
		return err
	}

	keys, err := export.NewExporter(store).Export(c.Context, c.String("name"), *view, *summary)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runReport(c *cli.Context) error {
	cfg := config.Load()
	unit, err := domain.ParseUnit(c.String("unit"))
	if err != nil {
		return err
	}
	tag, err := language.Parse(c.String("lang"))
	if err != nil {
		return fmt.Errorf("invalid language: %w", err)
	}
	collab, err := newCollaboration(c, cfg)
	if err != nil {
		return err
	}

	summary, err := collab.Summary(c.Context, filterFrom(c), domain.AllMetrics, unit)
	if err != nil {
		return err
	}

	p := message.NewPrinter(tag)
	if summary.Status == domain.StatusNoData {
		p.Println("No data for the selected filters")
		return nil
	}
	p.Printf("%-28s %16s %16s %16s\n", "Metric ("+string(summary.Unit)+")", "YTD", "YTG", "TOTAL")
	for _, m := range domain.AllMetrics {
		v, ok := summary.Total.Metrics[m]
		if !ok {
			continue
		}
		p.Printf("%-28s %16.2f %16.2f %16.2f\n", m.Label(), v.YTD, v.YTG, v.Total)
	}
	p.Printf("%d entities\n", len(summary.Rows))
	return nil
}
