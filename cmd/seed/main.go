package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/repository/postgres"
	"github.com/AdvantusAI/m8-collab/pkg/logger"
)

type ctxKey string

const (
	dbKey   ctxKey = "db"
	poolKey ctxKey = "pool"
)

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "customers", Usage: "Comma separated customer IDs"},
		&cli.StringFlag{Name: "products", Usage: "Comma separated product IDs"},
		&cli.StringFlag{Name: "locations", Usage: "Comma separated location IDs"},
		&cli.StringFlag{Name: "unit", Value: string(domain.UnitCases), Usage: "Unit of measure"},
	}
}

func initDB(c *cli.Context) error {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(c.Context); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	pool, err := pgxpool.New(c.Context, c.String("db-url"))
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open pool: %w", err)
	}

	c.Context = context.WithValue(c.Context, dbKey, db)
	c.Context = context.WithValue(c.Context, poolKey, pool)
	return nil
}

func closeDB(c *cli.Context) error {
	if pool, ok := c.Context.Value(poolKey).(*pgxpool.Pool); ok && pool != nil {
		pool.Close()
	}
	if db, ok := c.Context.Value(dbKey).(*sql.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) (*sql.DB, *pgxpool.Pool, error) {
	db, _ := c.Context.Value(dbKey).(*sql.DB)
	pool, _ := c.Context.Value(poolKey).(*pgxpool.Pool)
	if db == nil || pool == nil {
		return nil, nil, fmt.Errorf("database not initialized")
	}
	return db, pool, nil
}

func sqlxFrom(db *sql.DB) *sqlx.DB {
	return sqlx.NewDb(db, "pgx")
}

func filterFrom(c *cli.Context) domain.Filter {
	return domain.Filter{
		CustomerIDs: splitList(c.String("customers")),
		ProductIDs:  splitList(c.String("products")),
		LocationIDs: splitList(c.String("locations")),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "seed",
		Usage: "Load collaboration feeds and produce snapshots",
		Flags: []cli.Flag{newDBURLFlag()},
		Before: func(c *cli.Context) error {
			logger.SetLevel(os.Getenv("LOG_LEVEL"))
			return initDB(c)
		},
		After: closeDB,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply schema migrations",
				Action: runMigrate,
			},
			{
				Name:  "feeds",
				Usage: "Load feed files from a directory, Google Drive or object storage",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data-dir",
						Usage:   "Directory with feed files",
						Value:   "./data/feeds",
						EnvVars: []string{"FEEDS_DIR"},
					},
					&cli.BoolFlag{
						Name:  "drive",
						Usage: "Download the feeds from Google Drive into data-dir first",
					},
					&cli.BoolFlag{
						Name:  "from-storage",
						Usage: "Download the feeds from object storage into data-dir first",
					},
					&cli.StringFlag{
						Name:  "storage-prefix",
						Usage: "Object key prefix holding the feed files",
						Value: "feeds/",
					},
					&cli.StringFlag{
						Name:    "drive-folder",
						Usage:   "Drive folder ID or path",
						EnvVars: []string{"GOOGLE_DRIVE_FOLDER_ID"},
					},
					&cli.StringFlag{
						Name:    "credentials",
						Usage:   "Service account credentials file",
						EnvVars: []string{"GOOGLE_CREDENTIALS_FILE"},
					},
				},
				Action: runFeeds,
			},
			{
				Name:   "export",
				Usage:  "Build the matrix and upload a snapshot to object storage",
				Flags:  append(filterFlags(), &cli.StringFlag{Name: "name", Value: "collaboration", Usage: "Snapshot file name"}),
				Action: runExport,
			},
			{
				Name:   "report",
				Usage:  "Print the YTD/YTG/TOTAL rollups",
				Flags:  append(filterFlags(), &cli.StringFlag{Name: "lang", Value: "en", Usage: "Number formatting language"}),
				Action: runReport,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("seed failed")
	}
}

func runMigrate(c *cli.Context) error {
	_, pool, err := dbFrom(c)
	if err != nil {
		return err
	}
	return postgres.Migrate(c.Context, pool)
}
