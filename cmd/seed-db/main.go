// Command seed-db writes shipping and tax rate tables into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		tablesFile  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&tablesFile, "tables-file", "", "YAML rate tables file, optionally .gz; built-in tables when empty")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, tablesFile); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}

	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, tablesFile string) error {
	tables := pricing.DefaultTables()
	if tablesFile != "" {
		lg.Info("Reading rate tables", zap.String("path", tablesFile))
		t, err := pricing.LoadTablesFile(tablesFile)
		if err != nil {
			return err
		}
		tables = t
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	rates := postgres.NewRateRepository(pool)
	if err := rates.SaveTables(ctx, tables); err != nil {
		return errors.Wrap(err, "save rate tables")
	}

	// Read back so a bad write fails the seed rather than the API.
	stored, err := rates.LoadTables(ctx)
	if err != nil {
		return errors.Wrap(err, "verify rate tables")
	}
	for _, zone := range pricing.Zones {
		rate, ok := stored.Zones[zone]
		if !ok {
			continue
		}
		lg.Info("Zone seeded",
			zap.String("zone", string(zone)),
			zap.Stringer("base", rate.Base),
			zap.Stringer("per_item", rate.PerItem),
			zap.Stringer("free_threshold", rate.FreeThreshold),
			zap.Int("states", len(stored.StatesIn(zone))),
		)
	}
	lg.Info("Tax rates seeded", zap.Int("count", len(stored.TaxRates)))
	return nil
}
