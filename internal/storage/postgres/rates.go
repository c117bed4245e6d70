package postgres

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

const (
	listZonesSQL      = `SELECT zone, base, per_item, free_threshold FROM shipping_zones`
	listStateZonesSQL = `SELECT state, zone FROM state_zones`
	listTaxRatesSQL   = `SELECT state, rate FROM tax_rates`
	getSettingsSQL    = `SELECT default_zone, default_tax_rate, express_floor,
		express_multiplier, express_surcharge FROM pricing_settings WHERE id`

	upsertZoneSQL = `INSERT INTO shipping_zones (zone, base, per_item, free_threshold)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (zone) DO UPDATE SET base = EXCLUDED.base,
			per_item = EXCLUDED.per_item, free_threshold = EXCLUDED.free_threshold`

	upsertSettingsSQL = `INSERT INTO pricing_settings (id, default_zone, default_tax_rate,
			express_floor, express_multiplier, express_surcharge, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET default_zone = EXCLUDED.default_zone,
			default_tax_rate = EXCLUDED.default_tax_rate,
			express_floor = EXCLUDED.express_floor,
			express_multiplier = EXCLUDED.express_multiplier,
			express_surcharge = EXCLUDED.express_surcharge,
			updated_at = now()`

	deleteStateZonesSQL = `DELETE FROM state_zones`
	deleteTaxRatesSQL   = `DELETE FROM tax_rates`
	deleteStaleZonesSQL = `DELETE FROM shipping_zones WHERE NOT (zone = ANY($1))`
)

// ErrNoTables is returned when the database holds no pricing settings.
var ErrNoTables = errors.New("pricing tables have not been seeded")

// RateRepository loads and stores pricing.Tables.
type RateRepository struct {
	pool *pgxpool.Pool
}

// NewRateRepository returns a RateRepository that uses the given pool.
func NewRateRepository(pool *pgxpool.Pool) *RateRepository {
	return &RateRepository{pool: pool}
}

type settingsRow struct {
	defaultZone    string
	defaultTaxRate decimal.Decimal
	express        pricing.ExpressRule
}

// LoadTables reads all rate tables concurrently and validates the result.
func (r *RateRepository) LoadTables(ctx context.Context) (pricing.Tables, error) {
	var (
		zones      map[pricing.Zone]pricing.ZoneRate
		stateZones map[string]pricing.Zone
		taxRates   map[string]decimal.Decimal
		settings   settingsRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		zones, err = r.loadZones(gctx)
		return err
	})
	g.Go(func() (err error) {
		stateZones, err = r.loadStateZones(gctx)
		return err
	})
	g.Go(func() (err error) {
		taxRates, err = r.loadTaxRates(gctx)
		return err
	})
	g.Go(func() (err error) {
		settings, err = r.loadSettings(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return pricing.Tables{}, err
	}

	defaultZone, err := pricing.ParseZone(settings.defaultZone)
	if err != nil {
		return pricing.Tables{}, fmt.Errorf("loading default zone: %w", err)
	}
	t := pricing.Tables{
		Zones:          zones,
		StateZones:     stateZones,
		TaxRates:       taxRates,
		DefaultZone:    defaultZone,
		DefaultTaxRate: settings.defaultTaxRate,
		Express:        settings.express,
	}
	if err := t.Validate(); err != nil {
		return pricing.Tables{}, fmt.Errorf("validating stored tables: %w", err)
	}
	return t, nil
}

func (r *RateRepository) loadZones(ctx context.Context) (map[pricing.Zone]pricing.ZoneRate, error) {
	rows, err := r.pool.Query(ctx, listZonesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping zones: %w", err)
	}
	type zoneRow struct {
		zone pricing.Zone
		rate pricing.ZoneRate
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (zoneRow, error) {
		var (
			zr   zoneRow
			name string
		)
		if err := row.Scan(&name, &zr.rate.Base, &zr.rate.PerItem, &zr.rate.FreeThreshold); err != nil {
			return zoneRow{}, err
		}
		zone, err := pricing.ParseZone(name)
		if err != nil {
			return zoneRow{}, err
		}
		zr.zone = zone
		return zr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing shipping zones: %w", err)
	}

	out := make(map[pricing.Zone]pricing.ZoneRate, len(list))
	for _, zr := range list {
		out[zr.zone] = zr.rate
	}
	return out, nil
}

func (r *RateRepository) loadStateZones(ctx context.Context) (map[string]pricing.Zone, error) {
	rows, err := r.pool.Query(ctx, listStateZonesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing state zones: %w", err)
	}
	out := make(map[string]pricing.Zone)
	var state, zone string
	_, err = pgx.ForEachRow(rows, []any{&state, &zone}, func() error {
		z, err := pricing.ParseZone(zone)
		if err != nil {
			return fmt.Errorf("state %s: %w", state, err)
		}
		out[state] = z
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing state zones: %w", err)
	}
	return out, nil
}

func (r *RateRepository) loadTaxRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, listTaxRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing tax rates: %w", err)
	}
	out := make(map[string]decimal.Decimal)
	var (
		state string
		rate  decimal.Decimal
	)
	if _, err := pgx.ForEachRow(rows, []any{&state, &rate}, func() error {
		out[state] = rate
		return nil
	}); err != nil {
		return nil, fmt.Errorf("listing tax rates: %w", err)
	}
	return out, nil
}

func (r *RateRepository) loadSettings(ctx context.Context) (settingsRow, error) {
	var s settingsRow
	err := r.pool.QueryRow(ctx, getSettingsSQL).Scan(
		&s.defaultZone, &s.defaultTaxRate,
		&s.express.Floor, &s.express.Multiplier, &s.express.Surcharge,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settingsRow{}, ErrNoTables
		}
		return settingsRow{}, fmt.Errorf("loading pricing settings: %w", err)
	}
	return s, nil
}

// SaveTables replaces the stored tables with t in one transaction.
func (r *RateRepository) SaveTables(ctx context.Context, t pricing.Tables) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validating tables: %w", err)
	}

	zones := slices.Sorted(maps.Keys(t.Zones))
	names := make([]string, len(zones))
	for i, z := range zones {
		names[i] = string(z)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteStateZonesSQL); err != nil {
			return fmt.Errorf("clearing state zones: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteTaxRatesSQL); err != nil {
			return fmt.Errorf("clearing tax rates: %w", err)
		}

		batch := &pgx.Batch{}
		for _, z := range zones {
			rate := t.Zones[z]
			batch.Queue(upsertZoneSQL, string(z), rate.Base, rate.PerItem, rate.FreeThreshold)
		}
		batch.Queue(upsertSettingsSQL, string(t.DefaultZone), t.DefaultTaxRate,
			t.Express.Floor, t.Express.Multiplier, t.Express.Surcharge)
		batch.Queue(deleteStaleZonesSQL, names)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting zones: %w", err)
		}

		states := slices.Sorted(maps.Keys(t.StateZones))
		stateRows := make([][]any, len(states))
		for i, s := range states {
			stateRows[i] = []any{s, string(t.StateZones[s])}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"state_zones"}, []string{"state", "zone"},
			pgx.CopyFromRows(stateRows)); err != nil {
			return fmt.Errorf("copying state zones: %w", err)
		}

		taxStates := slices.Sorted(maps.Keys(t.TaxRates))
		taxRows := make([][]any, len(taxStates))
		for i, s := range taxStates {
			taxRows[i] = []any{s, t.TaxRates[s]}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tax_rates"}, []string{"state", "rate"},
			pgx.CopyFromRows(taxRows)); err != nil {
			return fmt.Errorf("copying tax rates: %w", err)
		}
		return nil
	})
}

// Ping reports whether the database is reachable.
func (r *RateRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
