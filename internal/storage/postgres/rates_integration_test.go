//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

type RateRepositoryIntegrationTestSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	repo      *postgres.RateRepository
}

func (s *RateRepositoryIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("kart"),
		tcpostgres.WithUsername("kart"),
		tcpostgres.WithPassword("kart"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := postgres.NewPool(ctx, connStr)
	s.Require().NoError(err)
	s.pool = pool

	s.Require().NoError(postgres.RunMigrations(ctx, pool))
	// Migrations are idempotent.
	s.Require().NoError(postgres.RunMigrations(ctx, pool))
}

func (s *RateRepositoryIntegrationTestSuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(),
		"TRUNCATE TABLE state_zones, tax_rates, pricing_settings, shipping_zones")
	s.Require().NoError(err)
	s.repo = postgres.NewRateRepository(s.pool)
}

func (s *RateRepositoryIntegrationTestSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *RateRepositoryIntegrationTestSuite) TestLoadTables_Unseeded() {
	_, err := s.repo.LoadTables(context.Background())
	s.Require().ErrorIs(err, postgres.ErrNoTables)
}

func (s *RateRepositoryIntegrationTestSuite) TestSaveAndLoad_RoundTrip() {
	ctx := context.Background()
	want := pricing.DefaultTables()

	s.Require().NoError(s.repo.SaveTables(ctx, want))

	got, err := s.repo.LoadTables(ctx)
	s.Require().NoError(err)

	s.Equal(want.DefaultZone, got.DefaultZone)
	s.True(want.DefaultTaxRate.Equal(got.DefaultTaxRate))
	s.True(want.Express.Multiplier.Equal(got.Express.Multiplier))
	s.Equal(want.StateZones, got.StateZones)
	s.Len(got.TaxRates, len(want.TaxRates))
	for state, rate := range want.TaxRates {
		s.True(rate.Equal(got.TaxRates[state]), state)
	}
	for zone, rate := range want.Zones {
		s.True(rate.Base.Equal(got.Zones[zone].Base), zone)
		s.True(rate.FreeThreshold.Equal(got.Zones[zone].FreeThreshold), zone)
	}

	// The engine prices identically from stored tables.
	engine := pricing.NewEngine(got)
	s.Equal("6.49", engine.Shipping("OH", decimal.RequireFromString("49.99"), 3, pricing.MethodStandard).StringFixed(2))
}

func (s *RateRepositoryIntegrationTestSuite) TestSaveTables_ReplacesPrevious() {
	ctx := context.Background()
	s.Require().NoError(s.repo.SaveTables(ctx, pricing.DefaultTables()))

	// A smaller table set: one zone, one state, no tax overrides.
	t := pricing.Tables{
		Zones: map[pricing.Zone]pricing.ZoneRate{
			pricing.ZoneNational: {
				Base:          decimal.RequireFromString("8.00"),
				PerItem:       decimal.RequireFromString("1.00"),
				FreeThreshold: decimal.RequireFromString("60.00"),
			},
		},
		StateZones:     map[string]pricing.Zone{"TX": pricing.ZoneNational},
		TaxRates:       map[string]decimal.Decimal{},
		DefaultZone:    pricing.ZoneNational,
		DefaultTaxRate: decimal.RequireFromString("0.05"),
		Express: pricing.ExpressRule{
			Floor:      decimal.RequireFromString("5.00"),
			Multiplier: decimal.RequireFromString("2"),
			Surcharge:  decimal.Zero,
		},
	}
	s.Require().NoError(s.repo.SaveTables(ctx, t))

	got, err := s.repo.LoadTables(ctx)
	s.Require().NoError(err)
	s.Len(got.Zones, 1)
	s.Equal(map[string]pricing.Zone{"TX": pricing.ZoneNational}, got.StateZones)
	s.Empty(got.TaxRates)
	s.True(got.DefaultTaxRate.Equal(decimal.RequireFromString("0.05")))
}

func (s *RateRepositoryIntegrationTestSuite) TestSaveTables_RejectsInvalid() {
	err := s.repo.SaveTables(context.Background(), pricing.Tables{})
	s.Require().Error(err)
}

func TestRateRepositoryIntegration(t *testing.T) {
	suite.Run(t, new(RateRepositoryIntegrationTestSuite))
}
