package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// Telemetry provides the tracer and meter providers for the server.
type Telemetry = httpmiddleware.Telemetry

// Server is the assembled pricing API.
type Server struct {
	Handler http.Handler
	Health  *health.Health
	Engines *Engines

	closers []func()
}

// Close releases the resources NewServer acquired.
func (s *Server) Close() {
	s.Health.Stop()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// NewServer loads rate tables, registers health checks and builds the
// middleware chain. Background reloads stop when ctx is done.
func NewServer(ctx context.Context, lg *zap.Logger, t Telemetry, cfg *Config) (_ *Server, rerr error) {
	s := &Server{Health: health.New()}
	defer func() {
		if rerr != nil {
			for i := len(s.closers) - 1; i >= 0; i-- {
				s.closers[i]()
			}
		}
	}()
	s.Health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	switch {
	case cfg.DatabaseURL != "":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		s.closers = append(s.closers, pool.Close)

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}

		rates := postgres.NewRateRepository(pool)
		engines, err := NewEngines(ctx, rates.LoadTables)
		if err != nil {
			return nil, errors.Wrap(err, "load rate tables")
		}
		s.Engines = engines
		s.Health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(rates))
		lg.Info("Rate tables loaded from database")
	case cfg.TablesFile != "":
		path := cfg.TablesFile
		engines, err := NewEngines(ctx, func(context.Context) (pricing.Tables, error) {
			return pricing.LoadTablesFile(path)
		})
		if err != nil {
			return nil, errors.Wrap(err, "load rate tables")
		}
		s.Engines = engines
		lg.Info("Rate tables loaded from file", zap.String("path", path))
	default:
		s.Engines = StaticEngines(pricing.DefaultTables())
		lg.Info("Using built-in rate tables")
	}

	if cfg.DatabaseURL != "" || cfg.TablesFile != "" {
		s.Health.AddReadinessCheck("rate_tables", time.Second,
			health.FreshnessCheck(s.Engines.LoadedAt, cfg.Tables.MaxAge))
		go s.Engines.Watch(ctx, cfg.Tables.ReloadInterval)
	}

	meter := t.MeterProvider().Meter("kart-pricing")
	h, err := handler.NewHandler(s.Engines, meter)
	if err != nil {
		return nil, errors.Wrap(err, "create handler")
	}
	limited, err := meter.Int64Counter("kart.http.rate_limited",
		metric.WithDescription("Requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rate limit counter")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", s.Health.LiveEndpoint)
	mux.HandleFunc("/readyz", s.Health.ReadyEndpoint)
	h.Register(mux)

	s.Handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:        cfg.RateLimit.Max,
			Window:     cfg.RateLimit.Window,
			Prefixes:   []string{"/api/"},
			TrustProxy: cfg.RateLimit.TrustProxy,
			OnLimited: func(r *http.Request) {
				limited.Add(r.Context(), 1)
			},
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument("kart-pricing", t),
		httpmiddleware.LogRequests(),
	)

	s.Health.Start(ctx, 10*time.Second)
	s.Health.SetReady(true)
	return s, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the pricing API.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	s, err := NewServer(ctx, zctx.From(ctx), m, cfg)
	if err != nil {
		return err
	}
	healthSvc := s.Health

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           s.Handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		s.Close()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.Close()
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
