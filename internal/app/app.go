package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/extra/redisotel/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/xenking/trade-schemes/internal/domain/auth"
	"github.com/xenking/trade-schemes/internal/domain/evaluation"
	"github.com/xenking/trade-schemes/internal/domain/override"
	"github.com/xenking/trade-schemes/internal/handler"
	"github.com/xenking/trade-schemes/internal/repository"
	"github.com/xenking/trade-schemes/pkg/health"
	"github.com/xenking/trade-schemes/pkg/httpmiddleware"
)

const serviceName = "schemes-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.Bool("redis", cfg.RedisURL != ""))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolOptions{MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(health.DefaultFailureThreshold)
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Override ledgers and rate limit counters live in Redis when configured,
	// otherwise in this process.
	var (
		overrides    override.Store = override.NewMemoryStore()
		limiterStore limiter.Store
	)
	if cfg.RedisURL != "" {
		rdb, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				lg.Error("Close redis", zap.Error(err))
			}
		}()
		if err := redisotel.InstrumentTracing(rdb, redisotel.WithTracerProvider(m.TracerProvider())); err != nil {
			return errors.Wrap(err, "instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(rdb, redisotel.WithMeterProvider(m.MeterProvider())); err != nil {
			return errors.Wrap(err, "instrument redis metrics")
		}

		overrides = repository.NewRedisOverrideStore(rdb, repository.RedisOverrideOptions{
			KeyPrefix: cfg.Overrides.KeyPrefix,
			TTL:       cfg.Overrides.TTL,
		})
		limiterStore, err = limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
			Prefix: "schemes:ratelimit",
		})
		if err != nil {
			return errors.Wrap(err, "create rate limit store")
		}
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, health.RedisCheck(rdb))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	schemeRepo := repository.NewSchemeRepository(pool)
	auditRepo := repository.NewOverrideAuditRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	svc, err := evaluation.NewService(schemeRepo, overrides, auditRepo, evaluation.Options{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create evaluation service")
	}

	// HTTP handlers.
	h := handler.NewHandler(svc)
	authn := handler.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))

	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests(), httpmiddleware.Labeler())
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Route("/api", func(api chi.Router) {
		api.Use(authn.Middleware)
		api.Use(httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: rateLimitKey,
			Store:   limiterStore,
		}))
		h.Register(api)
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.HeaderAPIKey},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
		),
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
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// rateLimitKey buckets authenticated requests by API key and everything else
// by client address.
func rateLimitKey(r *http.Request) string {
	if info, ok := auth.KeyFromContext(r.Context()); ok {
		return "key:" + info.ID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
