package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/trade-schemes/internal/domain/auth"
	"github.com/xenking/trade-schemes/internal/domain/scheme"
	"github.com/xenking/trade-schemes/internal/repository"
)

type config struct {
	DatabaseURL  string `env:"DATABASE_URL" flag:"database-url" usage:"PostgreSQL connection URL"`
	SchemesFile  string `env:"SCHEMES_FILE" flag:"schemes-file" default:"db/seed/schemes.json" usage:"path to schemes JSON file"`
	APIKey       string `env:"SCHEMES_SEED_API_KEY" flag:"api-key" usage:"API key to seed"`
	APIKeyPepper string `env:"SCHEMES_API_KEY_PEPPER" flag:"api-key-pepper" usage:"HMAC pepper for API key hashing"`
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	var cfg config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFiles:          true,
		AllowUnknownFields: true,
	})
	if err := loader.Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if cfg.APIKey == "" {
		lg.Fatal("API key is required: set --api-key or SCHEMES_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	lg.Info("Connecting to database")

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolOptions{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedSchemes(ctx, lg, repository.NewSchemeRepository(pool), cfg.SchemesFile); err != nil {
		return errors.Wrap(err, "seed schemes")
	}

	if err := seedAPIKey(ctx, lg, repository.NewAPIKeyRepository(pool), cfg.APIKey, cfg.APIKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedSchemes(ctx context.Context, lg *zap.Logger, repo *repository.SchemeRepository, path string) error {
	schemes, err := loadSchemes(path)
	if err != nil {
		return err
	}

	lg.Info("Upserting schemes", zap.Int("count", len(schemes)), zap.String("path", path))

	for _, sc := range schemes {
		if err := repo.Upsert(ctx, sc); err != nil {
			return errors.Wrapf(err, "upsert scheme %s", sc.ID)
		}
		lg.Debug("Upserted scheme", zap.String("id", sc.ID), zap.String("type", string(sc.Type)))
	}

	return nil
}

func loadSchemes(path string) ([]scheme.Scheme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read schemes file")
	}

	var schemes []scheme.Scheme
	if err := json.Unmarshal(data, &schemes); err != nil {
		return nil, errors.Wrap(err, "parse schemes JSON")
	}
	return schemes, nil
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, repo *repository.APIKeyRepository, key, pepper string) error {
	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKeyHex(key, []byte(pepper)),
		Name:    "Default operator key",
		Scopes:  []string{auth.ScopeEvaluate, auth.ScopeOverride, auth.ScopeCommit},
	}
	if err := repo.Create(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	lg.Info("Upserted API key", zap.String("id", info.ID), zap.Strings("scopes", info.Scopes))
	return nil
}
