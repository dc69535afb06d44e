// Command scheme-import loads operator-authored schemes from gzipped JSON
// Lines exports into the scheme catalogue. A scheme code present in more than
// one export, or more than once in the same export, is reported as a conflict
// and none of its definitions are imported.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/cristalhq/aconfig"
	"go.uber.org/zap"
)

type config struct {
	DataDir       string  `env:"SCHEMES_IMPORT_DIR" flag:"data-dir" default:"data" usage:"directory containing *.jsonl.gz scheme exports"`
	DatabaseURL   string  `env:"DATABASE_URL" flag:"database-url" usage:"PostgreSQL connection URL"`
	BloomCapacity uint    `env:"SCHEMES_IMPORT_BLOOM_CAPACITY" flag:"bloom-capacity" default:"1000000" usage:"expected scheme codes per export"`
	BloomFPR      float64 `env:"SCHEMES_IMPORT_BLOOM_FPR" flag:"bloom-fpr" default:"0.001" usage:"bloom filter false positive rate"`
	DryRun        bool    `flag:"dry-run" usage:"report conflicts without writing to the database"`
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
	if cfg.DatabaseURL == "" && !cfg.DryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Scheme import failed", zap.Error(err))
	}

	lg.Info("Scheme import completed")
}
