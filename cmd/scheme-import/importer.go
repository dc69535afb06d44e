package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/trade-schemes/internal/domain/scheme"
	"github.com/xenking/trade-schemes/internal/repository"
)

// maxFiles is bounded by the width of the per-code file bitmask.
const maxFiles = bits.UintSize

const maxLineBytes = 1 << 20

// upserter persists imported schemes.
type upserter interface {
	Upsert(ctx context.Context, sc scheme.Scheme) error
}

// filterOptions sizes the per-file bloom filters.
type filterOptions struct {
	capacity uint
	fpr      float64
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	files, err := filepath.Glob(filepath.Join(cfg.DataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list exports")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz exports in %s", cfg.DataDir)
	}
	if len(files) > maxFiles {
		return errors.Errorf("too many exports: %d (max %d)", len(files), maxFiles)
	}
	slices.Sort(files)

	opts := filterOptions{capacity: cfg.BloomCapacity, fpr: cfg.BloomFPR}
	conflicts, err := findConflicts(ctx, lg, files, opts)
	if err != nil {
		return err
	}
	for _, code := range conflicts {
		lg.Warn("Scheme code exported more than once, skipping", zap.String("code", code))
	}

	if cfg.DryRun {
		lg.Info("Dry run, nothing written", zap.Int("conflicts", len(conflicts)))
		return nil
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolOptions{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	written, err := importSchemes(ctx, lg, repository.NewSchemeRepository(pool), files, conflicts)
	if err != nil {
		return errors.Wrap(err, "import schemes")
	}
	lg.Info("Schemes imported", zap.Int("written", written), zap.Int("conflicts", len(conflicts)))
	return nil
}

// findConflicts returns the sorted scheme codes that appear in two or more
// files or more than once within one file. The first pass builds one bloom
// filter per file; the second pass marks codes that hit another file's
// filter, and a code is a cross-file conflict only when at least two files
// marked it themselves. Repeats inside a file are suspected with a local
// filter during the second pass and confirmed by an exact count.
func findConflicts(ctx context.Context, lg *zap.Logger, files []string, opts filterOptions) ([]string, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.capacity, opts.fpr)
			var count int
			if err := streamSchemes(gctx, path, func(sc scheme.Scheme) error {
				if sc.Code != "" {
					filter.AddString(sc.Code)
					count++
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			lg.Info("Filter built", zap.String("file", path), zap.Int("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	marks := make([]map[string]uint, len(files))
	repeats := make([][]string, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			seen := make(map[string]uint)
			suspects := make(map[string]int)
			local := bloom.NewWithEstimates(opts.capacity, opts.fpr)
			bit := uint(1) << uint(i)
			if err := streamSchemes(gctx, path, func(sc scheme.Scheme) error {
				if sc.Code == "" {
					return nil
				}
				if local.TestAndAddString(sc.Code) {
					suspects[sc.Code] = 0
				}
				for j, f := range filters {
					if j != i && f.TestString(sc.Code) {
						seen[sc.Code] |= bit
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			marks[i] = seen

			dups, err := confirmRepeats(gctx, path, suspects)
			if err != nil {
				return errors.Wrapf(err, "count repeats in %s", path)
			}
			if len(dups) > 0 {
				lg.Info("Repeated codes in file", zap.String("file", path), zap.Int("codes", len(dups)))
			}
			repeats[i] = dups
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range marks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}

	conflicts := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			conflicts[code] = struct{}{}
		}
	}
	for _, dups := range repeats {
		for _, code := range dups {
			conflicts[code] = struct{}{}
		}
	}

	out := make([]string, 0, len(conflicts))
	for code := range conflicts {
		out = append(out, code)
	}
	slices.Sort(out)
	return out, nil
}

// confirmRepeats counts the suspected codes exactly and returns those that
// occur more than once in the file. suspects is used as the counter.
func confirmRepeats(ctx context.Context, path string, suspects map[string]int) ([]string, error) {
	if len(suspects) == 0 {
		return nil, nil
	}
	if err := streamSchemes(ctx, path, func(sc scheme.Scheme) error {
		if n, ok := suspects[sc.Code]; ok {
			suspects[sc.Code] = n + 1
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var dups []string
	for code, n := range suspects {
		if n > 1 {
			dups = append(dups, code)
		}
	}
	return dups, nil
}

// importSchemes upserts every scheme whose code is not conflicting, file by
// file in order.
func importSchemes(ctx context.Context, lg *zap.Logger, repo upserter, files, conflicts []string) (int, error) {
	var written int
	for _, path := range files {
		var skipped int
		err := streamSchemes(ctx, path, func(sc scheme.Scheme) error {
			if sc.Code != "" {
				if _, conflict := slices.BinarySearch(conflicts, sc.Code); conflict {
					skipped++
					return nil
				}
			}
			if err := repo.Upsert(ctx, sc); err != nil {
				return errors.Wrapf(err, "upsert scheme %s", sc.ID)
			}
			written++
			return nil
		})
		if err != nil {
			return written, errors.Wrapf(err, "import %s", path)
		}
		lg.Info("File imported", zap.String("file", path), zap.Int("skipped", skipped))
	}
	return written, nil
}

// streamSchemes decodes one scheme per line from a gzip file. Blank lines are
// ignored.
func streamSchemes(ctx context.Context, path string, fn func(scheme.Scheme) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return decodeLines(ctx, gz, fn)
}

func decodeLines(ctx context.Context, r io.Reader, fn func(scheme.Scheme) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var line int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var sc scheme.Scheme
		if err := json.Unmarshal(raw, &sc); err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if sc.ID == "" {
			return errors.Errorf("line %d: scheme id is required", line)
		}
		if err := fn(sc); err != nil {
			return err
		}
	}

	return scanner.Err()
}
