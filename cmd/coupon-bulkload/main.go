// Command coupon-bulkload imports promo-code drops. Marketing hands over
// several gzip files of generated codes; only codes present in at least two
// of the files are genuine (single-file codes are padding against scraping).
// Genuine codes become single-use percentage coupons.
//
// The files are far too large to hold in memory, so pass 1 builds one bloom
// filter per file and pass 2 re-streams each file testing against the other
// files' filters. The false-positive rate only ever admits a stray code, it
// never drops a genuine one.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/lapmart/lapmart-backend/internal/storage/postgres"
)

const (
	bloomCapacity = 100_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 12
)

func main() {
	var (
		dataDir        string
		databaseURL    string
		discountPct    int64
		validityMonths int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing promo code drop files (*.gz)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Int64Var(&discountPct, "discount-percent", 10, "percentage discount for imported codes")
	flag.IntVar(&validityMonths, "validity-months", 3, "how long imported codes stay valid")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, discountPct, validityMonths); err != nil {
		slog.Error("bulkload failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("bulkload completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, discountPct int64, validityMonths int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list drop files")
	}
	if len(files) < 2 {
		return errors.Errorf("need at least 2 drop files in %s, found %d", dataDir, len(files))
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters, err := buildFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: cross-checking codes")
	codes, err := genuineCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "cross-check codes")
	}

	slog.Info("genuine codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, pool, codes, discountPct, validityMonths)
}

func buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64

			if err := streamGz(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "filter for %s", path)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// genuineCodes re-streams every file, testing each code against the OTHER
// files' filters, and keeps codes seen in two or more files.
func genuineCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	perFile := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			hits := make(map[string]uint)
			bit := uint(1) << uint(i)

			if err := streamGz(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						hits[code] |= bit
						break
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}

			slog.Info("pass 2 complete", slog.Int("file", i+1), slog.Int("candidates", len(hits)))
			perFile[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, hits := range perFile {
		for code, mask := range hits {
			merged[code] |= mask
		}
	}

	var genuine []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			genuine = append(genuine, code)
		}
	}
	return genuine, nil
}

// streamGz calls fn for every line of a gzip file.
func streamGz(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

const insertCodeSQL = `
INSERT INTO coupons (code, name, type, value, valid_from, valid_until,
                     usage_limit, usage_limit_per_user, stackable, is_active, applicable_to)
VALUES (upper($1), 'Promo drop', 'percentage', $2, $3, $4, NULL, 1, FALSE, TRUE, 'all')
ON CONFLICT (code) DO NOTHING`

func writeCoupons(ctx context.Context, pool *pgxpool.Pool, codes []string, discountPct int64, validityMonths int) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)))

	value := decimal.NewFromInt(discountPct)
	from := time.Now()
	until := from.AddDate(0, validityMonths, 0)

	for i, code := range codes {
		if _, err := pool.Exec(ctx, insertCodeSQL, code, value, from, until); err != nil {
			return errors.Wrapf(err, "insert coupon %s", code)
		}
		if (i+1)%10_000 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}
	return nil
}
