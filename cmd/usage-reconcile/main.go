// Command usage-reconcile re-derives every coupon's usage_count from the
// consumption ledger and repairs counters that drifted. Run it from a cron
// job; a drift count above zero means something wrote usage outside the
// confirmation transaction and is worth investigating.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/lapmart/lapmart-backend/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("reconcile failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	fixed, err := postgres.NewCouponRepo(pool).ReconcileUsageCounts(ctx)
	if err != nil {
		return errors.Wrap(err, "reconcile usage counts")
	}

	if fixed == 0 {
		slog.Info("usage counters consistent with ledger")
	} else {
		slog.Warn("usage counters repaired", slog.Int("fixed", fixed))
	}
	return nil
}
