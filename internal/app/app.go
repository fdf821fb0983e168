// Package app wires the repositories, domain services, and HTTP server
// together and owns the process lifecycle.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/lapmart/lapmart-backend/internal/domain/cart"
	"github.com/lapmart/lapmart-backend/internal/domain/checkout"
	"github.com/lapmart/lapmart-backend/internal/domain/coupon"
	"github.com/lapmart/lapmart-backend/internal/handler"
	"github.com/lapmart/lapmart-backend/internal/notify"
	"github.com/lapmart/lapmart-backend/internal/payment"
	"github.com/lapmart/lapmart-backend/internal/storage/postgres"
	"github.com/lapmart/lapmart-backend/pkg/health"
	"github.com/lapmart/lapmart-backend/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the cart expiry
// sweeper, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	cartRepo := postgres.NewCartRepo(pool)
	catalogRepo := postgres.NewCatalogRepo(pool)
	couponRepo := postgres.NewCouponRepo(pool)
	appliedRepo := postgres.NewAppliedCouponRepo(pool)
	ledgerRepo := postgres.NewLedgerRepo(pool)
	orderRepo := postgres.NewOrderRepo(pool)
	addressRepo := postgres.NewAddressRepo(pool)
	paymentRepo := postgres.NewPaymentRepo(pool)

	// Domain services. The cart service doubles as the coupon service's cart
	// view and repricer so both mutate totals through one code path.
	cartSvc := cart.NewService(cartRepo, catalogRepo, lg)
	couponSvc := coupon.NewService(couponRepo, appliedRepo, ledgerRepo, cartSvc, catalogRepo, cartSvc, lg)

	gateway := payment.NewProvider(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.Secret)
	notifier := notify.NewLogNotifier(lg)
	checkoutSvc := checkout.NewService(
		cartSvc, cartRepo, couponSvc,
		orderRepo, addressRepo, paymentRepo, catalogRepo,
		gateway, notifier, lg,
	)

	// Routes: probes stay outside the identity middleware so they never get
	// session cookies.
	h := handler.New(cartSvc, couponSvc, checkoutSvc, lg)
	apiMux := http.NewServeMux()
	h.Register(apiMux)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", handler.ResolveIdentity([]byte(cfg.JWTSecret))(apiMux))

	chain := httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.SessionKey(handler.SessionCookie),
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.Logging(lg),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(chain, "lapmart-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Expire stale carts in the background so abandoned guest carts do not
	// pin their one-active-cart slot forever.
	go func() {
		ticker := time.NewTicker(cfg.Cart.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := cartSvc.ExpireStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
					lg.Error("cart expiry sweep failed", zap.Error(err))
				}
			}
		}
	}()

	healthSvc.SetReady(true)

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
