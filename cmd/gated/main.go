// Command gated runs a payment-gated API server: endpoints priced in the
// catalog require a verified x402 payment, prepaid credits are managed
// through the credits API, and requirements are discoverable without paying.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/mark3labs/x402-gate/catalog"
	"github.com/mark3labs/x402-gate/credits"
	"github.com/mark3labs/x402-gate/facilitator"
	gatehttp "github.com/mark3labs/x402-gate/http"
	"github.com/mark3labs/x402-gate/metrics"
	"github.com/mark3labs/x402-gate/nonce"
	"github.com/mark3labs/x402-gate/verifier"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("gated exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newCreditStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	ledger := credits.NewLedger(store, credits.WithLedgerLogger(logger))

	registry, closeRegistry, err := newNonceRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	cat, err := catalog.New(catalog.Config{
		BaseURL:   cfg.BaseURL,
		Networks:  cfg.Networks,
		EVMPayTo:  cfg.EVMPayTo,
		SVMPayTo:  cfg.SVMPayTo,
		Discounts: ledger,
	}, cfg.Prices)
	if err != nil {
		return err
	}

	fac, err := newFacilitator(cfg)
	if err != nil {
		return err
	}

	opts := []verifier.Option{verifier.WithLogger(logger)}
	if cfg.VerifyOnly {
		opts = append(opts, verifier.WithVerifyOnly())
	}
	v := verifier.New(cat, registry, fac, opts...)

	r := chi.NewRouter()
	r.Use(gatehttp.NewMiddleware(&gatehttp.Config{Verifier: v, Logger: logger}))
	r.Method(http.MethodGet, "/x402/requirements", gatehttp.NewDiscoveryHandler(cat, logger))
	r.Mount("/credits", gatehttp.NewCreditsHandler(ledger, logger))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	for _, entry := range cfg.Prices {
		r.Method(entry.Method, entry.Path, gatedHandler())
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      metrics.InstrumentHandler(r),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gated listening",
			"addr", cfg.ListenAddr, "networks", len(cfg.Networks), "endpoints", len(cfg.Prices))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// gatedHandler serves a priced endpoint. By the time it runs the payment has
// been verified and settled; it echoes the payer back as confirmation.
func gatedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payer := ""
		if payment := gatehttp.PaymentFromContext(r.Context()); payment != nil {
			payer = payment.Payer
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"paid","payer":"` + payer + `"}`))
	})
}

func newCreditStore(ctx context.Context, cfg *config, logger *slog.Logger) (credits.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, credits ledger runs in memory")
		return credits.NewMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	store := credits.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("credits ledger backed by postgres")
	return store, func() { db.Close() }, nil
}

func newNonceRegistry(ctx context.Context, cfg *config, logger *slog.Logger) (nonce.Registry, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, nonce registry runs in memory")
		return nonce.NewMemoryRegistry(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("nonce registry backed by redis")
	return nonce.NewRedisRegistry(client), func() { client.Close() }, nil
}

func newFacilitator(cfg *config) (facilitator.Interface, error) {
	client := &facilitator.Client{BaseURL: cfg.FacilitatorURL}

	switch {
	case cfg.FacilitatorJWTKey != "":
		auth, err := facilitator.NewJWTAuth(cfg.FacilitatorJWTKeyID, cfg.FacilitatorJWTKey, cfg.FacilitatorAudience)
		if err != nil {
			return nil, err
		}
		client.AuthorizationProvider = auth.Provider()
	case cfg.FacilitatorAPIKey != "":
		client.Authorization = "Bearer " + cfg.FacilitatorAPIKey
	}

	return metrics.InstrumentFacilitator(client), nil
}
