package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/api"
	"github.com/Mindburn-Labs/notary/pkg/auth"
	"github.com/Mindburn-Labs/notary/pkg/config"
	"github.com/Mindburn-Labs/notary/pkg/ledger"
	"github.com/Mindburn-Labs/notary/pkg/notary"
	"github.com/Mindburn-Labs/notary/pkg/observability"
)

// app is a fully wired notary service.
type app struct {
	handler     http.Handler
	ledger      ledger.Runtime
	service     *notary.Service
	telemetry   *observability.Provider
	idempotency *api.PostgresIdempotencyStore // nil unless the ledger is postgres
}

func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.telemetry.Shutdown(ctx), a.ledger.Close())
}

// openLedger connects the runtime selected by cfg.Kind.
func openLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Runtime, error) {
	switch cfg.Kind {
	case config.LedgerMemory:
		return ledger.NewMemory(), nil
	case config.LedgerSQLite:
		return ledger.OpenSQLite(ctx, cfg.SQLitePath)
	case config.LedgerPostgres:
		return ledger.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.LedgerRedis:
		return ledger.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown ledger %q", cfg.Kind)
	}
}

func telemetryConfig(cfg *config.Config) *observability.Config {
	tc := observability.DefaultConfig()
	tc.ServiceVersion = version
	tc.Enabled = cfg.Telemetry.Enabled
	tc.OTLPEndpoint = cfg.Telemetry.Endpoint
	tc.Insecure = cfg.Telemetry.Insecure
	tc.CAFile = cfg.Telemetry.CAFile
	tc.SampleRate = cfg.Telemetry.SampleRate
	tc.Environment = cfg.Telemetry.Environment
	return tc
}

// newApp wires config → ledger → service → HTTP handler. The context bounds
// background work such as rate limiter sweeps.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	svcCfg, err := cfg.Service()
	if err != nil {
		return nil, err
	}

	rt, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.Ledger.Kind, err)
	}
	a := &app{ledger: rt}

	// A memory ledger starts empty on every boot, so genesis is safe to
	// replay. Persistent ledgers are seeded once with `notary genesis`.
	if cfg.GenesisFile != "" && cfg.Ledger.Kind == config.LedgerMemory {
		if err := applyGenesis(ctx, cfg.GenesisFile, rt); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	a.telemetry, err = observability.New(ctx, telemetryConfig(cfg))
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	a.service, err = notary.New(svcCfg, rt,
		notary.WithLogger(logger.With("component", "notary")),
		notary.WithTracker(a.telemetry),
	)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	h, err := api.NewHandler(a.service, rt, logger.With("component", "api"))
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	var idem api.IdempotencyStore = api.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	if sqlRT, ok := rt.(*ledger.SQL); ok && cfg.Ledger.Kind == config.LedgerPostgres {
		pg := api.NewPostgresIdempotencyStore(sqlRT.DB(), cfg.IdempotencyTTL)
		if err := pg.Init(ctx); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		a.idempotency = pg
		idem = pg
	}

	admin := auth.RequireRole(auth.NewJWTValidator(cfg.AdminJWTSecret), auth.RoleAdmin)
	var handler http.Handler = api.IdempotencyMiddleware(idem)(h.Routes(admin))
	if cfg.RateLimitRPS > 0 {
		handler = api.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware(handler)
	}
	handler = api.AccessLog(logger.With("component", "http"))(handler)
	handler = a.telemetry.HTTPMiddleware(handler)
	a.handler = auth.RequestIDMiddleware(handler)
	return a, nil
}

func applyGenesis(ctx context.Context, path string, c ledger.Crediter) error {
	g, err := ledger.LoadGenesis(path)
	if err != nil {
		return err
	}
	return g.Apply(ctx, c)
}

func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	addr := cmd.String("addr", "", "Listen address (overrides NOTARY_ADDR)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	logger := cfg.NewLogger(stderr)
	slog.SetDefault(logger)
	progress := log.New(stderr, "[notary] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	progress.Printf("ledger: %s ready", cfg.Ledger.Kind)
	progress.Printf("authority: %s", a.service.Config().Authority)

	if a.idempotency != nil {
		go sweepIdempotency(ctx, a.idempotency, logger)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		progress.Printf("listening on %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	code := 0
	select {
	case <-ctx.Done():
		progress.Printf("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			code = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		code = 1
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("close failed", "error", err)
	}
	_, _ = fmt.Fprintln(stdout, "notary stopped")
	return code
}

func sweepIdempotency(ctx context.Context, store *api.PostgresIdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx); err != nil {
				logger.Warn("idempotency cleanup failed", "error", err)
			}
		}
	}
}
