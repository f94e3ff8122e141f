// Package main is the entry point for the Litmus billing API.
//
// It loads configuration, constructs every client once (Stripe, the user
// store, the Redis event ledger, the SQS publisher, Sentry), builds the HTTP
// server with the core chassis and serves it.
//
// Inside AWS Lambda the chi router is driven by API Gateway HTTP API events
// through core.LambdaAdapter and metrics go to CloudWatch. Everywhere else it
// runs as a standard HTTP server exposing Prometheus metrics on /metrics.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"litmus/internal/api/handlers"
	"litmus/internal/auth"
	"litmus/internal/billing"
	"litmus/internal/config"
	"litmus/internal/core"
	"litmus/internal/db"
	"litmus/internal/external"
	"litmus/internal/idempotency"
	"litmus/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	lambdaMode := isLambdaEnvironment()
	logger.Info("litmus billing API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"lambda", lambdaMode,
	)

	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg, logger, lambdaMode)
	if err != nil {
		return err
	}

	srv, err := buildServer(ctx, cfg, logger, rt)
	if err != nil {
		return err
	}

	if lambdaMode {
		lambda.Start(core.NewLambdaAdapter(srv.Handler()).ProxyWithContext)
		return nil
	}
	return runHTTPServer(srv, cfg, logger)
}

// runtime carries the pieces that differ between Lambda and HTTP mode.
type runtime struct {
	Metrics        core.MetricsCollector
	MetricsHandler http.Handler
	SQS            queue.SQSSender
}

// newRuntime picks the metrics backend for the execution mode and creates
// the AWS clients that are actually needed.
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lambdaMode bool) (runtime, error) {
	var rt runtime

	needAWS := lambdaMode || cfg.AWS.BillingEventQueue != ""
	if !needAWS {
		prom := core.NewPrometheusMetrics()
		rt.Metrics = prom
		rt.MetricsHandler = prom.Handler()
		return rt, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return rt, fmt.Errorf("loading AWS config: %w", err)
	}
	if lambdaMode {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		rt.Metrics = core.NewCloudWatchMetrics(cw, cfg.Observability.MetricNamespace, logger)
	} else {
		prom := core.NewPrometheusMetrics()
		rt.Metrics = prom
		rt.MetricsHandler = prom.Handler()
	}

	if cfg.AWS.BillingEventQueue != "" {
		rt.SQS = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
	}
	return rt, nil
}

// buildServer wires every dependency into a core.Server and mounts its
// routes. Optional backends (user store, ledger, queue, Sentry) are skipped
// when not configured.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, rt runtime) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = rt.Metrics
	srv.MetricsHandler = rt.MetricsHandler

	reporter, err := core.InitSentry(core.SentryOptions{
		DSN:              cfg.Observability.SentryDSN.Unmask(),
		Environment:      cfg.Environment,
		Release:          cfg.Build.Version,
		TracesSampleRate: cfg.Observability.SentrySampleRate,
	})
	if err != nil {
		logger.Warn("sentry disabled", "error", err)
	} else {
		srv.Reporter = reporter
	}

	if cfg.Supabase.JWTSecret.IsSet() {
		srv.Tokens = auth.NewSupabaseTokenVerifier(cfg.Supabase.JWTSecret.Unmask())
	}

	validator := core.NewValidator(logger)
	catalog := billing.DefaultCatalog()

	var stripeSvc external.BillingService
	if cfg.Stripe.Configured() {
		stripeSvc = external.NewStripeClient(
			&http.Client{Timeout: cfg.Stripe.Timeout},
			external.StripeClientConfig{
				SecretKey: cfg.Stripe.SecretKey.Unmask(),
				BaseURL:   cfg.Stripe.APIBase,
				Logger:    logger,
			},
		)
	} else if !cfg.Stripe.MockEnabled() {
		logger.Warn("STRIPE_SECRET_KEY not set; checkout, portal and status will report a configuration error")
	}

	store, err := openUserStore(ctx, cfg, logger, srv)
	if err != nil {
		return nil, err
	}

	deps := handlers.StripeWebhookDeps{
		Verifier: external.NewStripeVerifier(cfg.Stripe.WebhookTolerance),
		Store:    store,
		Catalog:  catalog,
		Reporter: srv.Reporter,
		Secret:   cfg.Stripe.WebhookSecret.Unmask(),
	}
	if srv.Metrics != nil {
		deps.Metrics = srv.Metrics
	}
	if ledger := openLedger(ctx, cfg, logger, srv); ledger != nil {
		deps.Ledger = ledger
	}
	if rt.SQS != nil {
		deps.Publisher = queue.NewSQSPublisher(rt.SQS, cfg.AWS.BillingEventQueue, logger)
	}

	billingHandler := handlers.NewBillingHandler(stripeSvc, catalog, cfg, validator, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(deps, logger)
	entitlementHandler := handlers.NewEntitlementHandler(store, catalog, validator, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars,
		billingHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		entitlementHandler.RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}

// openUserStore prefers a direct Postgres connection and falls back to the
// Supabase PostgREST gateway. It returns nil when neither is configured.
func openUserStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, srv *core.Server) (external.UserStore, error) {
	switch {
	case cfg.Database.URL.IsSet():
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := db.NewPool(connectCtx, db.PoolConfig{
			URL:               cfg.Database.URL.Unmask(),
			MaxConns:          cfg.Database.MaxConns,
			MinConns:          cfg.Database.MinConns,
			MaxConnLifetime:   cfg.Database.MaxConnLifetime,
			HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		srv.OnShutdown("postgres", func() error {
			pool.Close()
			return nil
		})
		srv.HealthChecks = append(srv.HealthChecks, core.NewHealthCheck("database", pool.Ping))
		logger.Info("user store: postgres")
		return db.NewUserSubscriptionRepo(pool, logger), nil

	case cfg.Supabase.URL != "" && cfg.Supabase.ServiceRoleKey.IsSet():
		store := external.NewSupabaseUserStore(
			&http.Client{Timeout: cfg.Supabase.Timeout},
			external.SupabaseConfig{
				URL:            cfg.Supabase.URL,
				ServiceRoleKey: cfg.Supabase.ServiceRoleKey.Unmask(),
				Table:          cfg.Supabase.UsersTable,
				Logger:         logger,
			},
		)
		srv.HealthChecks = append(srv.HealthChecks, core.NewHealthCheck("supabase", store.Ping))
		logger.Info("user store: supabase")
		return store, nil

	default:
		logger.Warn("no user store configured; webhook events will not be persisted")
		return nil, nil
	}
}

// openLedger connects the webhook dedupe ledger. A Redis that cannot be
// reached at startup disables dedupe instead of failing the process.
func openLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger, srv *core.Server) *idempotency.RedisEventLedger {
	if !cfg.Redis.URL.IsSet() {
		return nil
	}
	ledger, err := idempotency.NewRedisEventLedger(ctx, cfg.Redis.URL.Unmask(), cfg.Redis.LedgerTTL, logger)
	if err != nil {
		logger.Warn("webhook event ledger disabled", "error", err)
		return nil
	}
	srv.OnShutdown("redis", ledger.Close)
	srv.HealthChecks = append(srv.HealthChecks, core.NewHealthCheck("redis", ledger.Ping))
	return ledger
}

// secretProvider returns the SSM provider outside the local environment.
func secretProvider() config.SecretProvider {
	env := os.Getenv("APP_ENV")
	if env == "" || env == "local" {
		return nil
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return config.NewSSMProvider(region)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Closes the pool and the ledger, then flushes Sentry.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
