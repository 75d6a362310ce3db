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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"kycvault/internal/content"
	"kycvault/internal/content/memory"
	contentmetrics "kycvault/internal/content/metrics"
	"kycvault/internal/content/pinata"
	"kycvault/internal/kyc/events"
	"kycvault/internal/kyc/handler"
	kycmetrics "kycvault/internal/kyc/metrics"
	"kycvault/internal/kyc/service"
	"kycvault/internal/kyc/store/event"
	"kycvault/internal/kyc/store/permission"
	"kycvault/internal/kyc/store/record"
	"kycvault/internal/ledger"
	"kycvault/internal/platform/config"
	"kycvault/internal/platform/httpserver"
	"kycvault/internal/platform/kafka"
	"kycvault/internal/platform/logger"
	"kycvault/internal/platform/metrics"
	"kycvault/internal/platform/middleware"
	"kycvault/internal/platform/postgres"
	"kycvault/internal/platform/redis"
	"kycvault/pkg/platform/httputil"
)

const requestTimeout = 60 * time.Second

// main wires dependencies, exposes the HTTP router, and owns the server
// lifecycle. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	contents, err := buildContentStore(cfg.Content, reg, log)
	if err != nil {
		return err
	}

	deps, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(kycmetrics.New(reg)),
		service.WithLedger(ledger.NewSimulated(0)),
		service.WithMaxUploadBytes(cfg.MaxUploadBytes),
	}
	if cfg.RequireApprovedAccess {
		opts = append(opts, service.WithApprovalPolicy(service.RequireApprovedAccess))
	}

	group, gctx := errgroup.WithContext(ctx)
	// The dispatcher outlives request handling so events queued during
	// shutdown still reach the broker.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	if deps.publisher != nil {
		dispatcher := events.NewDispatcher(deps.publisher, cfg.Kafka.Buffer, log)
		opts = append(opts, service.WithEventPublisher(dispatcher))
		group.Go(func() error {
			if err := dispatcher.Run(dispatchCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	svc := service.New(deps.records, deps.permissions, deps.events, contents, opts...)

	router := newRouter(log, metrics.New(reg), reg, handler.New(svc, log, cfg.MaxUploadBytes), deps.health)
	srv := httpserver.New(cfg.Addr, otelhttp.NewHandler(router, "kycvault"))

	group.Go(func() error {
		log.Info("starting kycvault", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		stopDispatch()
		return err
	})

	return group.Wait()
}

func newRouter(log *slog.Logger, m *metrics.Metrics, reg *prometheus.Registry, h *handler.Handler, health func(context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.LatencyMiddleware(m))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		h.Register(r)
	})
	return r
}

// buildContentStore returns the pinning-service client behind retry and a
// read cache, or an in-memory store when no credentials are configured.
func buildContentStore(cfg config.ContentConfig, reg prometheus.Registerer, log *slog.Logger) (content.Store, error) {
	m := contentmetrics.New(reg)

	var base content.Store
	if cfg.Enabled() {
		base = pinata.New(pinata.Config{
			APIURL:     cfg.APIURL,
			GatewayURL: cfg.GatewayURL,
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
		})
		log.Info("content store: pinata", "api_url", cfg.APIURL)
	} else {
		base = memory.New()
		log.Warn("content store: in-memory; set PINATA_API_KEY and PINATA_SECRET_API_KEY for durable storage")
	}

	retrying := content.NewRetrying(base,
		content.WithAttemptTimeout(cfg.Timeout),
		content.WithMaxAttempts(cfg.MaxAttempts),
		content.WithRetryLogger(log),
		content.WithRetryMetrics(m),
	)
	return content.NewCached(retrying, cfg.CacheSize, m,
		content.WithCacheMaxBytes(cfg.CacheMaxBytes),
		content.WithCacheMaxEntryBytes(cfg.CacheMaxEntryBytes),
	)
}

type storeDeps struct {
	records     service.RecordStore
	permissions service.PermissionStore
	events      service.EventStore
	publisher   events.Publisher
	health      func(context.Context) error
}

// buildStores selects backends by configuration. The returned cleanup closes
// every opened connection.
func buildStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*storeDeps, func(), error) {
	deps := &storeDeps{
		records:     record.NewInMemory(),
		permissions: permission.NewInMemory(),
		events:      event.NewInMemory(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	var checks []func(context.Context) error

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, cleanup, err
	}
	if redisClient != nil {
		deps.records = record.NewRedis(redisClient.Client)
		closers = append(closers, func() { _ = redisClient.Close() })
		checks = append(checks, redisClient.Health)
		log.Info("record store: redis")
	}

	if cfg.Postgres.URL != "" {
		db, err := openPostgres(ctx, cfg.Postgres)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		deps.permissions = permission.NewPostgres(db)
		deps.events = event.NewPostgres(db)
		closers = append(closers, func() { _ = db.Close() })
		checks = append(checks, db.PingContext)
		log.Info("permission store and access log: postgres")
	}

	kafkaClient, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	if kafkaClient != nil {
		deps.publisher = events.NewKafkaPublisher(kafkaClient, cfg.Kafka.Topic)
		closers = append(closers, kafkaClient.Close)
		checks = append(checks, kafkaClient.Ping)
		log.Info("event sink: kafka", "topic", cfg.Kafka.Topic)
	}

	deps.health = func(ctx context.Context) error {
		var errs []error
		for _, check := range checks {
			errs = append(errs, check(ctx))
		}
		return errors.Join(errs...)
	}
	return deps, cleanup, nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := postgres.Open(ctx, postgres.Config{
		URL:          cfg.URL,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
