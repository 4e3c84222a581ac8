package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/slotengine/libs/auth"
	"github.com/md-rashed-zaman/slotengine/libs/config"
	"github.com/md-rashed-zaman/slotengine/libs/db"
	"github.com/md-rashed-zaman/slotengine/libs/httpx"
	"github.com/md-rashed-zaman/slotengine/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotengine/libs/otel"
	"github.com/md-rashed-zaman/slotengine/libs/runtime"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/service"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/storage"
)

func main() {
	_ = config.LoadDotEnv(".env")
	serviceName := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(serviceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer rdb.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// A nil interface, not a nil *cache.ResultCache, disables caching.
	var resultCache service.ResultCache
	if rdb != nil {
		ttl, err := config.Duration("AVAILABILITY_CACHE_TTL", 5*time.Minute)
		if err != nil {
			panic(err)
		}
		resultCache = cache.New(rdb, ttl, config.String("AVAILABILITY_CACHE_PREFIX", "avail"))
		logger.Info("availability cache enabled", "ttl", ttl.String())
	}

	defaultDuration, err := config.Int("DEFAULT_DURATION_MINUTES", 30)
	if err != nil {
		panic(err)
	}
	schedules := storage.NewScheduleRepository(pool)
	occupancy := storage.NewOccupancyRepository(pool)
	svc := service.New(schedules, occupancy, resultCache, m, logger, service.Config{DefaultDurationMinutes: defaultDuration})

	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		c := consumer.New(logger, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", serviceName),
			Topics:  config.List("KAFKA_INVALIDATION_TOPICS", consumer.DefaultTopics),
		}, consumer.InvalidationHandler(svc, logger))
		go c.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		logger.Info("cache invalidation consumer started", "brokers", brokers)
	}

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksTTL, err := config.Duration("JWKS_CACHE_SECONDS", 5*time.Minute)
		if err != nil {
			panic(err)
		}
		verifier.JWKS = auth.NewJWKSClient(jwksURL, jwksTTL)
	}
	if !verifier.Enabled() {
		logger.Warn("no JWT_SECRET or JWKS_URL configured; schedule editing is disabled")
	}

	public := handlers.NewPublic(svc, logger)
	editor := handlers.NewSchedules(schedules, occupancy, svc, logger)
	owner := func(h http.HandlerFunc) http.Handler {
		return handlers.RequireOwner(verifier, logger, h)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/v1/public/slots", public.Slots)
	mux.HandleFunc("/api/v1/public/slots/check", public.Check)
	mux.HandleFunc("/api/v1/public/availability", public.Availability)
	mux.HandleFunc("/api/v1/public/availability/services", public.ServicesAt)
	mux.HandleFunc("/api/v1/public/day", public.Day)
	mux.Handle("/api/v1/schedules/working-hours", owner(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			editor.GetWorkingHours(w, r)
			return
		}
		if r.Method == http.MethodPut {
			editor.PutWorkingHours(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))
	mux.Handle("/api/v1/schedules/service-hours", owner(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			editor.GetServiceHours(w, r)
			return
		}
		if r.Method == http.MethodPut {
			editor.PutServiceHours(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))
	mux.Handle("/api/v1/schedules/blocked-periods", owner(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			editor.CreateBlockedPeriod(w, r)
			return
		}
		if r.Method == http.MethodGet {
			editor.ListBlockedPeriods(w, r)
			return
		}
		if r.Method == http.MethodDelete {
			editor.DeleteBlockedPeriod(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))

	requestTimeout, err := config.Duration("REQUEST_TIMEOUT_SECONDS", 10*time.Second)
	if err != nil {
		panic(err)
	}
	limitPerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		panic(err)
	}
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", nil),
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		rateLimitMW,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(requestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if err := startGrpcServer(ctx, logger, svc); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
