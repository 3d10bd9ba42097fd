package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/md-rashed-zaman/calbook/libs/auth"
	"github.com/md-rashed-zaman/calbook/libs/config"
	"github.com/md-rashed-zaman/calbook/libs/db"
	"github.com/md-rashed-zaman/calbook/libs/grpcx"
	"github.com/md-rashed-zaman/calbook/libs/httpx"
	"github.com/md-rashed-zaman/calbook/libs/kafkax"
	"github.com/md-rashed-zaman/calbook/libs/mongox"
	otelx "github.com/md-rashed-zaman/calbook/libs/otel"
	"github.com/md-rashed-zaman/calbook/libs/runtime"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/bookings"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/credentials"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/gcal"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/notify"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/sellers"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := config.Load(config.String("CONFIG_FILE", "")); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	// Mongo holds users, preferences and OAuth accounts.
	mongoURI, err := config.RequiredString("MONGODB_URI")
	if err != nil {
		panic(err)
	}
	mongoClient, err := mongox.Open(ctx, mongoURI, config.String("MONGODB_DATABASE", "calbook"))
	if err != nil {
		logger.Error("mongo connection failed", "err", err)
		panic(err)
	}
	defer func() { _ = mongoClient.Close(context.Background()) }()

	directory := sellers.NewStore(mongoClient.DB)
	if err := directory.EnsureIndexes(ctx); err != nil {
		logger.Warn("ensure user indexes failed", "err", err)
	}

	// Postgres holds bookings and the outbox.
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("DB_MIGRATE", true) {
		applied, err := db.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "files", applied)
		}
	}

	sealer, err := credentials.NewSealer(config.String("ENCRYPTION_KEY", ""))
	if err != nil {
		panic(err)
	}
	if sealer == nil {
		logger.Warn("ENCRYPTION_KEY not set; refresh tokens are read as plaintext")
	}
	calendarTimeout, err := config.Duration("CALENDAR_TIMEOUT", 10*time.Second)
	if err != nil {
		panic(err)
	}
	calendar := gcal.NewClient(gcal.Config{
		ClientID:     config.String("GOOGLE_CLIENT_ID", ""),
		ClientSecret: config.String("GOOGLE_CLIENT_SECRET", ""),
		RedirectURL:  config.String("GOOGLE_REDIRECT_URL", ""),
		Timeout:      calendarTimeout,
	}, credentials.NewStore(mongoClient.DB, sealer))

	redisAddr := config.String("REDIS_ADDR", "redis:6379")
	redisPassword := config.String("REDIS_PASSWORD", "")
	redisDB, err := config.Int("REDIS_DB", 0)
	if err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword, DB: redisDB})
	defer func() { _ = rdb.Close() }()

	tasks := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword, DB: redisDB})
	defer func() { _ = tasks.Close() }()

	outboxRepo := outbox.NewRepository()
	bookingRepo := bookings.NewRepository(pool, outboxRepo)
	slots := availability.NewService(directory, calendar, logger)
	bookingSvc := bookings.NewService(bookings.Deps{
		Store:     bookingRepo,
		Slots:     slots,
		Calendar:  calendar,
		Directory: directory,
		Notifier:  notify.NewEnqueuer(tasks, logger),
		Logger:    logger,
	})

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	if publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	}); publisher != nil {
		go publisher.Run(ctx)
	}

	checks := []runtime.ReadyCheck{
		{Name: "mongo", Check: mongox.ReadyCheck(mongoClient)},
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}
	if kafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)

	requireAuth := auth.RequireAuth(jwtSecret)
	handlers.NewSellerHandler(directory, slots, logger).Register(mux, requireAuth)
	handlers.NewBookingHandler(bookingSvc, directory, logger).Register(mux, requireAuth)

	httpHandler, err := buildHTTPHandler(mux, rdb, logger)
	if err != nil {
		panic(err)
	}
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	grpcSrv, health := grpcx.NewServer(logger)
	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.Shutdown()
	shutdownCtx, cancel := runtime.ShutdownContext(10 * time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
}

// buildHTTPHandler wraps the mux with the middleware stack. Metrics sit
// innermost so route patterns are resolved.
func buildHTTPHandler(mux *http.ServeMux, rdb *redis.Client, logger *slog.Logger) (http.Handler, error) {
	bodyLimit, err := config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	timeout, err := config.Duration("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return nil, err
	}

	var limit httpx.Middleware
	if config.String("RATE_LIMIT_BACKEND", "redis") == "memory" {
		limit = httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
	} else {
		limit = httpx.NewRedisLimiter(rdb, httpx.RedisLimiterOptions{
			Limit:    perMinute,
			Window:   time.Minute,
			Prefix:   "calbook:ratelimit",
			FailOpen: true,
		}, logger).Middleware()
	}

	metrics := httpx.NewHTTPMetrics(prometheus.DefaultRegisterer, "calbook")
	return httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.BrowserCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		limit,
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(timeout),
		metrics.Middleware(),
	), nil
}
