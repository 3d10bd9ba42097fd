package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/calbook/libs/auth"
	"github.com/md-rashed-zaman/calbook/libs/config"
	"github.com/md-rashed-zaman/calbook/libs/httpx"
	"github.com/md-rashed-zaman/calbook/libs/kafkax"
	"github.com/md-rashed-zaman/calbook/libs/mongox"
	otelx "github.com/md-rashed-zaman/calbook/libs/otel"
	"github.com/md-rashed-zaman/calbook/libs/runtime"
	"github.com/md-rashed-zaman/calbook/services/analytics-service/internal/consumer"
	"github.com/md-rashed-zaman/calbook/services/analytics-service/internal/events"
	"github.com/md-rashed-zaman/calbook/services/analytics-service/internal/handlers"
	"github.com/md-rashed-zaman/calbook/services/analytics-service/internal/inbox"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.Load(config.String("CONFIG_FILE", "")); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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

	store := events.NewStore(mongoClient.DB)
	inboxRepo := inbox.NewRepository(mongoClient.DB)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("ensure analytics indexes failed", "err", err)
	}
	if err := inboxRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("ensure inbox indexes failed", "err", err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	bookingConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topics:  []string{events.TopicBookingCreated, events.TopicBookingCancelled},
	}, events.Handler(store, logger))
	go bookingConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "mongo", Check: mongox.ReadyCheck(mongoClient)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.NewAnalyticsHandler(store, logger).Register(mux, auth.RequireAuth(jwtSecret))

	metrics := httpx.NewHTTPMetrics(prometheus.DefaultRegisterer, "calbook_analytics")
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.BrowserCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		metrics.Middleware(),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "analytics")
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

	<-ctx.Done()
	shutdownCtx, cancel := runtime.ShutdownContext(10 * time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
