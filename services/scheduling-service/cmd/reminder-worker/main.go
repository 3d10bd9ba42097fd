package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/md-rashed-zaman/calbook/libs/config"
	"github.com/md-rashed-zaman/calbook/libs/db"
	"github.com/md-rashed-zaman/calbook/libs/mongox"
	otelx "github.com/md-rashed-zaman/calbook/libs/otel"
	"github.com/md-rashed-zaman/calbook/libs/runtime"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/bookings"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/notify"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/sellers"
)

func main() {
	if err := config.Load(config.String("CONFIG_FILE", "")); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "reminder-worker")
	port, err := config.Port("PORT", "8081")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 4})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var sender notify.Sender
	if host := config.String("SMTP_HOST", ""); host != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     host,
			Port:     config.String("SMTP_PORT", "1025"),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
			From:     config.String("EMAIL_FROM", ""),
		})
	} else {
		logger.Warn("SMTP_HOST not set; emails are logged, not sent")
		sender = notify.NewLogSender(logger)
	}

	worker := notify.NewWorker(
		bookings.NewRepository(pool, outbox.NewRepository()),
		sellers.NewStore(mongoClient.DB),
		sender,
		logger,
	)

	redisDB, err := config.Int("REDIS_DB", 0)
	if err != nil {
		panic(err)
	}
	concurrency, err := config.Int("WORKER_CONCURRENCY", 10)
	if err != nil {
		panic(err)
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     config.String("REDIS_ADDR", "redis:6379"),
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       redisDB,
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      notify.Queues(),
		Logger:      notify.NewAsynqLogger(logger),
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("email task failed", "type", task.Type(), "err", err)
		}),
	})
	mux := asynq.NewServeMux()
	worker.Register(mux)

	if err := srv.Start(mux); err != nil {
		logger.Error("asynq server start failed", "err", err)
		panic(err)
	}
	logger.Info("reminder worker started", "concurrency", concurrency)

	health := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "mongo", Check: mongox.ReadyCheck(mongoClient)},
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: func(context.Context) error { return srv.Ping() }},
	)
	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           health,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.Shutdown()
	logger.Info("reminder worker stopped")
}
