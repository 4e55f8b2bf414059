// The api command serves the message dispatch HTTP API: template and
// channel configuration management, send endpoints, message and trace
// queries, and secure link resolution.
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

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"msghub/internal/config"
	hhttp "msghub/internal/handler/http"
	"msghub/internal/handler/http/channelcfg"
	"msghub/internal/handler/http/link"
	hmsg "msghub/internal/handler/http/message"
	"msghub/internal/handler/http/msgtrace"
	"msghub/internal/handler/http/requestid"
	htmpl "msghub/internal/handler/http/template"
	pgRepo "msghub/internal/infra/adapter/persistence/postgres"
	"msghub/internal/infra/db"
	"msghub/internal/infra/queue"
	"msghub/internal/infra/sender"
	"msghub/internal/observability/logging"
	"msghub/internal/trace"
	"msghub/internal/usecase/dispatch"
	"msghub/internal/usecase/securelink"
	"msghub/pkg/ratelimit"
)

func main() {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()

	handler, err := setupServer(cfg, logger, database, redisClient)
	if err != nil {
		logger.Error("server setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	runServer(cfg, logger, handler)
}

// initLogger initializes the structured JSON logger.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and runs migrations.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// setupServer wires the dispatch pipeline and returns the root handler.
func setupServer(cfg *config.App, logger *slog.Logger, database *sql.DB, redisClient *redis.Client) (http.Handler, error) {
	messages := pgRepo.NewMessageRepo(database)
	templates := pgRepo.NewTemplateRepo(database)
	tasks := pgRepo.NewTaskRepo(database)
	channels := pgRepo.NewChannelConfigRepo(database)

	tracer := trace.NewMessageTracer(redisClient)
	producer := queue.NewProducer(redisClient, logger)
	admission := ratelimit.NewQPSLimiter(redisClient, cfg.ChannelQPS, logger)
	dispatcher := sender.NewDispatcher(channels, logger)

	svc := dispatch.NewService(dispatch.Config{
		Repos: dispatch.Repos{
			Messages:  messages,
			Templates: templates,
			Tasks:     tasks,
		},
		Dispatcher: dispatcher,
		Queue:      producer,
		Tracer:     tracer,
		Admission:  admission,
		MsgNo:      dispatch.NewMessageNumberGenerator(redisClient),
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})

	issuer, err := securelink.NewIssuer(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	sendLimiter := ratelimit.NewMemoryLimiter(cfg.SendRateRPS, cfg.SendRateBurst, 5*time.Minute)

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", &hhttp.HealthHandler{DB: database, Redis: redisClient, Version: cfg.Version})
	mux.Handle("GET /readyz", &hhttp.ReadyHandler{DB: database})
	mux.Handle("GET /livez", hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	htmpl.Register(mux, templates)
	channelcfg.Register(mux, channels)
	hmsg.Register(mux, svc, messages, tasks, hhttp.IPRateLimit(sendLimiter))
	msgtrace.Register(mux, tracer)
	link.Register(mux, issuer, cfg.LinkDomain)

	var handler http.Handler = mux
	handler = hhttp.MetricsMiddleware(handler)
	handler = hhttp.LimitRequestBody(cfg.MaxBodyBytes)(handler)
	handler = hhttp.Logging(logger)(handler)
	handler = hhttp.Recover(logger)(handler)
	handler = requestid.Middleware(handler)
	return handler, nil
}

// runServer starts the HTTP server and blocks until shutdown.
func runServer(cfg *config.App, logger *slog.Logger, handler http.Handler) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
