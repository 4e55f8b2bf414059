// The worker command runs the asynchronous side of the pipeline: the queue
// consumer delivering messages, and the scheduler firing template
// broadcasts, the retry sweep, and retention cleanup.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"msghub/internal/config"
	pgRepo "msghub/internal/infra/adapter/persistence/postgres"
	"msghub/internal/infra/db"
	"msghub/internal/infra/queue"
	"msghub/internal/infra/sender"
	"msghub/internal/observability/logging"
	"msghub/internal/scheduler"
	"msghub/internal/trace"
	"msghub/internal/usecase/dispatch"
	"msghub/pkg/ratelimit"
)

// waitForMigrations probes the schema until the API has applied
// migrations, then returns. Gives up after ten attempts.
func waitForMigrations(logger *slog.Logger, database *sql.DB) {
	const probe = "SELECT 1 FROM message_records LIMIT 1"
	for i := 0; i < 10; i++ {
		if _, err := database.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

func main() {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	database := db.Open()
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	waitForMigrations(logger, database)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()

	messages := pgRepo.NewMessageRepo(database)
	templates := pgRepo.NewTemplateRepo(database)
	tasks := pgRepo.NewTaskRepo(database)
	channels := pgRepo.NewChannelConfigRepo(database)
	contacts := pgRepo.NewContactRepo(database)

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

	sched, err := scheduler.New(scheduler.Config{
		Sender:     svc,
		Messages:   messages,
		Templates:  templates,
		Recipients: contacts,
		Variables:  pgRepo.NewTemplateVariableSource(database),
		Locks:      redisClient,
		Logger:     logger,
		Retention:  cfg.Retention(),
		SweepBatch: cfg.SweepBatch,
		Location:   cfg.Location(),
	})
	if err != nil {
		logger.Error("scheduler setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.RegisterTemplates(ctx); err != nil {
		logger.Error("template registration failed", slog.Any("error", err))
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	consumer := queue.NewConsumer(redisClient, queue.ConsumerConfig{
		Queue:             dispatch.QueueName,
		Prefetch:          cfg.QueuePrefetch,
		VisibilityTimeout: cfg.VisibilityTimeout,
		PollInterval:      cfg.PollInterval,
	}, logger)

	logger.Info("worker started", slog.String("queue", dispatch.QueueName))
	if err := consumer.Run(ctx, svc.HandleDelivery); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// initLogger initializes the structured JSON logger.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}
