// Package config loads application configuration for the API server and
// the worker from environment variables.
package config

import (
	"fmt"
	"time"

	"msghub/pkg/config"
)

// App holds the runtime configuration shared by the API server and the
// worker. The database connection string is read separately by the db
// package.
type App struct {
	// HTTP server
	HTTPAddr        string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration

	// Redis (queue, rate limiters, locks, tracer)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Secure links
	JWTSecret  string
	LinkDomain string

	// Dispatch
	MaxRetries    int
	ChannelQPS    int
	SendRateRPS   float64
	SendRateBurst int

	// Queue consumer
	QueuePrefetch     int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration

	// Scheduler
	Timezone      string
	RetentionDays int
	SweepBatch    int

	Version string
}

// Load reads the configuration from the environment. It returns an error
// when a mandatory variable is missing.
func Load() (*App, error) {
	jwtSecret, err := config.RequireEnvString("JWT_SECRET")
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	app := &App{
		HTTPAddr:        config.GetEnvString("HTTP_ADDR", ":8080"),
		MaxBodyBytes:    int64(config.GetEnvInt("MAX_BODY_BYTES", 1<<20)),
		ShutdownTimeout: config.GetEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		RedisAddr:     config.GetEnvString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: config.GetEnvString("REDIS_PASSWORD", ""),
		RedisDB:       config.GetEnvInt("REDIS_DB", 0),

		JWTSecret:  jwtSecret,
		LinkDomain: config.GetEnvString("LINK_DOMAIN", "http://localhost:8080"),

		MaxRetries:    config.GetEnvInt("MESSAGE_MAX_RETRIES", 3),
		ChannelQPS:    config.GetEnvInt("CHANNEL_MAX_QPS", 10),
		SendRateRPS:   float64(config.GetEnvInt("SEND_RATE_RPS", 50)),
		SendRateBurst: config.GetEnvInt("SEND_RATE_BURST", 100),

		QueuePrefetch:     config.GetEnvInt("QUEUE_PREFETCH", 5),
		VisibilityTimeout: config.GetEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
		PollInterval:      config.GetEnvDuration("QUEUE_POLL_INTERVAL", 200*time.Millisecond),

		Timezone:      config.GetEnvString("SCHEDULER_TIMEZONE", "UTC"),
		RetentionDays: config.GetEnvInt("MESSAGE_RETENTION_DAYS", 30),
		SweepBatch:    config.GetEnvInt("SWEEP_BATCH_SIZE", 100),

		Version: config.GetEnvString("APP_VERSION", "dev"),
	}

	if app.RetentionDays < 1 {
		return nil, fmt.Errorf("config: MESSAGE_RETENTION_DAYS must be positive")
	}
	return app, nil
}

// Retention returns the retention window as a duration.
func (a *App) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

// Location resolves the scheduler timezone, falling back to UTC on a bad
// name.
func (a *App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
