// Package scheduler runs the time-driven side of the pipeline: template
// broadcasts at their configured times, the retry sweep, promotion of due
// scheduled messages, and record retention. Every job takes a distributed
// lock first so running multiple workers never double-fires a job.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"msghub/internal/domain/entity"
	"msghub/internal/usecase/dispatch"
	"msghub/pkg/redlock"
)

// Sender is the slice of the dispatch service the scheduler drives.
type Sender interface {
	SendFromTemplate(ctx context.Context, templateCode string, recipients []dispatch.BatchRecipient, mode entity.SendMode, scheduledAt *time.Time) (*dispatch.BatchResult, error)
	RetryMessage(ctx context.Context, msg *entity.MessageRecord) error
	Enqueue(ctx context.Context, msg *entity.MessageRecord, priority int) error
}

// MessageSweeps is the slice of the message repository the sweeps use.
type MessageSweeps interface {
	ListRetryable(ctx context.Context, limit int) ([]*entity.MessageRecord, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*entity.MessageRecord, error)
	Update(ctx context.Context, msg *entity.MessageRecord) error
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TemplateSchedules loads and maintains scheduled templates.
type TemplateSchedules interface {
	ListScheduled(ctx context.Context) ([]*entity.MessageTemplate, error)
	Update(ctx context.Context, tmpl *entity.MessageTemplate) error
}

// RecipientSource resolves who a template broadcast goes to.
type RecipientSource interface {
	ListVerifiedByChannel(ctx context.Context, channel entity.ChannelType) ([]*entity.CustomerContact, error)
}

// VariableSource resolves per-recipient template variables at fire time. A
// nil source renders templates with no variables.
type VariableSource interface {
	Variables(ctx context.Context, tmpl *entity.MessageTemplate, contact *entity.CustomerContact) (map[string]any, error)
}

// Config wires a Scheduler.
type Config struct {
	Sender     Sender
	Messages   MessageSweeps
	Templates  TemplateSchedules
	Recipients RecipientSource
	Variables  VariableSource
	Locks      *redis.Client
	Logger     *slog.Logger

	// Retention is how long terminal records are kept. Default 30 days.
	Retention time.Duration

	// SweepBatch bounds how many records one sweep run touches. Default 100.
	SweepBatch int

	// Timezone for template fire times. Default UTC.
	Location *time.Location
}

// Scheduler owns the cron instance and its registered jobs.
type Scheduler struct {
	cfg  Config
	cron *cron.Cron
	now  func() time.Time
}

// New creates a Scheduler with the standing sweeps registered. Template
// jobs are added by RegisterTemplates.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Scheduler{
		cfg:  cfg,
		cron: cron.New(cron.WithLocation(cfg.Location)),
		now:  time.Now,
	}

	jobs := []struct {
		spec string
		name string
		run  func(ctx context.Context)
	}{
		{"* * * * *", "scheduled_sweep", s.RunScheduledSweep},
		{"*/5 * * * *", "retry_sweep", s.RunRetrySweep},
		{"0 3 * * *", "retention_sweep", s.RunRetentionSweep},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			job.run(ctx)
		}); err != nil {
			return nil, fmt.Errorf("scheduler: register %s: %w", job.name, err)
		}
	}
	return s, nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.cfg.Logger.Info("scheduler started")
}

// Stop halts job firing and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cfg.Logger.Info("scheduler stopped")
}

// RegisterTemplates loads scheduled templates and adds a cron entry for
// each. Call it at startup and whenever templates change.
func (s *Scheduler) RegisterTemplates(ctx context.Context) error {
	templates, err := s.cfg.Templates.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: load scheduled templates: %w", err)
	}
	for _, tmpl := range templates {
		spec, err := CronSpec(tmpl)
		if err != nil {
			s.cfg.Logger.Warn("skipping template with bad schedule",
				slog.String("template_code", tmpl.Code),
				slog.Any("error", err),
			)
			continue
		}
		tmpl := tmpl
		if _, err := s.cron.AddFunc(spec, func() {
			fireCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			s.FireTemplate(fireCtx, tmpl)
		}); err != nil {
			return fmt.Errorf("scheduler: register template %s: %w", tmpl.Code, err)
		}
		s.cfg.Logger.Info("template schedule registered",
			slog.String("template_code", tmpl.Code),
			slog.String("cron", spec),
		)
	}
	return nil
}

// CronSpec converts a template's fire time and repeat type to a cron
// expression. Once-only templates fire on the daily spec and disable
// themselves after the first run.
func CronSpec(tmpl *entity.MessageTemplate) (string, error) {
	hour, minute, err := parseScheduleTime(tmpl.ScheduleTime)
	if err != nil {
		return "", err
	}
	switch tmpl.RepeatType {
	case entity.RepeatDaily, entity.RepeatOnce:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case entity.RepeatWeekly:
		return fmt.Sprintf("%d %d * * 1", minute, hour), nil
	case entity.RepeatMonthly:
		return fmt.Sprintf("%d %d 1 * *", minute, hour), nil
	default:
		return "", fmt.Errorf("unknown repeat type %q", tmpl.RepeatType)
	}
}

func parseScheduleTime(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule time %q is not HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("schedule time %q has bad hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule time %q has bad minute", s)
	}
	return hour, minute, nil
}

// withLock runs fn under the named distributed lock, skipping silently when
// another worker holds it.
func (s *Scheduler) withLock(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if s.cfg.Locks == nil {
		if err := fn(ctx); err != nil {
			s.cfg.Logger.Error("job failed", slog.String("job", name), slog.Any("error", err))
		}
		return
	}
	acquired, err := redlock.WithLock(ctx, s.cfg.Locks, name, s.cfg.Logger, fn)
	if err != nil {
		s.cfg.Logger.Error("job failed", slog.String("job", name), slog.Any("error", err))
		return
	}
	if !acquired {
		s.cfg.Logger.Debug("job lock held elsewhere, skipping", slog.String("job", name))
	}
}
