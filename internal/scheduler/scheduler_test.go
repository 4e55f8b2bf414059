package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"msghub/internal/domain/entity"
	"msghub/internal/scheduler"
	"msghub/internal/usecase/dispatch"
)

type enqueueCall struct {
	messageNo string
	priority  int
}

type batchCall struct {
	templateCode string
	recipients   []dispatch.BatchRecipient
	mode         entity.SendMode
}

type fakeSender struct {
	retried  []string
	retryErr map[string]error
	enqueued []enqueueCall
	batches  []batchCall
	batchErr error
}

func (f *fakeSender) SendFromTemplate(ctx context.Context, templateCode string, recipients []dispatch.BatchRecipient, mode entity.SendMode, scheduledAt *time.Time) (*dispatch.BatchResult, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	f.batches = append(f.batches, batchCall{templateCode: templateCode, recipients: recipients, mode: mode})
	return &dispatch.BatchResult{
		TaskID:        "task-1",
		TotalCount:    len(recipients),
		AcceptedCount: len(recipients),
	}, nil
}

func (f *fakeSender) RetryMessage(ctx context.Context, msg *entity.MessageRecord) error {
	if err := f.retryErr[msg.MessageNo]; err != nil {
		return err
	}
	f.retried = append(f.retried, msg.MessageNo)
	return nil
}

func (f *fakeSender) Enqueue(ctx context.Context, msg *entity.MessageRecord, priority int) error {
	f.enqueued = append(f.enqueued, enqueueCall{messageNo: msg.MessageNo, priority: priority})
	return nil
}

type fakeMessages struct {
	retryable []*entity.MessageRecord
	due       []*entity.MessageRecord
	updated   map[string]*entity.MessageRecord
	updateErr map[string]error
	deletedAt time.Time
	deleted   int64
}

func (f *fakeMessages) ListRetryable(ctx context.Context, limit int) ([]*entity.MessageRecord, error) {
	return f.retryable, nil
}

func (f *fakeMessages) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*entity.MessageRecord, error) {
	return f.due, nil
}

func (f *fakeMessages) Update(ctx context.Context, msg *entity.MessageRecord) error {
	if err := f.updateErr[msg.MessageNo]; err != nil {
		return err
	}
	if f.updated == nil {
		f.updated = make(map[string]*entity.MessageRecord)
	}
	f.updated[msg.MessageNo] = msg
	return nil
}

func (f *fakeMessages) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.deletedAt = cutoff
	return f.deleted, nil
}

type fakeTemplates struct {
	scheduled []*entity.MessageTemplate
	updated   []*entity.MessageTemplate
}

func (f *fakeTemplates) ListScheduled(ctx context.Context) ([]*entity.MessageTemplate, error) {
	return f.scheduled, nil
}

func (f *fakeTemplates) Update(ctx context.Context, tmpl *entity.MessageTemplate) error {
	f.updated = append(f.updated, tmpl)
	return nil
}

type fakeContacts struct {
	contacts []*entity.CustomerContact
}

func (f *fakeContacts) ListVerifiedByChannel(ctx context.Context, channel entity.ChannelType) ([]*entity.CustomerContact, error) {
	return f.contacts, nil
}

type staticVariables struct {
	vars map[string]any
	err  error
}

func (s staticVariables) Variables(ctx context.Context, tmpl *entity.MessageTemplate, contact *entity.CustomerContact) (map[string]any, error) {
	return s.vars, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newScheduler(t *testing.T, cfg scheduler.Config) *scheduler.Scheduler {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	s, err := scheduler.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestCronSpec(t *testing.T) {
	cases := []struct {
		name    string
		time    string
		repeat  entity.RepeatType
		want    string
		wantErr bool
	}{
		{name: "daily", time: "09:30", repeat: entity.RepeatDaily, want: "30 9 * * *"},
		{name: "weekly", time: "08:00", repeat: entity.RepeatWeekly, want: "0 8 * * 1"},
		{name: "monthly", time: "23:15", repeat: entity.RepeatMonthly, want: "15 23 1 * *"},
		{name: "once runs on the daily spec", time: "12:00", repeat: entity.RepeatOnce, want: "0 12 * * *"},
		{name: "missing minute", time: "12", repeat: entity.RepeatDaily, wantErr: true},
		{name: "hour out of range", time: "24:00", repeat: entity.RepeatDaily, wantErr: true},
		{name: "unknown repeat", time: "12:00", repeat: entity.RepeatType("hourly"), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := scheduler.CronSpec(&entity.MessageTemplate{
				ScheduleTime: tc.time,
				RepeatType:   tc.repeat,
			})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("CronSpec(%q, %q): want error, got %q", tc.time, tc.repeat, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CronSpec: %v", err)
			}
			if got != tc.want {
				t.Errorf("CronSpec = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRetrySweepRetriesEligibleRecords(t *testing.T) {
	sender := &fakeSender{retryErr: map[string]error{"MSG2": errors.New("exhausted")}}
	messages := &fakeMessages{
		retryable: []*entity.MessageRecord{
			{MessageNo: "MSG1", Status: entity.StatusFailed, RetryCount: 1, MaxRetries: 3},
			{MessageNo: "MSG2", Status: entity.StatusFailed, RetryCount: 3, MaxRetries: 3},
			{MessageNo: "MSG3", Status: entity.StatusFailed, RetryCount: 0, MaxRetries: 3},
		},
	}
	s := newScheduler(t, scheduler.Config{Sender: sender, Messages: messages})

	s.RunRetrySweep(context.Background())

	want := []string{"MSG1", "MSG3"}
	if len(sender.retried) != len(want) {
		t.Fatalf("retried %v, want %v", sender.retried, want)
	}
	for i, no := range want {
		if sender.retried[i] != no {
			t.Errorf("retried[%d] = %q, want %q", i, sender.retried[i], no)
		}
	}
}

func TestScheduledSweepEnqueuesDueMessages(t *testing.T) {
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	messages := &fakeMessages{
		due: []*entity.MessageRecord{
			{MessageNo: "MSG1", Status: entity.StatusPending, SendMode: entity.ModeScheduled, Priority: 7, ScheduledAt: &at},
		},
	}
	s := newScheduler(t, scheduler.Config{Sender: sender, Messages: messages})

	s.RunScheduledSweep(context.Background())

	if len(sender.enqueued) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(sender.enqueued))
	}
	if sender.enqueued[0].priority != 7 {
		t.Errorf("priority = %d, want 7", sender.enqueued[0].priority)
	}
	updated := messages.updated["MSG1"]
	if updated == nil {
		t.Fatal("message not updated before enqueue")
	}
	if updated.SendMode != entity.ModeRealtime || updated.ScheduledAt != nil {
		t.Errorf("message not flipped to realtime: mode=%q scheduled_at=%v", updated.SendMode, updated.ScheduledAt)
	}
}

func TestScheduledSweepSkipsEnqueueWhenUpdateFails(t *testing.T) {
	sender := &fakeSender{}
	messages := &fakeMessages{
		due: []*entity.MessageRecord{
			{MessageNo: "MSG1", Status: entity.StatusPending, SendMode: entity.ModeScheduled},
		},
		updateErr: map[string]error{"MSG1": errors.New("db down")},
	}
	s := newScheduler(t, scheduler.Config{Sender: sender, Messages: messages})

	s.RunScheduledSweep(context.Background())

	if len(sender.enqueued) != 0 {
		t.Fatalf("enqueued %d messages, want 0", len(sender.enqueued))
	}
}

func TestRetentionSweepUsesRetentionWindow(t *testing.T) {
	messages := &fakeMessages{deleted: 7}
	s := newScheduler(t, scheduler.Config{
		Sender:    &fakeSender{},
		Messages:  messages,
		Retention: 10 * 24 * time.Hour,
	})

	before := time.Now()
	s.RunRetentionSweep(context.Background())

	wantCutoff := before.Add(-10 * 24 * time.Hour)
	if messages.deletedAt.Before(wantCutoff.Add(-time.Minute)) || messages.deletedAt.After(wantCutoff.Add(time.Minute)) {
		t.Errorf("cutoff = %v, want about %v", messages.deletedAt, wantCutoff)
	}
}

func TestFireTemplateBroadcastsToVerifiedContacts(t *testing.T) {
	sender := &fakeSender{}
	templates := &fakeTemplates{}
	contacts := &fakeContacts{
		contacts: []*entity.CustomerContact{
			{CustomerID: 10, Channel: entity.ChannelSMS, Identifier: "13800000001", Verified: true},
			{CustomerID: 11, Channel: entity.ChannelSMS, Identifier: "13800000002", Verified: true},
		},
	}
	s := newScheduler(t, scheduler.Config{
		Sender:     sender,
		Messages:   &fakeMessages{},
		Templates:  templates,
		Recipients: contacts,
		Variables:  staticVariables{vars: map[string]any{"name": "customer"}},
	})

	tmpl := &entity.MessageTemplate{
		Code:         "daily_report",
		Channel:      entity.ChannelSMS,
		Enabled:      true,
		PushMode:     entity.ModeScheduled,
		ScheduleTime: "09:00",
		RepeatType:   entity.RepeatDaily,
	}
	s.FireTemplate(context.Background(), tmpl)

	if len(sender.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(sender.batches))
	}
	call := sender.batches[0]
	if call.templateCode != "daily_report" {
		t.Errorf("template code = %q, want daily_report", call.templateCode)
	}
	if call.mode != entity.ModeRealtime {
		t.Errorf("mode = %q, want %q", call.mode, entity.ModeRealtime)
	}
	if len(call.recipients) != 2 {
		t.Fatalf("recipients = %d, want 2", len(call.recipients))
	}
	if call.recipients[0].Recipient != "13800000001" {
		t.Errorf("recipient = %q, want 13800000001", call.recipients[0].Recipient)
	}
	if call.recipients[0].Variables["name"] != "customer" {
		t.Errorf("variables not resolved: %v", call.recipients[0].Variables)
	}
	if len(templates.updated) != 0 {
		t.Errorf("daily template should not be disabled after firing")
	}
}

func TestFireTemplateDisablesOnceOnlyTemplate(t *testing.T) {
	sender := &fakeSender{}
	templates := &fakeTemplates{}
	s := newScheduler(t, scheduler.Config{
		Sender:     sender,
		Messages:   &fakeMessages{},
		Templates:  templates,
		Recipients: &fakeContacts{contacts: []*entity.CustomerContact{{CustomerID: 1, Identifier: "a@example.com", Verified: true}}},
	})

	tmpl := &entity.MessageTemplate{
		Code:         "launch_notice",
		Channel:      entity.ChannelEmail,
		Enabled:      true,
		PushMode:     entity.ModeScheduled,
		ScheduleTime: "10:00",
		RepeatType:   entity.RepeatOnce,
	}
	s.FireTemplate(context.Background(), tmpl)

	if len(templates.updated) != 1 {
		t.Fatalf("template updates = %d, want 1", len(templates.updated))
	}
	if templates.updated[0].Enabled {
		t.Error("once-only template still enabled after firing")
	}
}

func TestSweepSkippedWhenLockHeldElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	// Another worker holds the sweep lock.
	if err := mr.Set("lock:task:retry_sweep", "other-worker"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	sender := &fakeSender{}
	messages := &fakeMessages{
		retryable: []*entity.MessageRecord{
			{MessageNo: "MSG1", Status: entity.StatusFailed, MaxRetries: 3},
		},
	}
	s := newScheduler(t, scheduler.Config{Sender: sender, Messages: messages, Locks: client})

	s.RunRetrySweep(context.Background())

	if len(sender.retried) != 0 {
		t.Fatalf("retried %v, want none while lock is held", sender.retried)
	}
}
