package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"msghub/internal/domain/entity"
	"msghub/internal/infra/adapter/persistence/postgres"
)

func TestChannelConfigRepo_GetChannelConfig(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM channel_configs`).
		WithArgs(entity.ChannelSMS).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "channel_type", "config_data", "is_enabled", "updated_at",
		}).AddRow(int64(1), "SMS", []byte(`{"api_url":"https://sms.example.com"}`), true, time.Now()))

	repo := postgres.NewChannelConfigRepo(db)
	got, err := repo.GetChannelConfig(context.Background(), entity.ChannelSMS)
	if err != nil {
		t.Fatalf("GetChannelConfig err=%v", err)
	}
	if got == nil || got.String("api_url") != "https://sms.example.com" {
		t.Fatalf("unexpected config: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestChannelConfigRepo_GetChannelConfigMissing(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM channel_configs`).
		WithArgs(entity.ChannelAIBot).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "channel_type", "config_data", "is_enabled", "updated_at",
		}))

	repo := postgres.NewChannelConfigRepo(db)
	got, err := repo.GetChannelConfig(context.Background(), entity.ChannelAIBot)
	if err != nil {
		t.Fatalf("GetChannelConfig err=%v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unconfigured channel, got %+v", got)
	}
}

func TestChannelConfigRepo_Upsert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO channel_configs`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "updated_at"}).AddRow(int64(5), time.Now()))

	repo := postgres.NewChannelConfigRepo(db)
	cfg := &entity.ChannelConfig{
		Channel: entity.ChannelEmail,
		Data:    map[string]any{"smtp_host": "mail.example.com"},
		Enabled: true,
	}
	if err := repo.Upsert(context.Background(), cfg); err != nil {
		t.Fatalf("Upsert err=%v", err)
	}
	if cfg.ID != 5 {
		t.Fatalf("Upsert did not set ID, got %d", cfg.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestChannelConfigRepo_SetEnabled(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE channel_configs`)).
		WithArgs(entity.ChannelSMS, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := postgres.NewChannelConfigRepo(db)
	if err := repo.SetEnabled(context.Background(), entity.ChannelSMS, false); err != nil {
		t.Fatalf("SetEnabled err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
