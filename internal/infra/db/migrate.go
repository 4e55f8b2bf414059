package db

import (
	"database/sql"
)

func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS message_templates (
    id               SERIAL PRIMARY KEY,
    template_code    VARCHAR(64) NOT NULL UNIQUE,
    template_name    TEXT NOT NULL,
    channel_type     VARCHAR(20) NOT NULL,
    title            TEXT,
    content_template TEXT NOT NULL,
    variables        JSONB,
    is_active        BOOLEAN DEFAULT TRUE,
    priority         INTEGER NOT NULL DEFAULT 5,
    push_mode        VARCHAR(20) NOT NULL DEFAULT 'realtime',
    schedule_time    VARCHAR(5),
    repeat_type      VARCHAR(20),
    created_at       TIMESTAMPTZ DEFAULT now(),
    updated_at       TIMESTAMPTZ DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS message_tasks (
    id            SERIAL PRIMARY KEY,
    task_id       VARCHAR(64) NOT NULL UNIQUE,
    template_id   INTEGER REFERENCES message_templates(id),
    template_code VARCHAR(64),
    status        VARCHAR(20) NOT NULL DEFAULT 'pending',
    total_count   INTEGER NOT NULL DEFAULT 0,
    success_count INTEGER NOT NULL DEFAULT 0,
    failed_count  INTEGER NOT NULL DEFAULT 0,
    started_at    TIMESTAMPTZ,
    finished_at   TIMESTAMPTZ,
    created_at    TIMESTAMPTZ DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS message_records (
    id              SERIAL PRIMARY KEY,
    message_no      VARCHAR(32) NOT NULL UNIQUE,
    task_id         VARCHAR(64),
    template_id     INTEGER REFERENCES message_templates(id),
    channel_type    VARCHAR(20) NOT NULL,
    recipient_type  VARCHAR(20) NOT NULL,
    recipient_value TEXT NOT NULL,
    customer_id     BIGINT,
    subject         TEXT,
    content         TEXT NOT NULL,
    status          VARCHAR(20) NOT NULL DEFAULT 'pending',
    send_mode       VARCHAR(20) NOT NULL DEFAULT 'realtime',
    priority        INTEGER NOT NULL DEFAULT 0,
    scheduled_time  TIMESTAMPTZ,
    retry_count     INTEGER NOT NULL DEFAULT 0,
    max_retries     INTEGER NOT NULL DEFAULT 3,
    trace_id        VARCHAR(64),
    error_message   TEXT,
    metadata        JSONB,
    created_at      TIMESTAMPTZ DEFAULT now(),
    sent_at         TIMESTAMPTZ
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS channel_configs (
    id           SERIAL PRIMARY KEY,
    channel_type VARCHAR(20) NOT NULL UNIQUE,
    config_data  JSONB NOT NULL DEFAULT '{}',
    is_enabled   BOOLEAN DEFAULT TRUE,
    updated_at   TIMESTAMPTZ DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS customer_contacts (
    id           SERIAL PRIMARY KEY,
    customer_id  BIGINT NOT NULL,
    channel_type VARCHAR(20) NOT NULL,
    identifier   TEXT NOT NULL,
    verified     BOOLEAN DEFAULT FALSE,
    created_at   TIMESTAMPTZ DEFAULT now(),
    UNIQUE (customer_id, channel_type, identifier)
)`); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_message_records_status ON message_records(status)`,
		`CREATE INDEX IF NOT EXISTS idx_message_records_task_id ON message_records(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_message_records_created_at ON message_records(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_message_records_scheduled
		     ON message_records(scheduled_time)
		     WHERE status = 'pending' AND send_mode = 'scheduled'`,
		`CREATE INDEX IF NOT EXISTS idx_message_records_retryable
		     ON message_records(created_at)
		     WHERE status = 'failed'`,
		`CREATE INDEX IF NOT EXISTS idx_customer_contacts_channel
		     ON customer_contacts(channel_type)
		     WHERE verified = TRUE`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}
