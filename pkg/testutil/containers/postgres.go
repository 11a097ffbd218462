//go:build integration

// Package containers provides shared testcontainers helpers for integration
// tests.
package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema mirrors the production migrations so store tests run against the
// real column types.
const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id               uuid PRIMARY KEY,
	tenant_id        uuid,
	actor_id         uuid,
	session_id       uuid,
	request_id       text NOT NULL DEFAULT '',
	ip_address       text NOT NULL DEFAULT '',
	user_agent       text NOT NULL DEFAULT '',
	method           text NOT NULL DEFAULT '',
	endpoint         text NOT NULL DEFAULT '',
	action           text NOT NULL,
	resource_type    text NOT NULL DEFAULT '',
	resource_id      uuid,
	resource_name    text NOT NULL DEFAULT '',
	prior_state      jsonb,
	new_state        jsonb,
	changes_summary  text NOT NULL DEFAULT '',
	classification   text NOT NULL,
	phi_accessed     boolean NOT NULL DEFAULT false,
	consent_verified boolean NOT NULL DEFAULT false,
	response_status  integer,
	error_message    text NOT NULL DEFAULT '',
	duration_ms      bigint,
	created_at       timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_records_tenant_created ON audit_records (tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_records_actor ON audit_records (tenant_id, actor_id, created_at DESC);

CREATE TABLE IF NOT EXISTS outbox (
	id             uuid PRIMARY KEY,
	aggregate_type text NOT NULL,
	aggregate_id   text NOT NULL,
	event_type     text NOT NULL,
	payload        jsonb NOT NULL,
	created_at     timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_violations (
	id                   uuid PRIMARY KEY,
	tenant_id            uuid NOT NULL,
	record_id            uuid NOT NULL REFERENCES audit_records (id) ON DELETE CASCADE,
	type                 text NOT NULL,
	severity             text NOT NULL,
	description          text NOT NULL DEFAULT '',
	regulation_reference text NOT NULL DEFAULT '',
	status               text NOT NULL DEFAULT 'open',
	detected_at          timestamptz NOT NULL DEFAULT now(),
	acknowledged_by      uuid,
	acknowledged_at      timestamptz,
	resolution_notes     text NOT NULL DEFAULT '',
	corrective_action    text NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS audit_settings (
	tenant_id             uuid PRIMARY KEY,
	retention_days        integer NOT NULL,
	archive_after_days    integer NOT NULL,
	sampling_rate         integer NOT NULL,
	log_read_operations   boolean NOT NULL,
	log_admin_actions     boolean NOT NULL,
	log_api_responses     boolean NOT NULL,
	mask_sensitive_data   boolean NOT NULL,
	verify_consent        boolean NOT NULL,
	enable_async_logging  boolean NOT NULL,
	alert_on_phi_access   boolean NOT NULL,
	alert_on_breach       boolean NOT NULL,
	alert_on_failed_login boolean NOT NULL,
	alert_recipients      text[] NOT NULL DEFAULT '{}',
	created_at            timestamptz NOT NULL DEFAULT now(),
	updated_at            timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_exports (
	id            uuid PRIMARY KEY,
	tenant_id     uuid NOT NULL,
	requested_by  uuid NOT NULL,
	format        text NOT NULL,
	date_from     timestamptz NOT NULL,
	date_to       timestamptz NOT NULL,
	filters       jsonb NOT NULL DEFAULT '{}',
	purpose       text NOT NULL,
	authorized_by text NOT NULL DEFAULT '',
	audit_ref     text NOT NULL DEFAULT '',
	status        text NOT NULL DEFAULT 'requested',
	file_path     text NOT NULL DEFAULT '',
	file_size     bigint NOT NULL DEFAULT 0,
	record_count  integer NOT NULL DEFAULT 0,
	error_message text NOT NULL DEFAULT '',
	created_at    timestamptz NOT NULL DEFAULT now(),
	completed_at  timestamptz,
	expires_at    timestamptz
);
`

// PostgresContainer wraps a testcontainers PostgreSQL instance with the audit
// schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

// NewPostgresContainer starts a PostgreSQL container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("starline_test"),
		tcpostgres.WithUsername("starline"),
		tcpostgres.WithPassword("starline"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(context.Background())
	})

	return &PostgresContainer{Container: container, URL: url, DB: db}
}

// Truncate empties the given tables between tests.
func (p *PostgresContainer) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return err
		}
	}
	return nil
}
