package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID) (*audit.Settings, error) {
	query := `
		SELECT tenant_id, retention_days, archive_after_days, sampling_rate,
		       log_read_operations, log_admin_actions, log_api_responses,
		       mask_sensitive_data, verify_consent, enable_async_logging,
		       alert_on_phi_access, alert_on_breach, alert_on_failed_login,
		       alert_recipients, created_at, updated_at
		FROM audit_settings
		WHERE tenant_id = $1
	`
	var (
		out     audit.Settings
		scanned uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID)).Scan(
		&scanned,
		&out.RetentionDays,
		&out.ArchiveAfterDays,
		&out.SamplingRate,
		&out.LogReadOperations,
		&out.LogAdminActions,
		&out.LogAPIResponses,
		&out.MaskSensitiveData,
		&out.VerifyConsent,
		&out.EnableAsyncLogging,
		&out.AlertOnPHIAccess,
		&out.AlertOnBreach,
		&out.AlertOnFailedLogin,
		pq.Array(&out.AlertRecipients),
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get audit settings: %w", err)
	}
	out.TenantID = id.TenantID(scanned)
	return &out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, in *audit.Settings) error {
	query := `
		INSERT INTO audit_settings (
			tenant_id, retention_days, archive_after_days, sampling_rate,
			log_read_operations, log_admin_actions, log_api_responses,
			mask_sensitive_data, verify_consent, enable_async_logging,
			alert_on_phi_access, alert_on_breach, alert_on_failed_login,
			alert_recipients, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			retention_days = EXCLUDED.retention_days,
			archive_after_days = EXCLUDED.archive_after_days,
			sampling_rate = EXCLUDED.sampling_rate,
			log_read_operations = EXCLUDED.log_read_operations,
			log_admin_actions = EXCLUDED.log_admin_actions,
			log_api_responses = EXCLUDED.log_api_responses,
			mask_sensitive_data = EXCLUDED.mask_sensitive_data,
			verify_consent = EXCLUDED.verify_consent,
			enable_async_logging = EXCLUDED.enable_async_logging,
			alert_on_phi_access = EXCLUDED.alert_on_phi_access,
			alert_on_breach = EXCLUDED.alert_on_breach,
			alert_on_failed_login = EXCLUDED.alert_on_failed_login,
			alert_recipients = EXCLUDED.alert_recipients,
			updated_at = now()
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(in.TenantID),
		in.RetentionDays,
		in.ArchiveAfterDays,
		in.SamplingRate,
		in.LogReadOperations,
		in.LogAdminActions,
		in.LogAPIResponses,
		in.MaskSensitiveData,
		in.VerifyConsent,
		in.EnableAsyncLogging,
		in.AlertOnPHIAccess,
		in.AlertOnBreach,
		in.AlertOnFailedLogin,
		pq.Array(in.AlertRecipients),
	).Scan(&in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert audit settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]id.TenantID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_id FROM audit_settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings tenants: %w", err)
	}
	defer rows.Close()

	var tenants []id.TenantID
	for rows.Next() {
		var tenantID uuid.UUID
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan settings tenant: %w", err)
		}
		tenants = append(tenants, id.TenantID(tenantID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings tenants: %w", err)
	}
	return tenants, nil
}
