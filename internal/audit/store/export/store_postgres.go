package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const exportColumns = `
	id, tenant_id, requested_by, format, date_from, date_to, filters,
	purpose, authorized_by, audit_ref, status, file_path, file_size,
	record_count, error_message, created_at, completed_at, expires_at`

func (s *PostgresStore) Create(ctx context.Context, e *audit.Export) error {
	filtersJSON, err := json.Marshal(e.Filters)
	if err != nil {
		return fmt.Errorf("marshal export filters: %w", err)
	}

	query := `
		INSERT INTO audit_exports (
			id, tenant_id, requested_by, format, date_from, date_to,
			filters, purpose, authorized_by, audit_ref, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		RETURNING created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		uuid.UUID(e.ID),
		uuid.UUID(e.TenantID),
		uuid.UUID(e.RequestedBy),
		string(e.Format),
		e.DateFrom,
		e.DateTo,
		filtersJSON,
		e.Purpose,
		e.AuthorizedBy,
		e.AuditRef,
		string(e.Status),
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, exportID id.ExportID) (*audit.Export, error) {
	query := `
		SELECT ` + exportColumns + `
		FROM audit_exports
		WHERE id = $1 AND tenant_id = $2
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(exportID), uuid.UUID(tenantID))
	e, err := scanExport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get export: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, exportID id.ExportID) (*audit.Export, error) {
	query := `
		SELECT ` + exportColumns + `
		FROM audit_exports
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(exportID))
	e, err := scanExport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get export: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, exportID id.ExportID, artifact Artifact) error {
	query := `
		UPDATE audit_exports
		SET status = 'completed',
		    file_path = $1,
		    file_size = $2,
		    record_count = $3,
		    completed_at = now(),
		    expires_at = $4
		WHERE id = $5 AND status = 'requested'
	`
	return s.guardedUpdate(ctx, exportID, query,
		artifact.FilePath, artifact.FileSize, artifact.RecordCount, artifact.ExpiresAt, uuid.UUID(exportID))
}

func (s *PostgresStore) MarkFailed(ctx context.Context, exportID id.ExportID, message string) error {
	query := `
		UPDATE audit_exports
		SET status = 'failed',
		    error_message = $1,
		    completed_at = now()
		WHERE id = $2 AND status = 'requested'
	`
	return s.guardedUpdate(ctx, exportID, query, message, uuid.UUID(exportID))
}

func (s *PostgresStore) guardedUpdate(ctx context.Context, exportID id.ExportID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update export: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update export: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM audit_exports WHERE id = $1)`,
		uuid.UUID(exportID),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check export: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrNotPending
}

func (s *PostgresStore) ListExpired(ctx context.Context, before time.Time) ([]*audit.Export, error) {
	query := `
		SELECT ` + exportColumns + `
		FROM audit_exports
		WHERE status = 'completed' AND expires_at < $1
	`
	rows, err := s.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("query expired exports: %w", err)
	}
	defer rows.Close()

	var exports []*audit.Export
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		exports = append(exports, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return exports, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExport(row rowScanner) (*audit.Export, error) {
	var (
		e           audit.Export
		exportID    uuid.UUID
		tenantID    uuid.UUID
		requestedBy uuid.UUID
		format      string
		status      string
		filtersJSON []byte
	)

	err := row.Scan(
		&exportID,
		&tenantID,
		&requestedBy,
		&format,
		&e.DateFrom,
		&e.DateTo,
		&filtersJSON,
		&e.Purpose,
		&e.AuthorizedBy,
		&e.AuditRef,
		&status,
		&e.FilePath,
		&e.FileSize,
		&e.RecordCount,
		&e.ErrorMessage,
		&e.CreatedAt,
		&e.CompletedAt,
		&e.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	e.ID = id.ExportID(exportID)
	e.TenantID = id.TenantID(tenantID)
	e.RequestedBy = id.ActorID(requestedBy)
	e.Format = audit.ExportFormat(format)
	e.Status = audit.ExportStatus(status)
	if len(filtersJSON) > 0 {
		if err := json.Unmarshal(filtersJSON, &e.Filters); err != nil {
			return nil, fmt.Errorf("unmarshal export filters: %w", err)
		}
	}
	return &e, nil
}
