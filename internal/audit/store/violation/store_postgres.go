package violation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

const violationColumns = `
	id, tenant_id, record_id, type, severity, description,
	regulation_reference, status, detected_at,
	acknowledged_by, acknowledged_at, resolution_notes, corrective_action`

func (s *PostgresStore) Create(ctx context.Context, v *audit.Violation) error {
	query := `
		INSERT INTO audit_violations (
			id, tenant_id, record_id, type, severity, description,
			regulation_reference, status, detected_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING detected_at
	`
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(v.ID),
		uuid.UUID(v.TenantID),
		uuid.UUID(v.RecordID),
		v.Type,
		string(v.Severity),
		v.Description,
		v.RegulationReference,
		string(v.Status),
	).Scan(&v.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, violationID id.ViolationID) (*audit.Violation, error) {
	query := `
		SELECT ` + violationColumns + `
		FROM audit_violations
		WHERE id = $1 AND tenant_id = $2
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(violationID), uuid.UUID(tenantID))
	v, err := scanViolation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get violation: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) List(ctx context.Context, filter audit.ViolationFilter) ([]*audit.Violation, error) {
	filter.Normalize()

	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.TenantID.IsNil() {
		add("tenant_id = $%d", uuid.UUID(filter.TenantID))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if !filter.Start.IsZero() {
		add("detected_at >= $%d", filter.Start)
	}
	if !filter.End.IsZero() {
		add("detected_at <= $%d", filter.End)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_violations%s
		ORDER BY detected_at DESC
		LIMIT $%d
	`, violationColumns, where, len(args)+1)
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	var violations []*audit.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return violations, nil
}

// Resolve transitions an open violation in a single guarded UPDATE so two
// concurrent reviewers cannot both win.
func (s *PostgresStore) Resolve(ctx context.Context, tenantID id.TenantID, violationID id.ViolationID, res Resolution) (*audit.Violation, error) {
	query := `
		UPDATE audit_violations
		SET status = $1,
		    acknowledged_by = $2,
		    acknowledged_at = now(),
		    resolution_notes = $3,
		    corrective_action = $4
		WHERE id = $5 AND tenant_id = $6 AND status = 'open'
		RETURNING ` + violationColumns + `
	`
	row := s.db.QueryRowContext(ctx, query,
		string(res.Status),
		uuid.UUID(res.By),
		res.Notes,
		res.CorrectiveAction,
		uuid.UUID(violationID),
		uuid.UUID(tenantID),
	)
	v, err := scanViolation(row)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve violation: %w", err)
	}

	// Zero rows: either missing or already past open.
	if _, getErr := s.Get(ctx, tenantID, violationID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrAlreadyResolved
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanViolation(row rowScanner) (*audit.Violation, error) {
	var (
		v              audit.Violation
		violationID    uuid.UUID
		tenantID       uuid.UUID
		recordID       uuid.UUID
		severity       string
		status         string
		acknowledgedBy *uuid.UUID
	)

	err := row.Scan(
		&violationID,
		&tenantID,
		&recordID,
		&v.Type,
		&severity,
		&v.Description,
		&v.RegulationReference,
		&status,
		&v.DetectedAt,
		&acknowledgedBy,
		&v.AcknowledgedAt,
		&v.ResolutionNotes,
		&v.CorrectiveAction,
	)
	if err != nil {
		return nil, err
	}

	v.ID = id.ViolationID(violationID)
	v.TenantID = id.TenantID(tenantID)
	v.RecordID = id.RecordID(recordID)
	v.Severity = audit.Severity(severity)
	v.Status = audit.ViolationStatus(status)
	if acknowledgedBy != nil {
		v.AcknowledgedBy = id.ActorID(*acknowledgedBy)
	}
	return &v, nil
}
