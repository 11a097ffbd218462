package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

// PostgresStore persists audit records using the transactional outbox
// pattern: every insert writes the record row and an outbox row in one
// transaction, and the outbox relay publishes to Kafka afterwards.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
	id, tenant_id, actor_id, session_id, request_id, ip_address, user_agent,
	method, endpoint, action, resource_type, resource_id, resource_name,
	prior_state, new_state, changes_summary, classification, phi_accessed,
	consent_verified, response_status, error_message, duration_ms, created_at`

func (s *PostgresStore) Insert(ctx context.Context, rec *audit.Record) error {
	priorJSON, err := marshalState(rec.PriorState)
	if err != nil {
		return fmt.Errorf("marshal prior state: %w", err)
	}
	newJSON, err := marshalState(rec.NewState)
	if err != nil {
		return fmt.Errorf("marshal new state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO audit_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, now())
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, query,
		uuid.UUID(rec.ID),
		nullUUID(uuid.UUID(rec.TenantID)),
		nullUUID(uuid.UUID(rec.ActorID)),
		nullUUID(uuid.UUID(rec.SessionID)),
		rec.RequestID,
		rec.IPAddress,
		rec.UserAgent,
		rec.Method,
		rec.Endpoint,
		string(rec.Action),
		rec.ResourceType,
		nullUUID(uuid.UUID(rec.ResourceID)),
		rec.ResourceName,
		priorJSON,
		newJSON,
		rec.ChangesSummary,
		string(rec.Classification),
		rec.PHIAccessed,
		rec.ConsentVerified,
		rec.ResponseStatus,
		rec.ErrorMessage,
		rec.DurationMS,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	if err := insertOutboxEntry(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert record: %w", err)
	}
	return nil
}

// insertOutboxEntry queues the record for the Kafka relay. The payload is
// the full record so downstream consumers never read the records table.
func insertOutboxEntry(ctx context.Context, tx *sql.Tx, rec *audit.Record) error {
	payload, err := json.Marshal(toWire(rec))
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	aggregateID := rec.ID.String()
	if !rec.TenantID.IsNil() {
		aggregateID = rec.TenantID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	_, err = tx.ExecContext(ctx, query,
		uuid.New(),
		"audit_record",
		aggregateID,
		string(rec.Action),
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*audit.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM audit_records
		WHERE id = $1 AND tenant_id = $2
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(recordID), uuid.UUID(tenantID))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, filter audit.RecordFilter) ([]*audit.Record, int, error) {
	filter.Normalize()
	where, args := buildWhere(filter)

	var total int
	countQuery := "SELECT count(*) FROM audit_records" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_records%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, recordColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, total, nil
}

func (s *PostgresStore) Count(ctx context.Context, filter audit.RecordFilter) (int, error) {
	where, args := buildWhere(filter)
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM audit_records"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Totals(ctx context.Context, tenantID id.TenantID, start, end time.Time) (*audit.RecordTotals, error) {
	totals := &audit.RecordTotals{
		ByAction:         make(map[audit.Action]int),
		ByClassification: make(map[audit.Classification]int),
	}

	summary := `
		SELECT count(*),
		       count(*) FILTER (WHERE phi_accessed),
		       count(*) FILTER (WHERE response_status >= 400),
		       count(DISTINCT actor_id) FILTER (WHERE actor_id IS NOT NULL)
		FROM audit_records
		WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3
	`
	err := s.db.QueryRowContext(ctx, summary, uuid.UUID(tenantID), start, end).Scan(
		&totals.TotalEvents,
		&totals.PHIAccessCount,
		&totals.FailedEventCount,
		&totals.UniqueActors,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate record totals: %w", err)
	}

	if err := s.groupCounts(ctx, "action", tenantID, start, end, func(key string, n int) {
		totals.ByAction[audit.Action(key)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, "classification", tenantID, start, end, func(key string, n int) {
		totals.ByClassification[audit.Classification(key)] = n
	}); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *PostgresStore) groupCounts(ctx context.Context, column string, tenantID id.TenantID, start, end time.Time, visit func(key string, n int)) error {
	query := fmt.Sprintf(`
		SELECT %s, count(*)
		FROM audit_records
		WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3
		GROUP BY %s
	`, column, column)

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID), start, end)
	if err != nil {
		return fmt.Errorf("group records by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		visit(key, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return nil
}

func (s *PostgresStore) ActivityByActor(ctx context.Context, tenantID id.TenantID, start, end time.Time) ([]audit.ActorActivity, error) {
	query := `
		SELECT actor_id,
		       count(*),
		       count(*) FILTER (WHERE phi_accessed)
		FROM audit_records
		WHERE tenant_id = $1 AND actor_id IS NOT NULL
		  AND created_at BETWEEN $2 AND $3
		GROUP BY actor_id
		ORDER BY count(*) DESC, actor_id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID), start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate actor activity: %w", err)
	}
	defer rows.Close()

	var out []audit.ActorActivity
	for rows.Next() {
		var actorID uuid.UUID
		var entry audit.ActorActivity
		if err := rows.Scan(&actorID, &entry.EventCount, &entry.PHIAccessCount); err != nil {
			return nil, fmt.Errorf("scan actor activity: %w", err)
		}
		entry.ActorID = id.ActorID(actorID)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actor activity: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, tenantID id.TenantID, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_records WHERE tenant_id = $1 AND created_at < $2`,
		uuid.UUID(tenantID), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	return removed, nil
}

func buildWhere(f audit.RecordFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !f.TenantID.IsNil() {
		add("tenant_id = $%d", uuid.UUID(f.TenantID))
	}
	if !f.ActorID.IsNil() {
		add("actor_id = $%d", uuid.UUID(f.ActorID))
	}
	if f.ResourceType != "" {
		add("lower(resource_type) = lower($%d)", f.ResourceType)
	}
	if !f.ResourceID.IsNil() {
		add("resource_id = $%d", uuid.UUID(f.ResourceID))
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.Classification != "" {
		add("classification = $%d", string(f.Classification))
	}
	if f.PHIOnly {
		conds = append(conds, "phi_accessed")
	}
	if f.FailedOnly {
		conds = append(conds, "response_status >= 400")
	}
	if !f.Start.IsZero() {
		add("created_at >= $%d", f.Start)
	}
	if !f.End.IsZero() {
		add("created_at <= $%d", f.End)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// wireRecord is the row and outbox payload shape.
type wireRecord struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id,omitempty"`
	ActorID         string          `json:"actor_id,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	RequestID       string          `json:"request_id,omitempty"`
	IPAddress       string          `json:"ip_address,omitempty"`
	UserAgent       string          `json:"user_agent,omitempty"`
	Method          string          `json:"method,omitempty"`
	Endpoint        string          `json:"endpoint,omitempty"`
	Action          string          `json:"action"`
	ResourceType    string          `json:"resource_type,omitempty"`
	ResourceID      string          `json:"resource_id,omitempty"`
	ResourceName    string          `json:"resource_name,omitempty"`
	PriorState      json.RawMessage `json:"prior_state,omitempty"`
	NewState        json.RawMessage `json:"new_state,omitempty"`
	ChangesSummary  string          `json:"changes_summary,omitempty"`
	Classification  string          `json:"classification"`
	PHIAccessed     bool            `json:"phi_accessed"`
	ConsentVerified bool            `json:"consent_verified"`
	ResponseStatus  *int            `json:"response_status,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	DurationMS      *int64          `json:"duration_ms,omitempty"`
}

func toWire(rec *audit.Record) wireRecord {
	w := wireRecord{
		ID:              rec.ID.String(),
		RequestID:       rec.RequestID,
		IPAddress:       rec.IPAddress,
		UserAgent:       rec.UserAgent,
		Method:          rec.Method,
		Endpoint:        rec.Endpoint,
		Action:          string(rec.Action),
		ResourceType:    rec.ResourceType,
		ResourceName:    rec.ResourceName,
		ChangesSummary:  rec.ChangesSummary,
		Classification:  string(rec.Classification),
		PHIAccessed:     rec.PHIAccessed,
		ConsentVerified: rec.ConsentVerified,
		ResponseStatus:  rec.ResponseStatus,
		ErrorMessage:    rec.ErrorMessage,
		DurationMS:      rec.DurationMS,
	}
	if !rec.TenantID.IsNil() {
		w.TenantID = rec.TenantID.String()
	}
	if !rec.ActorID.IsNil() {
		w.ActorID = rec.ActorID.String()
	}
	if !rec.SessionID.IsNil() {
		w.SessionID = rec.SessionID.String()
	}
	if !rec.ResourceID.IsNil() {
		w.ResourceID = rec.ResourceID.String()
	}
	if b, err := json.Marshal(rec.PriorState); err == nil && rec.PriorState != nil {
		w.PriorState = b
	}
	if b, err := json.Marshal(rec.NewState); err == nil && rec.NewState != nil {
		w.NewState = b
	}
	return w
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*audit.Record, error) {
	var (
		rec            audit.Record
		recordID       uuid.UUID
		tenantID       *uuid.UUID
		actorID        *uuid.UUID
		sessionID      *uuid.UUID
		resourceID     *uuid.UUID
		action         string
		classification string
		priorJSON      []byte
		newJSON        []byte
	)

	err := row.Scan(
		&recordID,
		&tenantID,
		&actorID,
		&sessionID,
		&rec.RequestID,
		&rec.IPAddress,
		&rec.UserAgent,
		&rec.Method,
		&rec.Endpoint,
		&action,
		&rec.ResourceType,
		&resourceID,
		&rec.ResourceName,
		&priorJSON,
		&newJSON,
		&rec.ChangesSummary,
		&classification,
		&rec.PHIAccessed,
		&rec.ConsentVerified,
		&rec.ResponseStatus,
		&rec.ErrorMessage,
		&rec.DurationMS,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ID = id.RecordID(recordID)
	if tenantID != nil {
		rec.TenantID = id.TenantID(*tenantID)
	}
	if actorID != nil {
		rec.ActorID = id.ActorID(*actorID)
	}
	if sessionID != nil {
		rec.SessionID = id.SessionID(*sessionID)
	}
	if resourceID != nil {
		rec.ResourceID = id.ResourceID(*resourceID)
	}
	rec.Action = audit.Action(action)
	rec.Classification = audit.Classification(classification)

	if len(priorJSON) > 0 {
		if err := json.Unmarshal(priorJSON, &rec.PriorState); err != nil {
			return nil, fmt.Errorf("unmarshal prior state: %w", err)
		}
	}
	if len(newJSON) > 0 {
		if err := json.Unmarshal(newJSON, &rec.NewState); err != nil {
			return nil, fmt.Errorf("unmarshal new state: %w", err)
		}
	}
	return &rec, nil
}

func marshalState(state map[string]any) ([]byte, error) {
	if state == nil {
		return nil, nil
	}
	return json.Marshal(state)
}

func nullUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}
