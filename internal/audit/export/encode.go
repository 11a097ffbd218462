package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"starline/internal/audit"
)

// csvHeader is the fixed column order of CSV exports. Auditors build tooling
// against it, so changes are breaking.
var csvHeader = []string{
	"id",
	"created_at",
	"actor_id",
	"action",
	"resource_type",
	"resource_id",
	"ip_address",
	"user_agent",
	"response_status",
	"error_message",
	"phi_accessed",
}

func encodeCSV(records []*audit.Record) (io.Reader, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.ID.String(),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			optionalID(rec.ActorID),
			string(rec.Action),
			rec.ResourceType,
			optionalID(rec.ResourceID),
			rec.IPAddress,
			rec.UserAgent,
			optionalInt(rec.ResponseStatus),
			rec.ErrorMessage,
			strconv.FormatBool(rec.PHIAccessed),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return &buf, nil
}

// jsonRecord is the export representation of one record. Unlike the CSV
// summary it carries the full state snapshots.
type jsonRecord struct {
	ID              string         `json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	TenantID        string         `json:"tenant_id,omitempty"`
	ActorID         string         `json:"actor_id,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
	RequestID       string         `json:"request_id,omitempty"`
	IPAddress       string         `json:"ip_address,omitempty"`
	UserAgent       string         `json:"user_agent,omitempty"`
	Method          string         `json:"method,omitempty"`
	Endpoint        string         `json:"endpoint,omitempty"`
	Action          string         `json:"action"`
	ResourceType    string         `json:"resource_type,omitempty"`
	ResourceID      string         `json:"resource_id,omitempty"`
	ResourceName    string         `json:"resource_name,omitempty"`
	PriorState      map[string]any `json:"prior_state,omitempty"`
	NewState        map[string]any `json:"new_state,omitempty"`
	ChangesSummary  string         `json:"changes_summary,omitempty"`
	Classification  string         `json:"classification"`
	PHIAccessed     bool           `json:"phi_accessed"`
	ConsentVerified bool           `json:"consent_verified"`
	ResponseStatus  *int           `json:"response_status,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	DurationMS      *int64         `json:"duration_ms,omitempty"`
}

func encodeJSON(records []*audit.Record) (io.Reader, error) {
	out := make([]jsonRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, jsonRecord{
			ID:              rec.ID.String(),
			CreatedAt:       rec.CreatedAt.UTC(),
			TenantID:        optionalID(rec.TenantID),
			ActorID:         optionalID(rec.ActorID),
			SessionID:       optionalID(rec.SessionID),
			RequestID:       rec.RequestID,
			IPAddress:       rec.IPAddress,
			UserAgent:       rec.UserAgent,
			Method:          rec.Method,
			Endpoint:        rec.Endpoint,
			Action:          string(rec.Action),
			ResourceType:    rec.ResourceType,
			ResourceID:      optionalID(rec.ResourceID),
			ResourceName:    rec.ResourceName,
			PriorState:      rec.PriorState,
			NewState:        rec.NewState,
			ChangesSummary:  rec.ChangesSummary,
			Classification:  string(rec.Classification),
			PHIAccessed:     rec.PHIAccessed,
			ConsentVerified: rec.ConsentVerified,
			ResponseStatus:  rec.ResponseStatus,
			ErrorMessage:    rec.ErrorMessage,
			DurationMS:      rec.DurationMS,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return &buf, nil
}

type nilable interface {
	IsNil() bool
	String() string
}

func optionalID(v nilable) string {
	if v.IsNil() {
		return ""
	}
	return v.String()
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
