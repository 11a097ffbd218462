package handler

import (
	"time"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

// RecordResponse is the wire shape of one audit record.
type RecordResponse struct {
	ID        id.RecordID  `json:"id"`
	ActorID   id.ActorID   `json:"actor_id"`
	SessionID id.SessionID `json:"session_id,omitzero"`
	RequestID string       `json:"request_id,omitempty"`
	IPAddress string       `json:"ip_address,omitempty"`
	UserAgent string       `json:"user_agent,omitempty"`
	Method    string       `json:"method,omitempty"`
	Endpoint  string       `json:"endpoint,omitempty"`

	Action       audit.Action  `json:"action"`
	ResourceType string        `json:"resource_type,omitempty"`
	ResourceID   id.ResourceID `json:"resource_id,omitzero"`
	ResourceName string        `json:"resource_name,omitempty"`

	PriorState     map[string]any `json:"prior_state,omitempty"`
	NewState       map[string]any `json:"new_state,omitempty"`
	ChangesSummary string         `json:"changes_summary,omitempty"`

	Classification  audit.Classification `json:"classification"`
	PHIAccessed     bool                 `json:"phi_accessed"`
	ConsentVerified bool                 `json:"consent_verified"`

	ResponseStatus *int   `json:"response_status,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	DurationMS     *int64 `json:"duration_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// FromRecord converts a domain record to its wire shape.
func FromRecord(r *audit.Record) RecordResponse {
	return RecordResponse{
		ID:              r.ID,
		ActorID:         r.ActorID,
		SessionID:       r.SessionID,
		RequestID:       r.RequestID,
		IPAddress:       r.IPAddress,
		UserAgent:       r.UserAgent,
		Method:          r.Method,
		Endpoint:        r.Endpoint,
		Action:          r.Action,
		ResourceType:    r.ResourceType,
		ResourceID:      r.ResourceID,
		ResourceName:    r.ResourceName,
		PriorState:      r.PriorState,
		NewState:        r.NewState,
		ChangesSummary:  r.ChangesSummary,
		Classification:  r.Classification,
		PHIAccessed:     r.PHIAccessed,
		ConsentVerified: r.ConsentVerified,
		ResponseStatus:  r.ResponseStatus,
		ErrorMessage:    r.ErrorMessage,
		DurationMS:      r.DurationMS,
		CreatedAt:       r.CreatedAt,
	}
}

// RecordListResponse is a page of records with the unpaged total.
type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// FromRecords converts a page of domain records.
func FromRecords(records []*audit.Record, total int, filter audit.RecordFilter) RecordListResponse {
	out := RecordListResponse{
		Records: make([]RecordResponse, 0, len(records)),
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}
	for _, r := range records {
		out.Records = append(out.Records, FromRecord(r))
	}
	return out
}

// ViolationResponse is the wire shape of one compliance violation.
type ViolationResponse struct {
	ID                  id.ViolationID        `json:"id"`
	RecordID            id.RecordID           `json:"record_id"`
	Type                string                `json:"type"`
	Severity            audit.Severity        `json:"severity"`
	Description         string                `json:"description"`
	RegulationReference string                `json:"regulation_reference"`
	Status              audit.ViolationStatus `json:"status"`
	DetectedAt          time.Time             `json:"detected_at"`
	AcknowledgedBy      id.ActorID            `json:"acknowledged_by,omitzero"`
	AcknowledgedAt      *time.Time            `json:"acknowledged_at,omitempty"`
	ResolutionNotes     string                `json:"resolution_notes,omitempty"`
	CorrectiveAction    string                `json:"corrective_action,omitempty"`
}

// FromViolation converts a domain violation to its wire shape.
func FromViolation(v *audit.Violation) ViolationResponse {
	return ViolationResponse{
		ID:                  v.ID,
		RecordID:            v.RecordID,
		Type:                v.Type,
		Severity:            v.Severity,
		Description:         v.Description,
		RegulationReference: v.RegulationReference,
		Status:              v.Status,
		DetectedAt:          v.DetectedAt,
		AcknowledgedBy:      v.AcknowledgedBy,
		AcknowledgedAt:      v.AcknowledgedAt,
		ResolutionNotes:     v.ResolutionNotes,
		CorrectiveAction:    v.CorrectiveAction,
	}
}

// SettingsResponse is the wire shape of a tenant's audit settings.
type SettingsResponse struct {
	RetentionDays      int      `json:"retention_days"`
	ArchiveAfterDays   int      `json:"archive_after_days"`
	SamplingRate       int      `json:"sampling_rate"`
	LogReadOperations  bool     `json:"log_read_operations"`
	LogAdminActions    bool     `json:"log_administrative_actions"`
	LogAPIResponses    bool     `json:"log_api_responses"`
	MaskSensitiveData  bool     `json:"mask_sensitive_data"`
	VerifyConsent      bool     `json:"require_consent_verification"`
	EnableAsyncLogging bool     `json:"enable_async_logging"`
	AlertOnPHIAccess   bool     `json:"alert_on_phi_access"`
	AlertOnBreach      bool     `json:"alert_on_breach"`
	AlertOnFailedLogin bool     `json:"alert_on_failed_login"`
	AlertRecipients    []string `json:"alert_email_addresses"`

	UpdatedAt time.Time `json:"updated_at"`
}

// FromSettings converts domain settings to their wire shape.
func FromSettings(s *audit.Settings) SettingsResponse {
	return SettingsResponse{
		RetentionDays:      s.RetentionDays,
		ArchiveAfterDays:   s.ArchiveAfterDays,
		SamplingRate:       s.SamplingRate,
		LogReadOperations:  s.LogReadOperations,
		LogAdminActions:    s.LogAdminActions,
		LogAPIResponses:    s.LogAPIResponses,
		MaskSensitiveData:  s.MaskSensitiveData,
		VerifyConsent:      s.VerifyConsent,
		EnableAsyncLogging: s.EnableAsyncLogging,
		AlertOnPHIAccess:   s.AlertOnPHIAccess,
		AlertOnBreach:      s.AlertOnBreach,
		AlertOnFailedLogin: s.AlertOnFailedLogin,
		AlertRecipients:    s.AlertRecipients,
		UpdatedAt:          s.UpdatedAt,
	}
}

// ExportResponse is the wire shape of one export request.
type ExportResponse struct {
	ID           id.ExportID        `json:"id"`
	Format       audit.ExportFormat `json:"format"`
	DateFrom     time.Time          `json:"date_from"`
	DateTo       time.Time          `json:"date_to"`
	Purpose      string             `json:"purpose"`
	Status       audit.ExportStatus `json:"status"`
	RecordCount  int                `json:"record_count,omitempty"`
	FileSize     int64              `json:"file_size,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
}

// FromExport converts a domain export to its wire shape.
func FromExport(e *audit.Export) ExportResponse {
	return ExportResponse{
		ID:           e.ID,
		Format:       e.Format,
		DateFrom:     e.DateFrom,
		DateTo:       e.DateTo,
		Purpose:      e.Purpose,
		Status:       e.Status,
		RecordCount:  e.RecordCount,
		FileSize:     e.FileSize,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		CompletedAt:  e.CompletedAt,
		ExpiresAt:    e.ExpiresAt,
	}
}
