package audit

import (
	"time"

	id "starline/pkg/domain"
)

// ExportFormat is the requested serialization of a bulk export.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ParseExportFormat validates a format string. PDF is declared by the API
// surface but not implemented, so it is rejected here with the rest of the
// unknown formats.
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch ExportFormat(s) {
	case ExportCSV, ExportJSON:
		return ExportFormat(s), true
	}
	return "", false
}

// ExportStatus is the lifecycle state of an export request.
type ExportStatus string

const (
	ExportRequested ExportStatus = "requested"
	ExportCompleted ExportStatus = "completed"
	ExportFailed    ExportStatus = "failed"
)

// ExportArtifactTTL is how long a produced artifact stays downloadable.
const ExportArtifactTTL = 7 * 24 * time.Hour

// Export tracks one bulk extraction request. Created in the requested state
// with no artifact fields; the background job transitions it exactly once to
// completed (artifact populated) or failed (error message populated).
type Export struct {
	ID          id.ExportID
	TenantID    id.TenantID
	RequestedBy id.ActorID

	Format   ExportFormat
	DateFrom time.Time
	DateTo   time.Time

	// Filters is the filter snapshot applied by the background job, kept so
	// the export is reproducible and reviewable.
	Filters ExportFilters

	Purpose      string
	AuthorizedBy string
	AuditRef     string

	Status       ExportStatus
	FilePath     string
	FileSize     int64
	RecordCount  int
	ErrorMessage string

	CreatedAt   time.Time
	CompletedAt *time.Time
	// ExpiresAt is set when the artifact is produced. After this instant the
	// artifact must not be served even if storage still holds the bytes.
	ExpiresAt *time.Time
}

// Expired reports whether the artifact is past its expiry at the given time.
func (e *Export) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// ExportFilters are the optional constraints applied on top of the date range.
type ExportFilters struct {
	ActorID      id.ActorID `json:"actor_id,omitzero"`
	ResourceType string     `json:"resource_type,omitempty"`
	PHIOnly      bool       `json:"phi_only,omitempty"`
}
