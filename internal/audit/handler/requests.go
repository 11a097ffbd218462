package handler

import (
	"strings"
	"time"

	"starline/internal/audit"
	dErrors "starline/pkg/domain-errors"
)

// AcknowledgeViolationRequest is the HTTP request body for
// POST /audit/violations/{id}/acknowledge.
type AcknowledgeViolationRequest struct {
	Status           string `json:"status"`
	ResolutionNotes  string `json:"resolution_notes"`
	CorrectiveAction string `json:"corrective_action"`

	parsedStatus audit.ViolationStatus
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *AcknowledgeViolationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.ResolutionNotes = strings.TrimSpace(r.ResolutionNotes)
	if r.ResolutionNotes == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "resolution_notes is required")
	}

	r.Status = strings.TrimSpace(r.Status)
	if r.Status == "" {
		r.parsedStatus = audit.ViolationAcknowledged
		return nil
	}
	switch audit.ViolationStatus(r.Status) {
	case audit.ViolationAcknowledged, audit.ViolationResolved, audit.ViolationFalsePositive:
		r.parsedStatus = audit.ViolationStatus(r.Status)
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "status must be acknowledged, resolved, or false_positive")
	}
	return nil
}

// ParsedStatus returns the validated target status.
func (r *AcknowledgeViolationRequest) ParsedStatus() audit.ViolationStatus {
	return r.parsedStatus
}

// UpdateSettingsRequest is the HTTP request body for PUT /audit/settings.
// Absent fields leave current values unchanged.
type UpdateSettingsRequest struct {
	audit.SettingsUpdate
}

// Validate validates the request.
func (r *UpdateSettingsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	for _, addr := range r.AlertRecipients {
		if !strings.Contains(addr, "@") {
			return dErrors.New(dErrors.CodeInvalidInput, "alert_email_addresses must be email addresses")
		}
	}
	return nil
}

// CreateExportRequest is the HTTP request body for POST /audit/exports.
type CreateExportRequest struct {
	Format       string        `json:"format"`
	DateFrom     time.Time     `json:"date_from"`
	DateTo       time.Time     `json:"date_to"`
	Filters      exportFilters `json:"filters"`
	Purpose      string        `json:"purpose"`
	AuthorizedBy string        `json:"authorized_by"`
	AuditRef     string        `json:"audit_ref"`
}

type exportFilters struct {
	ActorID      string `json:"actor_id"`
	ResourceType string `json:"resource_type"`
	PHIOnly      bool   `json:"phi_only"`
}

// Validate trims the request. Format, range, and purpose checks live in the
// export service so queue-submitted requests get them too.
func (r *CreateExportRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Format = strings.TrimSpace(r.Format)
	r.Purpose = strings.TrimSpace(r.Purpose)
	return nil
}
