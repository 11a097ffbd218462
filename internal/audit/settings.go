package audit

import (
	"time"

	id "starline/pkg/domain"
)

// RetentionFloorDays is the regulatory minimum retention for audit records.
// Settings updates below this floor are clamped, never accepted.
const RetentionFloorDays = 2555

// Settings is the per-tenant audit configuration. One row per tenant, created
// lazily with defaults on first access and updated by partial-field merge.
type Settings struct {
	TenantID id.TenantID

	RetentionDays    int
	ArchiveAfterDays int

	// SamplingRate is the percentage (0-100) of eligible events actually
	// recorded. Only reads and other non-mandatory events are eligible;
	// writes, PHI touches, and security events are always recorded.
	SamplingRate int

	LogReadOperations  bool
	LogAdminActions    bool
	LogAPIResponses    bool
	MaskSensitiveData  bool
	VerifyConsent      bool
	EnableAsyncLogging bool

	AlertOnPHIAccess bool
	// AlertOnBreach is stored for completeness; the dispatcher always sends
	// breach alerts regardless of its value.
	AlertOnBreach      bool
	AlertOnFailedLogin bool
	AlertRecipients    []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultSettings returns the documented defaults applied on lazy creation.
func DefaultSettings(tenantID id.TenantID) *Settings {
	return &Settings{
		TenantID:           tenantID,
		RetentionDays:      RetentionFloorDays,
		ArchiveAfterDays:   90,
		SamplingRate:       100,
		LogReadOperations:  true,
		LogAdminActions:    true,
		LogAPIResponses:    false,
		MaskSensitiveData:  true,
		VerifyConsent:      true,
		EnableAsyncLogging: true,
		AlertOnPHIAccess:   true,
		AlertOnBreach:      true,
		AlertOnFailedLogin: true,
	}
}

// SettingsUpdate is a partial update: nil fields leave the current value
// unchanged.
type SettingsUpdate struct {
	RetentionDays      *int     `json:"retention_days"`
	ArchiveAfterDays   *int     `json:"archive_after_days"`
	SamplingRate       *int     `json:"sampling_rate"`
	LogReadOperations  *bool    `json:"log_read_operations"`
	LogAdminActions    *bool    `json:"log_administrative_actions"`
	LogAPIResponses    *bool    `json:"log_api_responses"`
	MaskSensitiveData  *bool    `json:"mask_sensitive_data"`
	VerifyConsent      *bool    `json:"require_consent_verification"`
	EnableAsyncLogging *bool    `json:"enable_async_logging"`
	AlertOnPHIAccess   *bool    `json:"alert_on_phi_access"`
	AlertOnBreach      *bool    `json:"alert_on_breach"`
	AlertOnFailedLogin *bool    `json:"alert_on_failed_login"`
	AlertRecipients    []string `json:"alert_email_addresses"`
}

// Apply merges the supplied fields into s, enforcing the retention floor and
// the sampling-rate bounds. Returns s for chaining.
func (s *Settings) Apply(u SettingsUpdate) *Settings {
	if u.RetentionDays != nil {
		s.RetentionDays = *u.RetentionDays
		if s.RetentionDays < RetentionFloorDays {
			s.RetentionDays = RetentionFloorDays
		}
	}
	if u.ArchiveAfterDays != nil {
		s.ArchiveAfterDays = *u.ArchiveAfterDays
	}
	if s.ArchiveAfterDays > s.RetentionDays {
		s.ArchiveAfterDays = s.RetentionDays
	}
	if u.SamplingRate != nil {
		s.SamplingRate = *u.SamplingRate
		if s.SamplingRate < 0 {
			s.SamplingRate = 0
		}
		if s.SamplingRate > 100 {
			s.SamplingRate = 100
		}
	}
	if u.LogReadOperations != nil {
		s.LogReadOperations = *u.LogReadOperations
	}
	if u.LogAdminActions != nil {
		s.LogAdminActions = *u.LogAdminActions
	}
	if u.LogAPIResponses != nil {
		s.LogAPIResponses = *u.LogAPIResponses
	}
	if u.MaskSensitiveData != nil {
		s.MaskSensitiveData = *u.MaskSensitiveData
	}
	if u.VerifyConsent != nil {
		s.VerifyConsent = *u.VerifyConsent
	}
	if u.EnableAsyncLogging != nil {
		s.EnableAsyncLogging = *u.EnableAsyncLogging
	}
	if u.AlertOnPHIAccess != nil {
		s.AlertOnPHIAccess = *u.AlertOnPHIAccess
	}
	if u.AlertOnBreach != nil {
		s.AlertOnBreach = *u.AlertOnBreach
	}
	if u.AlertOnFailedLogin != nil {
		s.AlertOnFailedLogin = *u.AlertOnFailedLogin
	}
	if u.AlertRecipients != nil {
		s.AlertRecipients = u.AlertRecipients
	}
	return s
}
