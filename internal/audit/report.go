package audit

import (
	"time"

	id "starline/pkg/domain"
)

// Report is a point-in-time compliance summary for one tenant over a date
// range. Totals are computed store-side; the report service only assembles.
type Report struct {
	TenantID    id.TenantID `json:"tenant_id"`
	PeriodStart time.Time   `json:"period_start"`
	PeriodEnd   time.Time   `json:"period_end"`
	GeneratedAt time.Time   `json:"generated_at"`

	TotalEvents      int                    `json:"total_events"`
	ByAction         map[Action]int         `json:"events_by_action"`
	ByClassification map[Classification]int `json:"events_by_classification"`
	PHIAccessCount   int                    `json:"phi_access_count"`
	FailedEventCount int                    `json:"failed_event_count"`
	UniqueActors     int                    `json:"unique_actors"`

	ActorActivity []ActorActivity `json:"actor_activity"`

	OpenViolations       int               `json:"open_violations"`
	ViolationsBySeverity map[Severity]int  `json:"violations_by_severity"`
	Violations           []ReportViolation `json:"violations"`
}

// ActorActivity is one actor's share of the reporting window, busiest
// actors first.
type ActorActivity struct {
	ActorID        id.ActorID `json:"actor_id"`
	EventCount     int        `json:"event_count"`
	PHIAccessCount int        `json:"phi_access_count"`
}

// ReportViolation is the violation summary embedded in a report.
type ReportViolation struct {
	ID          id.ViolationID  `json:"id"`
	Type        string          `json:"type"`
	Severity    Severity        `json:"severity"`
	Status      ViolationStatus `json:"status"`
	Description string          `json:"description"`
	DetectedAt  time.Time       `json:"detected_at"`
}

// RecordTotals is the record-store half of a report: everything derivable
// from the audit_records table alone.
type RecordTotals struct {
	TotalEvents      int
	ByAction         map[Action]int
	ByClassification map[Classification]int
	PHIAccessCount   int
	FailedEventCount int
	UniqueActors     int
}
