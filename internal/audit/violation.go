package audit

import (
	"time"

	id "starline/pkg/domain"
)

// ViolationStatus is the lifecycle state of a compliance violation.
// Transitions only move forward: open -> acknowledged -> resolved, or
// open -> false_positive. Reopening is not supported.
type ViolationStatus string

const (
	ViolationOpen          ViolationStatus = "open"
	ViolationAcknowledged  ViolationStatus = "acknowledged"
	ViolationResolved      ViolationStatus = "resolved"
	ViolationFalsePositive ViolationStatus = "false_positive"
)

// Severity grades a violation for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Violation is a detected compliance anomaly requiring human review. All
// fields except the resolution metadata are immutable after creation; the
// resolution fields are set exactly once, at acknowledgment.
type Violation struct {
	ID       id.ViolationID
	TenantID id.TenantID

	// RecordID links the triggering audit record. The reference is strong:
	// a retention purge of the record removes the violation with it.
	RecordID id.RecordID

	Type                string
	Severity            Severity
	Description         string
	RegulationReference string

	Status     ViolationStatus
	DetectedAt time.Time

	AcknowledgedBy   id.ActorID
	AcknowledgedAt   *time.Time
	ResolutionNotes  string
	CorrectiveAction string
}

// ViolationFilter narrows violation queries.
type ViolationFilter struct {
	TenantID id.TenantID
	Status   ViolationStatus
	Severity Severity
	Start    time.Time
	End      time.Time
	Limit    int
}

// Normalize applies sane defaults and bounds.
func (f *ViolationFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
}
