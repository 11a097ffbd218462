// Package audit defines the domain model of the audit and compliance engine:
// immutable audit records, per-tenant settings, compliance violations, and
// bulk exports. Keep these types transport-agnostic so stores, handlers, and
// workers can all share them.
package audit

import (
	"time"

	id "starline/pkg/domain"
)

// Action is the kind of audited operation.
type Action string

const (
	ActionCreate         Action = "create"
	ActionRead           Action = "read"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionLogin          Action = "login"
	ActionLogout         Action = "logout"
	ActionExport         Action = "export"
	ActionPrint          Action = "print"
	ActionShare          Action = "share"
	ActionConsentChange  Action = "consent_change"
	ActionAccessDenied   Action = "access_denied"
	ActionConfigChange   Action = "configuration_change"
	ActionBreachDetected Action = "breach_detected"
)

// ParseAction validates an action string against the known set.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete,
		ActionLogin, ActionLogout, ActionExport, ActionPrint, ActionShare,
		ActionConsentChange, ActionAccessDenied, ActionConfigChange,
		ActionBreachDetected:
		return Action(s), true
	}
	return "", false
}

// IsWrite reports whether the action mutates state. Writes are never subject
// to sampling.
func (a Action) IsWrite() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionConsentChange, ActionConfigChange:
		return true
	}
	return false
}

// IsSecurity reports whether the action is security-relevant. Security events
// are never subject to sampling.
func (a Action) IsSecurity() bool {
	switch a {
	case ActionLogin, ActionLogout, ActionAccessDenied, ActionBreachDetected:
		return true
	}
	return false
}

// Classification is the sensitivity tier of the data an action touched.
type Classification string

const (
	ClassificationPHI            Classification = "phi"
	ClassificationPII            Classification = "pii"
	ClassificationFinancial      Classification = "financial"
	ClassificationAdministrative Classification = "administrative"
	ClassificationGeneral        Classification = "general"
)

// ParseClassification validates a classification string.
func ParseClassification(s string) (Classification, bool) {
	switch Classification(s) {
	case ClassificationPHI, ClassificationPII, ClassificationFinancial,
		ClassificationAdministrative, ClassificationGeneral:
		return Classification(s), true
	}
	return "", false
}

// Record is one immutable fact of the audit trail. Once persisted no field is
// ever mutated; corrections are made by writing a new record.
type Record struct {
	ID id.RecordID

	// Context. Tenant is nil for system-level actions; Actor is nil for
	// actions with no human actor (scheduled jobs).
	TenantID  id.TenantID
	ActorID   id.ActorID
	SessionID id.SessionID
	RequestID string
	IPAddress string
	UserAgent string
	Method    string
	Endpoint  string

	// Subject.
	Action       Action
	ResourceType string
	ResourceID   id.ResourceID
	ResourceName string

	// Payload.
	PriorState     map[string]any
	NewState       map[string]any
	ChangesSummary string

	// Classification.
	Classification  Classification
	PHIAccessed     bool
	ConsentVerified bool

	// Outcome.
	ResponseStatus *int
	ErrorMessage   string
	DurationMS     *int64

	// CreatedAt is assigned by the store at persistence time, never by the
	// producer, so cross-record ordering is immune to client clock skew.
	CreatedAt time.Time
}

// Failed reports whether the record captured a failed request.
func (r *Record) Failed() bool {
	return r.ResponseStatus != nil && *r.ResponseStatus >= 400
}

// RecordFilter narrows record queries. Zero values mean "no constraint".
type RecordFilter struct {
	TenantID       id.TenantID
	ActorID        id.ActorID
	ResourceType   string
	ResourceID     id.ResourceID
	Action         Action
	Classification Classification
	PHIOnly        bool
	FailedOnly     bool
	Start          time.Time
	End            time.Time
	Limit          int
	Offset         int
}

// Normalize applies sane defaults and bounds.
func (f *RecordFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
