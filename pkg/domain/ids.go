// Package domain holds typed identifiers and domain primitives shared across
// the audit engine. IDs are distinct types over uuid.UUID so tenant, actor,
// and record identifiers cannot be swapped by accident.
package domain

import (
	"github.com/google/uuid"

	dErrors "starline/pkg/domain-errors"
)

// Typed identifiers. Construct through the Parse functions at trust
// boundaries; direct casting bypasses validation.
type (
	TenantID    uuid.UUID
	ActorID     uuid.UUID
	SessionID   uuid.UUID
	RecordID    uuid.UUID
	ViolationID uuid.UUID
	ExportID    uuid.UUID
	ResourceID  uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be the nil UUID")
	}
	return u, nil
}

// ParseTenantID validates and returns a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant id")
	return TenantID(u), err
}

// ParseActorID validates and returns an ActorID.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor id")
	return ActorID(u), err
}

// ParseSessionID validates and returns a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

// ParseResourceID validates and returns a ResourceID.
func ParseResourceID(s string) (ResourceID, error) {
	u, err := parseUUID(s, "resource id")
	return ResourceID(u), err
}

// ParseRecordID validates and returns a RecordID.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record id")
	return RecordID(u), err
}

// ParseViolationID validates and returns a ViolationID.
func ParseViolationID(s string) (ViolationID, error) {
	u, err := parseUUID(s, "violation id")
	return ViolationID(u), err
}

// ParseExportID validates and returns an ExportID.
func ParseExportID(s string) (ExportID, error) {
	u, err := parseUUID(s, "export id")
	return ExportID(u), err
}

// NewRecordID returns a fresh random RecordID.
func NewRecordID() RecordID { return RecordID(uuid.New()) }

// NewViolationID returns a fresh random ViolationID.
func NewViolationID() ViolationID { return ViolationID(uuid.New()) }

// NewExportID returns a fresh random ExportID.
func NewExportID() ExportID { return ExportID(uuid.New()) }

func (t TenantID) IsNil() bool       { return uuid.UUID(t) == uuid.Nil }
func (t TenantID) String() string    { return uuid.UUID(t).String() }
func (a ActorID) IsNil() bool        { return uuid.UUID(a) == uuid.Nil }
func (a ActorID) String() string     { return uuid.UUID(a).String() }
func (s SessionID) IsNil() bool      { return uuid.UUID(s) == uuid.Nil }
func (s SessionID) String() string   { return uuid.UUID(s).String() }
func (r RecordID) IsNil() bool       { return uuid.UUID(r) == uuid.Nil }
func (r RecordID) String() string    { return uuid.UUID(r).String() }
func (v ViolationID) IsNil() bool    { return uuid.UUID(v) == uuid.Nil }
func (v ViolationID) String() string { return uuid.UUID(v).String() }
func (e ExportID) IsNil() bool       { return uuid.UUID(e) == uuid.Nil }
func (e ExportID) String() string    { return uuid.UUID(e).String() }
func (r ResourceID) IsNil() bool     { return uuid.UUID(r) == uuid.Nil }
func (r ResourceID) String() string  { return uuid.UUID(r).String() }

// The ID types marshal as their canonical string form in JSON and text
// contexts. Nil IDs marshal as the empty string so omitempty applies.

func marshalID(u uuid.UUID) ([]byte, error) {
	if u == uuid.Nil {
		return []byte(""), nil
	}
	return []byte(u.String()), nil
}

func unmarshalID(data []byte, kind string) (uuid.UUID, error) {
	if len(data) == 0 {
		return uuid.Nil, nil
	}
	return parseUUID(string(data), kind)
}

func (t TenantID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(t)) }
func (t *TenantID) UnmarshalText(data []byte) error {
	u, err := unmarshalID(data, "tenant id")
	*t = TenantID(u)
	return err
}

func (a ActorID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(a)) }
func (a *ActorID) UnmarshalText(data []byte) error {
	u, err := unmarshalID(data, "actor id")
	*a = ActorID(u)
	return err
}

func (s SessionID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(s)) }
func (s *SessionID) UnmarshalText(data []byte) error {
	u, err := unmarshalID(data, "session id")
	*s = SessionID(u)
	return err
}

func (r RecordID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(r)) }
func (r *RecordID) UnmarshalText(data []byte) error {
	u, err := unmarshalID(data, "record id")
	*r = RecordID(u)
	return err
}

func (v ViolationID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(v)) }
func (v *ViolationID) UnmarshalText(data []byte) error {
	u, err := unmarshalID(data, "violation id")
	*v = ViolationID(u)
	return err
}

func (e ExportID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(e)) }
func (e *ExportID) UnmarshalText(data []byte) error {
	u, err := unmarshalID(data, "export id")
	*e = ExportID(u)
	return err
}

func (r ResourceID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(r)) }
func (r *ResourceID) UnmarshalText(data []byte) error {
	u, err := unmarshalID(data, "resource id")
	*r = ResourceID(u)
	return err
}
