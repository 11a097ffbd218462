package audit

import (
	id "starline/pkg/domain"
)

// Event is the recorder's input: everything a capture point knows about one
// action, before classification, masking, and persistence. Producers fill in
// what they observe; the recorder derives the rest.
type Event struct {
	TenantID  id.TenantID
	ActorID   id.ActorID
	SessionID id.SessionID
	RequestID string
	IPAddress string
	UserAgent string
	Method    string
	Endpoint  string

	Action       Action
	ResourceType string
	ResourceID   id.ResourceID
	ResourceName string

	// Raw state snapshots as column maps. The recorder masks and summarizes
	// these; producers must not pre-process them.
	PriorState map[string]any
	NewState   map[string]any

	ResponseStatus *int
	ErrorMessage   string
	DurationMS     *int64
}
